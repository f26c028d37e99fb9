package api

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/providers"
)

type quoteResponse struct {
	SwapType         domain.SwapType      `json:"swapType"`
	Routes           []quoteSummary       `json:"routes"`
	RecommendedRoute interface{}          `json:"recommendedRoute"`
	TransactionData  *providers.TxPayload `json:"transactionData,omitempty"`
	Warnings         []string             `json:"warnings"`
}

type quoteSummary struct {
	Aggregator     string                `json:"aggregator"`
	AggregatorType domain.AggregatorType `json:"aggregatorType,omitempty"`
	BuyAmount      string                `json:"buyAmount"`
	PriceImpact    *float64              `json:"priceImpact,omitempty"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.UniversalSwapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid swap request", err)
		return
	}

	classification, err := s.classifier.Classify(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "could not classify swap request", err)
		return
	}

	switch classification.Category {
	case domain.CategoryEvmAggregator:
		s.handleOnChainQuote(ctx, w, &req, classification.SwapType)
	case domain.CategoryMetaAggregator:
		s.handleMetaQuote(ctx, w, &req, classification.SwapType)
	default:
		writeError(w, http.StatusNotImplemented, "ecosystem not yet supported for quoting", nil)
	}
}

func (s *Server) handleOnChainQuote(ctx context.Context, w http.ResponseWriter, req *domain.UniversalSwapRequest, swapType domain.SwapType) {
	legacy := req.ToLegacy()
	candidates := s.reg.EvmAggregators()
	if len(candidates) == 0 {
		writeError(w, http.StatusServiceUnavailable, "no on-chain aggregators registered", nil)
		return
	}

	quotes, err := s.orch.GetMultipleQuotes(ctx, candidates, legacy, false)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to acquire a quote", err)
		return
	}

	results := make([]providers.QuoteResult, 0, len(quotes))
	routes := make([]quoteSummary, 0, len(quotes))
	for _, q := range quotes {
		results = append(results, providers.QuoteResult{Legacy: q})
		routes = append(routes, quoteSummary{
			Aggregator:     q.Aggregator,
			AggregatorType: providers.LegacyAggregatorType(q.Aggregator),
			BuyAmount:      q.BuyAmount.String(),
			PriceImpact:    q.PriceImpact,
		})
	}

	recommended, ok := s.orch.Recommend(ctx, candidates, legacy, quotes)
	if !ok {
		writeError(w, http.StatusBadGateway, "no aggregator returned a usable quote", nil)
		return
	}

	var txPayload *providers.TxPayload
	if adapter := findEvmAdapter(candidates, recommended.Aggregator); adapter != nil {
		tx, err := adapter.BuildTx(ctx, legacy)
		if err != nil {
			log.Warn().Str("aggregator", recommended.Aggregator).Err(err).Msg("api: building transaction data failed")
		} else {
			txPayload = tx
		}
	}

	var warnings []string
	if diff := orchestrator.PriceDifferencePercent(results); diff > 0 {
		warnings = append(warnings, fmt.Sprintf("quotes differ by %.2f%% across aggregators", diff))
	}

	writeSuccess(w, quoteResponse{
		SwapType:         swapType,
		Routes:           routes,
		RecommendedRoute: recommended,
		TransactionData:  txPayload,
		Warnings:         warnings,
	})
}

func (s *Server) handleMetaQuote(ctx context.Context, w http.ResponseWriter, req *domain.UniversalSwapRequest, swapType domain.SwapType) {
	candidates := s.reg.MetaAggregators()
	if len(candidates) == 0 {
		writeError(w, http.StatusServiceUnavailable, "no meta-aggregators registered", nil)
		return
	}

	var results []providers.QuoteResult
	routes := make([]quoteSummary, 0)
	for _, m := range candidates {
		found, err := m.GetRoutes(ctx, req)
		if err != nil {
			log.Warn().Str("aggregator", m.Name()).Err(err).Msg("api: meta-aggregator route lookup failed")
			continue
		}
		for i := range found {
			route := found[i]
			results = append(results, providers.QuoteResult{Route: &route})
			routes = append(routes, quoteSummary{Aggregator: route.Aggregator, BuyAmount: route.TotalEstimatedOut.String(), PriceImpact: route.PriceImpact})
		}
	}

	best, ok := orchestrator.BestQuote(results)
	if !ok {
		writeError(w, http.StatusBadGateway, "no meta-aggregator returned a usable route", nil)
		return
	}

	var warnings []string
	if diff := orchestrator.PriceDifferencePercent(results); diff > 0 {
		warnings = append(warnings, fmt.Sprintf("routes differ by %.2f%% across aggregators", diff))
	}

	writeSuccess(w, quoteResponse{
		SwapType:         swapType,
		Routes:           routes,
		RecommendedRoute: best.Route,
		Warnings:         warnings,
	})
}

func findEvmAdapter(candidates []providers.OnChainAggregator, name string) providers.OnChainAggregator {
	for _, a := range candidates {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

func (s *Server) handlePreCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.SwapRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := req.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid swap request", err)
		return
	}

	checker, err := s.chainChecker(ctx, req.ChainID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chain not configured", err)
		return
	}
	candidates := s.reg.EvmAggregators()

	result, err := checker.Run(ctx, &req, candidates)
	if err != nil {
		writeError(w, http.StatusBadGateway, "pre-check failed", err)
		return
	}
	writeSuccess(w, result)
}

type executeRequest struct {
	Request      domain.SwapRequest `json:"request"`
	RouteID      string             `json:"routeId,omitempty"`
	SignerSecret string             `json:"signerSecret"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.RouteID != "" {
		s.executeMetaRoute(ctx, w, req.RouteID, req.SignerSecret)
		return
	}

	if err := req.Request.Normalize(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid swap request", err)
		return
	}

	privKey, signer, err := signerFromSecret(req.SignerSecret, req.Request.ChainID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signer secret", err)
		return
	}

	coord, err := s.chainCoordinator(ctx, req.Request.ChainID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chain not configured", err)
		return
	}
	candidates := s.reg.EvmAggregators()

	result, err := coord.Execute(ctx, &req.Request, candidates, privKey, signer)
	if err != nil {
		writeError(w, http.StatusBadGateway, "execution failed", err)
		return
	}
	writeSuccess(w, result)
}

// executeMetaRoute submits a previously quoted cross-chain route. A
// MetaAggregator adapter's Execute does not itself hold custody here (see
// adapters/lifi), so this path is the "partially stubbed" execute flow:
// it forwards the route ID and signer context to whichever registered
// meta-aggregator recognizes it.
func (s *Server) executeMetaRoute(ctx context.Context, w http.ResponseWriter, routeID, signerSecret string) {
	signerCtx := providers.SignerContext{SignerSecret: signerSecret}
	for _, m := range s.reg.MetaAggregators() {
		result, err := m.Execute(ctx, routeID, signerCtx)
		if err != nil {
			continue
		}
		writeSuccess(w, result)
		return
	}
	writeError(w, http.StatusNotFound, "unknown routeId", nil)
}

type statusRequest struct {
	RouteID string `json:"routeId"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	for _, m := range s.reg.MetaAggregators() {
		status, err := m.Status(ctx, req.RouteID)
		if err != nil {
			continue
		}
		writeSuccess(w, map[string]interface{}{"routeId": req.RouteID, "status": status})
		return
	}
	writeError(w, http.StatusNotFound, "unknown routeId", nil)
}

type approvalStatusRequest struct {
	ChainID uint64 `json:"chainId"`
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

func (s *Server) handleApprovalStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req approvalStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	amount, err := domain.ParseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	workflow, err := s.chainWorkflow(ctx, req.ChainID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chain not configured", err)
		return
	}

	needed, err := workflow.IsApprovalNeeded(ctx, req.ChainID, req.Token, req.Owner, req.Spender, amount.Int)
	if err != nil {
		writeError(w, http.StatusBadGateway, "approval check failed", err)
		return
	}
	writeSuccess(w, map[string]interface{}{"approvalRequired": needed})
}

type approvalExecuteRequest struct {
	ChainID      uint64 `json:"chainId"`
	Token        string `json:"token"`
	Spender      string `json:"spender"`
	Amount       string `json:"amount"`
	SignerSecret string `json:"signerSecret"`
}

func (s *Server) handleApprovalExecute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req approvalExecuteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	amount, err := domain.ParseBigInt(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount", err)
		return
	}

	_, signer, err := signerFromSecret(req.SignerSecret, req.ChainID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signer secret", err)
		return
	}

	client, err := s.chainClient(ctx, req.ChainID)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "chain not configured", err)
		return
	}

	txHash, err := client.SendRawApproval(ctx, signer, req.Token, req.Spender, amount.Int)
	if err != nil {
		writeError(w, http.StatusBadGateway, "approval transaction failed", err)
		return
	}
	writeSuccess(w, map[string]interface{}{"txHash": txHash})
}

// signerFromSecret builds an ecdsa key and a chain-bound transactor from a
// hex-encoded private key. The secret itself is never logged or persisted,
// matching the permit2 signing secret's own transient-only lifecycle.
func signerFromSecret(secret string, chainID uint64) (*ecdsa.PrivateKey, *bind.TransactOpts, error) {
	privKey, err := crypto.HexToECDSA(strings.TrimPrefix(secret, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("api: decoding signer secret: %w", err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(privKey, new(big.Int).SetUint64(chainID))
	if err != nil {
		return nil, nil, fmt.Errorf("api: building transactor: %w", err)
	}
	return privKey, signer, nil
}
