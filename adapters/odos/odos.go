// Package odos implements an OnChainAggregator against the Odos quote/
// assemble API, self-registering into the gateway's registry.
package odos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
	"github.com/fluxswap/gateway/registry"
)

const Name = "odos"

const defaultBaseURL = "https://api.odos.xyz"

// pathIDLifetime is the window within which a pathId returned by
// /sor/quote/v2 is redeemable at /sor/assemble. Odos documents a 60s
// lifetime; we treat a path as expired 5s early to leave margin for the
// assemble round trip itself.
const pathIDLifetime = 55 * time.Second

var supportedChains = []uint64{1, 10, 56, 137, 8453, 42161, 43114, 324}

// Adapter implements providers.OnChainAggregator against the Odos API,
// a two-step quote-then-assemble flow rather than 0x's single quote call.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New constructs an Odos adapter.
func New(apiKey string) *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Register constructs and registers an Odos adapter into reg.
func Register(reg *registry.Registry, apiKey string) *Adapter {
	a := New(apiKey)
	reg.RegisterEvmAggregator(a)
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Config() providers.Config {
	return providers.Config{BaseURL: a.baseURL, Timeout: 10000}
}

func (a *Adapter) SupportsChain(chainID uint64) bool {
	for _, c := range supportedChains {
		if c == chainID {
			return true
		}
	}
	return false
}

func (a *Adapter) GetSupportedChains() []uint64 {
	out := make([]uint64, len(supportedChains))
	copy(out, supportedChains)
	return out
}

// Health probes Odos's chains metadata endpoint.
func (a *Adapter) Health(ctx context.Context) (domain.ProviderHealth, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/info/chains", nil)
	if err != nil {
		return domain.ProviderHealth{}, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ProviderHealth{}, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()
	if resp.StatusCode >= 500 {
		return domain.ProviderHealth{}, fmt.Errorf("odos: health probe status %d", resp.StatusCode)
	}
	return domain.ProviderHealth{
		Name:      Name,
		Status:    domain.HealthHealthy,
		Latency:   &latency,
		LastCheck: time.Now(),
	}, nil
}

type odosQuoteRequest struct {
	ChainID          uint64   `json:"chainId"`
	InputTokens      []token  `json:"inputTokens"`
	OutputTokens     []token  `json:"outputTokens"`
	UserAddr         string   `json:"userAddr"`
	SlippageLimitPct float64  `json:"slippageLimitPercent"`
}

type token struct {
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount,omitempty"`
	Proportion   int    `json:"proportion,omitempty"`
}

type odosQuoteResponse struct {
	PathID        string            `json:"pathId"`
	OutAmounts    []string          `json:"outAmounts"`
	GasEstimate   float64           `json:"gasEstimate"`
	PriceImpact   float64           `json:"priceImpact"`
}

type odosAssembleRequest struct {
	UserAddr string `json:"userAddr"`
	PathID   string `json:"pathId"`
}

type odosAssembleResponse struct {
	Transaction struct {
		To       string `json:"to"`
		Data     string `json:"data"`
		Value    string `json:"value"`
		Gas      int64  `json:"gas"`
		GasPrice string `json:"gasPrice"`
	} `json:"transaction"`
}

// GetQuote drives Odos's two-step quote/assemble flow and maps the result
// onto domain.SwapQuote.
func (a *Adapter) GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	quoteResp, fetchedAt, err := a.fetchQuote(ctx, req)
	if err != nil {
		return nil, err
	}

	assembleResp, err := a.assemble(ctx, req, quoteResp.PathID)
	if err != nil && (isPathExpiredErr(err) || time.Since(fetchedAt) > pathIDLifetime) {
		// pathId is redeemable for only pathIDLifetime; an assemble failure
		// reporting an expired path, or arriving after the pathId has aged
		// past pathIDLifetime, is refreshed exactly once rather than surfaced.
		quoteResp, _, err = a.fetchQuote(ctx, req)
		if err != nil {
			return nil, err
		}
		assembleResp, err = a.assemble(ctx, req, quoteResp.PathID)
	}
	if err != nil {
		return nil, fmt.Errorf("odos: assemble: %w", err)
	}

	buyAmount, err := domain.ParseBigInt(quoteResp.OutAmounts[0])
	if err != nil {
		return nil, fmt.Errorf("odos: parsing outAmount: %w", err)
	}
	value, _ := domain.ParseBigInt(orZero(assembleResp.Transaction.Value))
	gasPrice, _ := domain.ParseBigInt(orZero(assembleResp.Transaction.GasPrice))
	minBuy := domain.ApplySlippageBps(buyAmount, int64(req.SlippagePercentage*100))
	priceImpact := quoteResp.PriceImpact

	quote := &domain.SwapQuote{
		SellToken:    req.SellToken,
		BuyToken:     req.BuyToken,
		SellAmount:   req.SellAmount,
		BuyAmount:    buyAmount,
		MinBuyAmount: minBuy,
		To:           assembleResp.Transaction.To,
		Data:         assembleResp.Transaction.Data,
		Value:        value,
		Gas:          domain.NewBigInt(nil),
		GasPrice:     &gasPrice,
		Aggregator:   Name,
		PriceImpact:  &priceImpact,
	}
	if assembleResp.Transaction.Gas > 0 {
		quote.Gas = domain.NewBigInt(big.NewInt(assembleResp.Transaction.Gas))
	}

	if strict {
		if err := quote.Validate(); err != nil {
			return nil, err
		}
	}
	return quote, nil
}

func (a *Adapter) fetchQuote(ctx context.Context, req *domain.SwapRequest) (odosQuoteResponse, time.Time, error) {
	quoteReq := odosQuoteRequest{
		ChainID:          req.ChainID,
		InputTokens:      []token{{TokenAddress: req.SellToken, Amount: req.SellAmount.String()}},
		OutputTokens:     []token{{TokenAddress: req.BuyToken, Proportion: 1}},
		UserAddr:         req.Taker,
		SlippageLimitPct: req.SlippagePercentage,
	}

	var quoteResp odosQuoteResponse
	if err := a.postJSON(ctx, "/sor/quote/v2", quoteReq, &quoteResp); err != nil {
		return odosQuoteResponse{}, time.Time{}, fmt.Errorf("odos: quote: %w", err)
	}
	if len(quoteResp.OutAmounts) == 0 {
		return odosQuoteResponse{}, time.Time{}, fmt.Errorf("odos: quote returned no output amounts")
	}
	return quoteResp, time.Now(), nil
}

func (a *Adapter) assemble(ctx context.Context, req *domain.SwapRequest, pathID string) (odosAssembleResponse, error) {
	var assembleResp odosAssembleResponse
	assembleReq := odosAssembleRequest{UserAddr: req.Taker, PathID: pathID}
	err := a.postJSON(ctx, "/sor/assemble", assembleReq, &assembleResp)
	return assembleResp, err
}

// isPathExpiredErr reports whether err looks like Odos's "path not found /
// expired" assemble failure rather than some other upstream error.
func isPathExpiredErr(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "path") && (strings.Contains(msg, "expired") || strings.Contains(msg, "not found"))
}

// BuildTx returns the raw transaction payload from a fresh quote.
func (a *Adapter) BuildTx(ctx context.Context, req *domain.SwapRequest) (*providers.TxPayload, error) {
	quote, err := a.GetQuote(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return &providers.TxPayload{
		To:       quote.To,
		Data:     quote.Data,
		Value:    quote.Value,
		GasLimit: &quote.Gas,
		GasPrice: quote.GasPrice,
	}, nil
}

func (a *Adapter) postJSON(ctx context.Context, path string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+a.apiKey)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("odos API status %d: %s", resp.StatusCode, string(respBody))
	}
	return json.Unmarshal(respBody, out)
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
