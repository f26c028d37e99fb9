// Package zerox implements an OnChainAggregator and EvmSpenderProvider
// against the 0x Swap API, self-registering into the gateway's registry.
package zerox

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
	"github.com/fluxswap/gateway/registry"
	"github.com/rs/zerolog/log"
)

const Name = "0x"

const defaultBaseURL = "https://api.0x.org"

// supportedChains lists the chains this deployment of the 0x Swap API
// quotes for.
var supportedChains = []uint64{1, 10, 56, 137, 8453, 42161, 43114}

// Adapter implements providers.OnChainAggregator and
// providers.EvmSpenderProvider against the 0x Swap API.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New constructs a 0x adapter. apiKey may be empty for deployments that
// rely on 0x's unauthenticated rate limit tier.
func New(apiKey string) *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Register constructs and registers a 0x adapter into reg.
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

// Health probes the 0x API's sources endpoint as a cheap liveness check.
func (a *Adapter) Health(ctx context.Context) (domain.ProviderHealth, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/swap/v1/sources", nil)
	if err != nil {
		return domain.ProviderHealth{}, err
	}
	a.applyAuth(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.ProviderHealth{}, err
	}
	defer resp.Body.Close()

	latency := time.Since(start).Milliseconds()
	if resp.StatusCode >= 500 {
		return domain.ProviderHealth{}, fmt.Errorf("zerox: health probe status %d", resp.StatusCode)
	}

	return domain.ProviderHealth{
		Name:      Name,
		Status:    domain.HealthHealthy,
		Latency:   &latency,
		LastCheck: time.Now(),
	}, nil
}

type zeroxQuoteResponse struct {
	SellAmount           string  `json:"sellAmount"`
	BuyAmount            string  `json:"buyAmount"`
	GuaranteedPrice      string  `json:"guaranteedPrice"`
	To                   string  `json:"to"`
	Data                 string  `json:"data"`
	Value                string  `json:"value"`
	Gas                  string  `json:"gas"`
	GasPrice             string  `json:"gasPrice"`
	AllowanceTarget      string  `json:"allowanceTarget"`
	EstimatedPriceImpact *string `json:"estimatedPriceImpact"`
	Permit2              *struct {
		Type   string          `json:"type"`
		Hash   string          `json:"hash"`
		EIP712 json.RawMessage `json:"eip712"`
	} `json:"permit2"`
}

// GetQuote calls the 0x /swap/v1/quote endpoint and maps its response
// onto domain.SwapQuote.
func (a *Adapter) GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	q := url.Values{}
	q.Set("sellToken", req.SellToken)
	q.Set("buyToken", req.BuyToken)
	q.Set("sellAmount", req.SellAmount.String())
	q.Set("takerAddress", req.Taker)
	if req.SlippagePercentage > 0 {
		q.Set("slippagePercentage", strconv.FormatFloat(req.SlippagePercentage/100, 'f', -1, 64))
	}

	endpoint := fmt.Sprintf("%s/swap/v1/quote?%s", a.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	a.applyAuth(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("zerox: quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zerox: quote API status %d: %s", resp.StatusCode, string(body))
	}

	var raw zeroxQuoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("zerox: decoding quote response: %w", err)
	}

	quote, err := toSwapQuote(req, raw)
	if err != nil {
		return nil, err
	}
	if strict {
		if err := quote.Validate(); err != nil {
			return nil, err
		}
	}
	return quote, nil
}

func toSwapQuote(req *domain.SwapRequest, raw zeroxQuoteResponse) (*domain.SwapQuote, error) {
	sellAmount, err := bigIntFromDecimalString(raw.SellAmount)
	if err != nil {
		return nil, fmt.Errorf("zerox: parsing sellAmount: %w", err)
	}
	buyAmount, err := bigIntFromDecimalString(raw.BuyAmount)
	if err != nil {
		return nil, fmt.Errorf("zerox: parsing buyAmount: %w", err)
	}
	value, _ := bigIntFromDecimalString(raw.Value)
	gas, _ := bigIntFromDecimalString(raw.Gas)
	gasPrice, _ := bigIntFromDecimalString(raw.GasPrice)

	minBuy := domain.ApplySlippageBps(buyAmount, int64(req.SlippagePercentage*100))

	quote := &domain.SwapQuote{
		SellToken:       req.SellToken,
		BuyToken:        req.BuyToken,
		SellAmount:      sellAmount,
		BuyAmount:       buyAmount,
		MinBuyAmount:    minBuy,
		To:              raw.To,
		Data:            raw.Data,
		Value:           value,
		Gas:             gas,
		GasPrice:        &gasPrice,
		AllowanceTarget: raw.AllowanceTarget,
		Aggregator:      Name,
	}

	if raw.EstimatedPriceImpact != nil {
		if v, err := strconv.ParseFloat(*raw.EstimatedPriceImpact, 64); err == nil {
			quote.PriceImpact = &v
		}
	}

	if raw.Permit2 != nil {
		var eip712 domain.Permit2EIP712
		if err := json.Unmarshal(raw.Permit2.EIP712, &eip712); err == nil {
			quote.Permit2 = &domain.Permit2Data{
				Type:   raw.Permit2.Type,
				Hash:   raw.Permit2.Hash,
				EIP712: eip712,
			}
		}
	}

	return quote, nil
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

// GetAllowanceHolderQuote implements providers.EvmPermit2Provider: a
// quote executable through the AllowanceHolder flow, which is the
// default shape /swap/v1/quote returns when no permit2 flag is set.
func (a *Adapter) GetAllowanceHolderQuote(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error) {
	quote, err := a.GetQuote(ctx, req, false)
	if err != nil {
		return nil, err
	}
	quote.ApprovalStrategy = domain.ApprovalStrategyAllowanceHolder
	return quote, nil
}

// GetPermit2Quote requests a quote whose calldata expects a spliced
// Permit2 signature; the response carries the permit2 typed-data block.
func (a *Adapter) GetPermit2Quote(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error) {
	return a.permit2Call(ctx, req, "/swap/permit2/quote")
}

// GetPermit2Price is the indicative-price variant of GetPermit2Quote: no
// executable calldata is produced upstream, so it is cheaper to call when
// only a price comparison is needed.
func (a *Adapter) GetPermit2Price(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error) {
	return a.permit2Call(ctx, req, "/swap/permit2/price")
}

func (a *Adapter) permit2Call(ctx context.Context, req *domain.SwapRequest, path string) (*domain.SwapQuote, error) {
	q := url.Values{}
	q.Set("sellToken", req.SellToken)
	q.Set("buyToken", req.BuyToken)
	q.Set("sellAmount", req.SellAmount.String())
	q.Set("taker", req.Taker)

	endpoint := fmt.Sprintf("%s%s?%s", a.baseURL, path, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	a.applyAuth(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("zerox: permit2 request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("zerox: permit2 API status %d: %s", resp.StatusCode, string(body))
	}

	var raw zeroxQuoteResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("zerox: decoding permit2 response: %w", err)
	}

	quote, err := toSwapQuote(req, raw)
	if err != nil {
		return nil, err
	}
	quote.ApprovalStrategy = domain.ApprovalStrategyPermit2
	return quote, nil
}

// GetSpenderAddress implements providers.EvmSpenderProvider: 0x's
// AllowanceHolder contract address for the allowance-holder strategy is
// surfaced via each quote's allowanceTarget, so resolving it standalone
// means fetching a minimal quote isn't necessary — 0x publishes the same
// fixed AllowanceHolder address across all chains it supports.
func (a *Adapter) GetSpenderAddress(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy) (string, error) {
	if strategy == domain.ApprovalStrategyPermit2 {
		return domain.Permit2ContractAddress, nil
	}
	if !a.SupportsChain(chainID) {
		return "", fmt.Errorf("zerox: chain %d not supported", chainID)
	}
	return zeroxAllowanceHolder, nil
}

// zeroxAllowanceHolder is 0x's AllowanceHolder contract, deployed at the
// same address across every chain it supports.
const zeroxAllowanceHolder = "0x0000000000001fF3684f28c67538d4D072C22734"

func (a *Adapter) applyAuth(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("0x-api-key", a.apiKey)
		req.Header.Set("0x-version", "v2")
	}
	log.Debug().Str("url", req.URL.String()).Msg("zerox: outbound request")
}

func bigIntFromDecimalString(s string) (domain.BigInt, error) {
	if s == "" {
		return domain.NewBigInt(nil), nil
	}
	return domain.ParseBigInt(s)
}
