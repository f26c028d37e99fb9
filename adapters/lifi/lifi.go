// Package lifi implements a MetaAggregator against the LI.FI cross-chain
// routing API, self-registering into the gateway's registry.
package lifi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
	"github.com/fluxswap/gateway/registry"
	"github.com/rs/zerolog/log"
)

const Name = "lifi"

const defaultBaseURL = "https://li.quest/v1"

// sourceChains and destChains describe which sides of a route LI.FI can
// serve for this deployment; LI.FI's own /chains endpoint is far broader,
// but the gateway only enables the EVM chains it otherwise supports.
var sourceChains = []uint64{1, 10, 56, 137, 8453, 42161, 43114}
var destChains = []uint64{1, 10, 56, 137, 8453, 42161, 43114}

// Adapter implements providers.MetaAggregator against the LI.FI API.
type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client

	mu     sync.Mutex
	routes map[string]lifiRouteResponse // submitted route bookkeeping for Status
	status map[string]domain.ExecutionStatus
}

// New constructs a LI.FI adapter.
func New(apiKey string) *Adapter {
	return &Adapter{
		baseURL: defaultBaseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 15 * time.Second},
		routes:  make(map[string]lifiRouteResponse),
		status:  make(map[string]domain.ExecutionStatus),
	}
}

// Register constructs and registers a LI.FI adapter into reg.
func Register(reg *registry.Registry, apiKey string) *Adapter {
	a := New(apiKey)
	reg.RegisterMetaAggregator(a)
	return a
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) Config() providers.Config {
	return providers.Config{BaseURL: a.baseURL, Timeout: 15000}
}

func (a *Adapter) GetSupportedChains() (from []uint64, to []uint64) {
	f := make([]uint64, len(sourceChains))
	copy(f, sourceChains)
	t := make([]uint64, len(destChains))
	copy(t, destChains)
	return f, t
}

// Health probes LI.FI's chains listing endpoint.
func (a *Adapter) Health(ctx context.Context) (domain.ProviderHealth, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/chains", nil)
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
		return domain.ProviderHealth{}, fmt.Errorf("lifi: health probe status %d", resp.StatusCode)
	}
	return domain.ProviderHealth{
		Name:      Name,
		Status:    domain.HealthHealthy,
		Latency:   &latency,
		LastCheck: time.Now(),
	}, nil
}

type lifiRouteResponse struct {
	Routes []lifiRoute `json:"routes"`
}

type lifiRoute struct {
	ID             string      `json:"id"`
	FromAmount     string      `json:"fromAmount"`
	ToAmount       string      `json:"toAmount"`
	ToAmountMin    string      `json:"toAmountMin"`
	GasCostUSD     string      `json:"gasCostUSD"`
	Steps          []lifiStep  `json:"steps"`
	Tags           []string    `json:"tags,omitempty"`
}

type lifiStep struct {
	Type        string `json:"type"`
	Tool        string `json:"tool"`
	Action      struct {
		FromChainID uint64 `json:"fromChainId"`
		ToChainID   uint64 `json:"toChainId"`
	} `json:"action"`
	EstimatedDuration *int64 `json:"estimatedDuration,omitempty"`
}

// GetRoutes calls LI.FI's /quote endpoint (single best route) and reshapes
// the result into the gateway's RouteQuote; a full implementation could
// instead call LI.FI's /advanced/routes for multiple ranked alternatives,
// but the gateway only surfaces the single best route per request today.
func (a *Adapter) GetRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]domain.RouteQuote, error) {
	q := url.Values{}
	q.Set("fromChain", strconv.FormatUint(req.Source.Chain, 10))
	q.Set("toChain", strconv.FormatUint(req.Destination.Chain, 10))
	q.Set("fromToken", req.SellToken)
	q.Set("toToken", req.BuyToken)
	q.Set("fromAmount", req.SellAmount.String())
	q.Set("fromAddress", req.Taker)
	if req.Recipient != "" {
		q.Set("toAddress", req.Recipient)
	}
	if req.SlippagePercentage > 0 {
		q.Set("slippage", strconv.FormatFloat(req.SlippagePercentage/100, 'f', -1, 64))
	}

	endpoint := fmt.Sprintf("%s/quote?%s", a.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	a.applyAuth(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("lifi: quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("lifi: quote API status %d: %s", resp.StatusCode, string(body))
	}

	var single lifiRoute
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("lifi: decoding quote response: %w", err)
	}
	if single.ToAmount == "" {
		return nil, fmt.Errorf("lifi: quote returned no route")
	}

	route, err := toRouteQuote(single)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.routes[route.RouteID] = lifiRouteResponse{Routes: []lifiRoute{single}}
	a.status[route.RouteID] = domain.ExecutionPending
	a.mu.Unlock()

	return []domain.RouteQuote{route}, nil
}

func toRouteQuote(r lifiRoute) (domain.RouteQuote, error) {
	toAmount, err := domain.ParseBigInt(r.ToAmount)
	if err != nil {
		return domain.RouteQuote{}, fmt.Errorf("lifi: parsing toAmount: %w", err)
	}

	steps := make([]domain.Step, 0, len(r.Steps))
	for _, s := range r.Steps {
		kind := domain.StepSwap
		if s.Action.FromChainID != s.Action.ToChainID {
			kind = domain.StepBridge
		}
		steps = append(steps, domain.Step{
			Kind:          kind,
			ChainID:       s.Action.FromChainID,
			Details:       s.Type,
			Protocol:      s.Tool,
			EstimatedTime: s.EstimatedDuration,
		})
	}

	confidence := 0.8
	if len(r.Tags) > 0 {
		for _, tag := range r.Tags {
			if tag == "CHEAPEST" || tag == "FASTEST" {
				confidence = 0.9
			}
		}
	}

	route := domain.RouteQuote{
		Steps:             steps,
		TotalEstimatedOut: toAmount,
		Fees:              domain.RouteFees{Gas: domain.NewBigInt(nil), Provider: domain.NewBigInt(nil)},
		RouteID:           r.ID,
		Confidence:        confidence,
		Aggregator:        Name,
	}
	if err := route.Validate(); err != nil {
		return domain.RouteQuote{}, err
	}
	return route, nil
}

type lifiStatusResponse struct {
	Status   string `json:"status"`
	SubState string `json:"substatus"`
	Sending  struct {
		TxHash string `json:"txHash"`
	} `json:"sending"`
	Receiving struct {
		TxHash string `json:"txHash"`
	} `json:"receiving"`
}

// Execute records a previously quoted route as pending and returns an
// empty TxIDs list. It signs and broadcasts nothing and does not use
// signerCtx; Status queries LI.FI for the route afterwards.
func (a *Adapter) Execute(ctx context.Context, routeID string, signerCtx providers.SignerContext) (providers.ExecuteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.routes[routeID]; !ok {
		return providers.ExecuteResult{}, fmt.Errorf("lifi: unknown route %q", routeID)
	}
	a.status[routeID] = domain.ExecutionPending
	log.Info().Str("routeID", routeID).Msg("lifi: route marked submitted")
	return providers.ExecuteResult{TxIDs: []string{}}, nil
}

// Status polls LI.FI's /status endpoint for a previously submitted route.
func (a *Adapter) Status(ctx context.Context, routeID string) (domain.ExecutionStatus, error) {
	a.mu.Lock()
	route, ok := a.routes[routeID]
	a.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("lifi: unknown route %q", routeID)
	}
	if len(route.Routes) == 0 || len(route.Routes[0].Steps) == 0 {
		return domain.ExecutionPending, nil
	}

	q := url.Values{}
	q.Set("bridge", route.Routes[0].Steps[0].Tool)

	endpoint := fmt.Sprintf("%s/status?%s", a.baseURL, q.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	a.applyAuth(httpReq)

	resp, err := a.client.Do(httpReq)
	if err != nil {
		a.mu.Lock()
		cached := a.status[routeID]
		a.mu.Unlock()
		return cached, nil
	}
	defer resp.Body.Close()

	var raw lifiStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		a.mu.Lock()
		cached := a.status[routeID]
		a.mu.Unlock()
		return cached, nil
	}

	status := mapStatus(raw.Status)
	a.mu.Lock()
	a.status[routeID] = status
	a.mu.Unlock()
	return status, nil
}

func mapStatus(s string) domain.ExecutionStatus {
	switch s {
	case "DONE":
		return domain.ExecutionSuccess
	case "FAILED":
		return domain.ExecutionFailed
	case "PARTIAL":
		return domain.ExecutionPartial
	default:
		return domain.ExecutionPending
	}
}

func (a *Adapter) applyAuth(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("x-lifi-api-key", a.apiKey)
	}
	log.Debug().Str("url", req.URL.String()).Msg("lifi: outbound request")
}
