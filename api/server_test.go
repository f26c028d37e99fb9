package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fluxswap/gateway/cache"
	"github.com/fluxswap/gateway/config"
	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/health"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/providers"
	"github.com/fluxswap/gateway/ratelimit"
	"github.com/fluxswap/gateway/registry"
	"github.com/fluxswap/gateway/routing"
	"github.com/fluxswap/gateway/storage"
)

type fakeAgg struct {
	name   string
	chains map[uint64]bool
	buy    string
	to     string
}

func (f *fakeAgg) Name() string { return f.name }
func (f *fakeAgg) Health(ctx context.Context) (domain.ProviderHealth, error) {
	lat := int64(10)
	return domain.ProviderHealth{Name: f.name, Status: domain.HealthHealthy, Latency: &lat}, nil
}
func (f *fakeAgg) Config() providers.Config { return providers.Config{} }
func (f *fakeAgg) GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	buy, err := domain.ParseBigInt(f.buy)
	if err != nil {
		return nil, err
	}
	return &domain.SwapQuote{
		SellToken:  req.SellToken,
		BuyToken:   req.BuyToken,
		SellAmount: req.SellAmount,
		BuyAmount:  buy,
		To:         f.to,
		Data:       "0xabcd",
		Aggregator: f.name,
	}, nil
}
func (f *fakeAgg) BuildTx(ctx context.Context, req *domain.SwapRequest) (*providers.TxPayload, error) {
	return &providers.TxPayload{To: f.to, Data: "0xabcd"}, nil
}
func (f *fakeAgg) SupportsChain(chainID uint64) bool { return f.chains[chainID] }
func (f *fakeAgg) GetSupportedChains() []uint64 {
	out := make([]uint64, 0, len(f.chains))
	for c := range f.chains {
		out = append(out, c)
	}
	return out
}

func newTestServer(t *testing.T, rpm int, aggs ...providers.OnChainAggregator) *Server {
	t.Helper()

	reg := registry.New()
	for _, a := range aggs {
		reg.RegisterEvmAggregator(a)
	}
	reg.OnRegistrationComplete()

	quoteCache := cache.NewSupportedQuoteCache(storage.NewMapStore())
	monitor := health.NewMonitor(time.Minute, 5*time.Second)
	limiter := ratelimit.NewLimiter(rpm)
	t.Cleanup(limiter.Stop)

	cfg := &config.Config{Port: "0", CORSOrigin: "*"}
	vault := config.NewAPIKeyVault(nil, nil)

	return NewServer(cfg, reg, routing.NewClassifier(reg, quoteCache), orchestrator.New(monitor), monitor, quoteCache, limiter, vault)
}

func postJSON(t *testing.T, router http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestQuoteSameChainRanksZeroXFirstOnMainnet(t *testing.T) {
	zeroX := &fakeAgg{name: "0x", chains: map[uint64]bool{1: true}, buy: "1000", to: "0xAAAA000000000000000000000000000000000001"}
	odos := &fakeAgg{name: "odos", chains: map[uint64]bool{1: true}, buy: "1000", to: "0xBBBB000000000000000000000000000000000002"}
	srv := newTestServer(t, 100, zeroX, odos)
	router := srv.Router()

	body := map[string]interface{}{
		"source":      map[string]interface{}{"chain": 1, "ecosystem": "evm", "standard": "erc20"},
		"destination": map[string]interface{}{"chain": 1, "ecosystem": "evm", "standard": "erc20"},
		"sellToken":   "0x1111111111111111111111111111111111111111",
		"buyToken":    "0x2222222222222222222222222222222222222222",
		"sellAmount":  "100000000000000",
		"taker":       "0x3333333333333333333333333333333333333333",
	}

	rec := postJSON(t, router, "/universal-swap/quote", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Success bool `json:"success"`
		Data    struct {
			SwapType string `json:"swapType"`
			Routes   []struct {
				Aggregator string `json:"aggregator"`
			} `json:"routes"`
			RecommendedRoute struct {
				Aggregator string `json:"aggregator"`
			} `json:"recommendedRoute"`
			TransactionData struct {
				To string `json:"To"`
			} `json:"transactionData"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if !env.Success {
		t.Fatal("expected success envelope")
	}
	if env.Data.SwapType != string(domain.SwapTypeOnChain) {
		t.Fatalf("expected on-chain swap type, got %s", env.Data.SwapType)
	}
	if len(env.Data.Routes) != 2 {
		t.Fatalf("expected both aggregators to contribute a route, got %d", len(env.Data.Routes))
	}
	// With equal amounts and equal health, the chain-1 nudge ranks 0x first.
	if env.Data.RecommendedRoute.Aggregator != "0x" {
		t.Fatalf("expected 0x recommended on mainnet, got %s", env.Data.RecommendedRoute.Aggregator)
	}
	if env.Data.TransactionData.To != zeroX.to {
		t.Fatalf("expected transaction data from the recommended adapter, got %s", env.Data.TransactionData.To)
	}
}

func TestAnalyzeL1ToL1PairClassifiesCrossChain(t *testing.T) {
	srv := newTestServer(t, 100)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet,
		"/swap-analysis/analyze?sourceChain=1&destinationChain=137&sourceEcosystem=evm&destinationEcosystem=evm", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var env struct {
		Data struct {
			SwapType string `json:"swapType"`
			Category string `json:"category"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	// 1 and 137 are both in the L1 set, so the pair falls through the
	// L1/L2 table to cross-chain.
	if env.Data.SwapType != string(domain.SwapTypeCrossChain) {
		t.Fatalf("expected cross-chain, got %s", env.Data.SwapType)
	}
	if env.Data.Category != string(domain.CategoryMetaAggregator) {
		t.Fatalf("expected meta-aggregator category, got %s", env.Data.Category)
	}
}

func TestRateLimitExceededReturns429WithRetryAfter(t *testing.T) {
	srv := newTestServer(t, 3)
	router := srv.Router()

	var last *httptest.ResponseRecorder
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "/universal-swap/health", nil)
		req.RemoteAddr = "203.0.113.7:1234"
		last = httptest.NewRecorder()
		router.ServeHTTP(last, req)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the request past the limit, got %d", last.Code)
	}
	var body struct {
		Message    string  `json:"message"`
		RetryAfter float64 `json:"retryAfter"`
	}
	if err := json.Unmarshal(last.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.RetryAfter <= 0 || body.RetryAfter > 60 {
		t.Fatalf("expected retryAfter in (0, 60], got %v", body.RetryAfter)
	}
}

func TestAggregatorsEndpointFiltersByChain(t *testing.T) {
	zeroX := &fakeAgg{name: "0x", chains: map[uint64]bool{1: true, 137: true}}
	odos := &fakeAgg{name: "odos", chains: map[uint64]bool{137: true}}
	srv := newTestServer(t, 100, zeroX, odos)
	router := srv.Router()

	for chainID, want := range map[uint64][]string{
		1:   {"0x"},
		137: {"0x", "odos"},
	} {
		req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/universal-swap/aggregators?chainId=%d", chainID), nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("chain %d: expected 200, got %d", chainID, rec.Code)
		}
		var env struct {
			Data struct {
				Aggregators []string `json:"aggregators"`
			} `json:"data"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatal(err)
		}
		if len(env.Data.Aggregators) != len(want) {
			t.Fatalf("chain %d: expected %v, got %v", chainID, want, env.Data.Aggregators)
		}
		for i := range want {
			if env.Data.Aggregators[i] != want[i] {
				t.Fatalf("chain %d: expected %v, got %v", chainID, want, env.Data.Aggregators)
			}
		}
	}
}

func TestSupportedChainsUnionIsEnriched(t *testing.T) {
	zeroX := &fakeAgg{name: "0x", chains: map[uint64]bool{1: true, 8453: true}}
	srv := newTestServer(t, 100, zeroX)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/universal-swap/supported-chains", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var env struct {
		Data []struct {
			ChainID uint64 `json:"chainId"`
			Name    string `json:"name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != 2 {
		t.Fatalf("expected 2 chains, got %d", len(env.Data))
	}
	if env.Data[0].ChainID != 1 || env.Data[0].Name != "Ethereum" {
		t.Fatalf("expected chain 1 enriched as Ethereum first, got %+v", env.Data[0])
	}
}

func TestQuoteRejectsSameToken(t *testing.T) {
	srv := newTestServer(t, 100)
	router := srv.Router()

	body := map[string]interface{}{
		"source":      map[string]interface{}{"chain": 1, "ecosystem": "evm"},
		"destination": map[string]interface{}{"chain": 1, "ecosystem": "evm"},
		"sellToken":   "0x1111111111111111111111111111111111111111",
		"buyToken":    "0x1111111111111111111111111111111111111111",
		"sellAmount":  "100",
		"taker":       "0x3333333333333333333333333333333333333333",
	}
	rec := postJSON(t, router, "/universal-swap/quote", body)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for sellToken == buyToken, got %d", rec.Code)
	}
}

func TestEcosystemsCatalogue(t *testing.T) {
	srv := newTestServer(t, 100)
	router := srv.Router()

	req := httptest.NewRequest(http.MethodGet, "/swap-analysis/ecosystems", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var env struct {
		Data []string `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if len(env.Data) != 10 {
		t.Fatalf("expected the 10-entry ecosystem catalogue, got %d", len(env.Data))
	}
}
