package registry

import (
	"context"
	"testing"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
)

type stubAggregator struct {
	name   string
	chains map[uint64]bool
}

func (s *stubAggregator) Name() string { return s.name }
func (s *stubAggregator) Health(ctx context.Context) (domain.ProviderHealth, error) {
	return domain.ProviderHealth{Name: s.name, Status: domain.HealthHealthy}, nil
}
func (s *stubAggregator) Config() providers.Config { return providers.Config{} }
func (s *stubAggregator) GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	return &domain.SwapQuote{Aggregator: s.name}, nil
}
func (s *stubAggregator) BuildTx(ctx context.Context, req *domain.SwapRequest) (*providers.TxPayload, error) {
	return &providers.TxPayload{}, nil
}
func (s *stubAggregator) SupportsChain(chainID uint64) bool { return s.chains[chainID] }
func (s *stubAggregator) GetSupportedChains() []uint64 {
	out := make([]uint64, 0, len(s.chains))
	for c := range s.chains {
		out = append(out, c)
	}
	return out
}

func TestRegisterIdempotent(t *testing.T) {
	r := New()
	a1 := &stubAggregator{name: "0x", chains: map[uint64]bool{1: true}}
	a2 := &stubAggregator{name: "0x", chains: map[uint64]bool{137: true}}

	r.RegisterEvmAggregator(a1)
	r.RegisterEvmAggregator(a2) // duplicate name, should be ignored

	got, ok := r.GetEvmAggregatorByName("0x")
	if !ok {
		t.Fatal("expected provider to be registered")
	}
	if !got.SupportsChain(1) || got.SupportsChain(137) {
		t.Fatal("second registration under the same name must not overwrite the first")
	}
	if len(r.EvmAggregators()) != 1 {
		t.Fatalf("expected exactly 1 registered provider, got %d", len(r.EvmAggregators()))
	}
}

func TestLegacyMirror(t *testing.T) {
	r := New()
	r.RegisterEvmAggregator(&stubAggregator{name: "0x"})
	r.RegisterEvmAggregator(&stubAggregator{name: "odos"})
	r.RegisterEvmAggregator(&stubAggregator{name: "lifi-evm"})

	if _, ok := r.GetLegacy(domain.AggregatorZeroX); !ok {
		t.Fatal("expected 0x to be mirrored under AggregatorZeroX")
	}
	if _, ok := r.GetLegacy(domain.AggregatorOdos); !ok {
		t.Fatal("expected odos to be mirrored under AggregatorOdos")
	}
}

func TestIsEmptyAndRegistrationComplete(t *testing.T) {
	r := New()
	if !r.IsEmpty() {
		t.Fatal("expected fresh registry to be empty")
	}
	r.RegisterEvmAggregator(&stubAggregator{name: "0x"})
	if r.IsEmpty() {
		t.Fatal("expected registry to be non-empty after registration")
	}

	if r.RegistrationComplete() {
		t.Fatal("latch should not be set before OnRegistrationComplete")
	}
	r.OnRegistrationComplete()
	r.OnRegistrationComplete() // must be safe to call more than once
	if !r.RegistrationComplete() {
		t.Fatal("latch should be set after OnRegistrationComplete")
	}
}
