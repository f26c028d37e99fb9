package approval

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
)

type fakeSpenderAdapter struct {
	name    string
	addr    string
	fail    bool
	probes  int
}

func (f *fakeSpenderAdapter) Name() string { return f.name }
func (f *fakeSpenderAdapter) Health(ctx context.Context) (domain.ProviderHealth, error) {
	return domain.ProviderHealth{Name: f.name, Status: domain.HealthHealthy}, nil
}
func (f *fakeSpenderAdapter) Config() providers.Config { return providers.Config{} }
func (f *fakeSpenderAdapter) GetSpenderAddress(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy) (string, error) {
	f.probes++
	if f.fail {
		return "", errProbe
	}
	return f.addr, nil
}

type probeErr struct{}

func (probeErr) Error() string { return "probe failed" }

var errProbe = probeErr{}

func TestIsApprovalNeededNativeTokenNeverNeeded(t *testing.T) {
	w := NewWorkflow(nil, 0)
	needed, err := w.IsApprovalNeeded(context.Background(), 1, domain.NativeSentinelZero, "0xowner", "0xspender", big.NewInt(100))
	if err != nil {
		t.Fatal(err)
	}
	if needed {
		t.Fatal("expected native token to never need approval")
	}
}

func TestResolveSpenderPermit2StrategyIsCanonical(t *testing.T) {
	w := NewWorkflow(nil, 0)
	addr, err := w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyPermit2, &fakeSpenderAdapter{name: "0x"})
	if err != nil {
		t.Fatal(err)
	}
	if addr != domain.Permit2ContractAddress {
		t.Fatalf("expected canonical permit2 address, got %s", addr)
	}
}

func TestResolveSpenderAllowanceHolderProbesAndCaches(t *testing.T) {
	w := NewWorkflow(nil, 0)
	a := &fakeSpenderAdapter{name: "0x", addr: "0xaaaa"}

	addr1, err := w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)
	if err != nil {
		t.Fatal(err)
	}
	addr2, err := w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)
	if err != nil {
		t.Fatal(err)
	}
	if addr1 != "0xaaaa" || addr2 != "0xaaaa" {
		t.Fatalf("unexpected addresses: %s, %s", addr1, addr2)
	}
	if a.probes != 1 {
		t.Fatalf("expected a single probe due to caching, got %d", a.probes)
	}
}

func TestResolveSpenderFallsBackOnProbeFailure(t *testing.T) {
	w := NewWorkflow(nil, 0)
	a := &fakeSpenderAdapter{name: "0x", fail: true}

	addr, err := w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)
	if err != nil {
		t.Fatal(err)
	}
	if addr == "" {
		t.Fatal("expected fallback table to supply an address")
	}
}

func TestResolveSpenderUnsupportedChainFails(t *testing.T) {
	w := NewWorkflow(nil, 0)
	a := &fakeSpenderAdapter{name: "0x", fail: true}

	_, err := w.ResolveSpender(context.Background(), 999999, domain.ApprovalStrategyAllowanceHolder, a)
	if err == nil {
		t.Fatal("expected unsupported-chain error")
	}
}

func TestResolveSpenderExpiredTTLForcesReProbe(t *testing.T) {
	w := NewWorkflow(nil, time.Nanosecond)
	a := &fakeSpenderAdapter{name: "0x", addr: "0xaaaa"}

	w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)
	time.Sleep(time.Millisecond)
	w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)

	if a.probes != 2 {
		t.Fatalf("expected an expired cache entry to force a second probe, got %d", a.probes)
	}
}

func TestInvalidateSpenderCacheForcesReProbe(t *testing.T) {
	w := NewWorkflow(nil, 0)
	a := &fakeSpenderAdapter{name: "0x", addr: "0xaaaa"}

	w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)
	w.InvalidateSpenderCache(1, domain.ApprovalStrategyAllowanceHolder, "0x")
	w.ResolveSpender(context.Background(), 1, domain.ApprovalStrategyAllowanceHolder, a)

	if a.probes != 2 {
		t.Fatalf("expected invalidation to force a second probe, got %d", a.probes)
	}
}
