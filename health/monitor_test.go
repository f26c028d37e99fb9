package health

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
)

type countingProvider struct {
	name    string
	calls   int32
	healthy bool
	delay   time.Duration
}

func (p *countingProvider) Name() string { return p.name }
func (p *countingProvider) Config() providers.Config { return providers.Config{} }
func (p *countingProvider) Health(ctx context.Context) (domain.ProviderHealth, error) {
	atomic.AddInt32(&p.calls, 1)
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return domain.ProviderHealth{}, ctx.Err()
		}
	}
	if !p.healthy {
		return domain.ProviderHealth{}, errors.New("probe failed")
	}
	return domain.ProviderHealth{Name: p.name, Status: domain.HealthHealthy}, nil
}

func TestGetRefreshesWhenStale(t *testing.T) {
	m := NewMonitor(10*time.Millisecond, time.Second)
	p := &countingProvider{name: "0x", healthy: true}

	h := m.Get(context.Background(), p)
	if !h.IsHealthy() {
		t.Fatal("expected healthy result")
	}
	if atomic.LoadInt32(&p.calls) != 1 {
		t.Fatalf("expected 1 probe, got %d", p.calls)
	}

	time.Sleep(20 * time.Millisecond)
	m.Get(context.Background(), p)
	if atomic.LoadInt32(&p.calls) != 2 {
		t.Fatalf("expected a second probe after TTL expiry, got %d", p.calls)
	}
}

func TestGetUsesCacheWithinTTL(t *testing.T) {
	m := NewMonitor(time.Minute, time.Second)
	p := &countingProvider{name: "odos", healthy: true}

	m.Get(context.Background(), p)
	m.Get(context.Background(), p)
	m.Get(context.Background(), p)

	if atomic.LoadInt32(&p.calls) != 1 {
		t.Fatalf("expected cached result to avoid re-probing, got %d calls", p.calls)
	}
}

func TestProbeFailureYieldsUnhealthy(t *testing.T) {
	m := NewMonitor(time.Minute, time.Second)
	p := &countingProvider{name: "lifi", healthy: false}

	h := m.Get(context.Background(), p)
	if h.Status != domain.HealthUnhealthy {
		t.Fatalf("expected unhealthy status, got %v", h.Status)
	}
	if h.ErrorRate == nil || *h.ErrorRate != 1.0 {
		t.Fatal("expected errorRate 1 on probe failure")
	}
}

func TestConcurrentGetCollapsesIntoSingleProbe(t *testing.T) {
	m := NewMonitor(time.Minute, time.Second)
	p := &countingProvider{name: "0x", healthy: true, delay: 50 * time.Millisecond}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			m.Get(context.Background(), p)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	if atomic.LoadInt32(&p.calls) != 1 {
		t.Fatalf("expected concurrent lookups to collapse into 1 probe, got %d", p.calls)
	}
}

func TestSnapshotWithoutRefresh(t *testing.T) {
	m := NewMonitor(time.Minute, time.Second)
	p := &countingProvider{name: "0x", healthy: true}

	if _, ok := m.Snapshot("0x"); ok {
		t.Fatal("expected no snapshot before first Get")
	}
	m.Get(context.Background(), p)
	h, ok := m.Snapshot("0x")
	if !ok || !h.IsHealthy() {
		t.Fatal("expected a healthy snapshot after Get")
	}
}
