// Package health is the per-provider health cache: a lookup refreshes
// when the cached entry is older than the TTL, a probe failure yields an
// unhealthy record, and concurrent lookups for the same provider collapse
// into a single in-flight probe.
package health

import (
	"context"
	"sync"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// DefaultTTL is the cache freshness window: a cached ProviderHealth older
// than this is considered stale and re-probed on the next lookup.
const DefaultTTL = 5 * time.Minute

// DefaultProbeTimeout bounds a single health probe.
const DefaultProbeTimeout = 5 * time.Second

// Monitor is the sole writer of the health cache; readers (the quote
// orchestrator) obtain read-only snapshots via Get.
type Monitor struct {
	ttl     time.Duration
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]domain.ProviderHealth

	group singleflight.Group
}

// NewMonitor constructs a Monitor with the given TTL and probe timeout.
func NewMonitor(ttl, probeTimeout time.Duration) *Monitor {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Monitor{
		ttl:     ttl,
		timeout: probeTimeout,
		cache:   make(map[string]domain.ProviderHealth),
	}
}

// Get returns the current health for p, refreshing it first if the cached
// entry is absent or older than the TTL. Concurrent Get calls for the same
// provider name share a single probe.
func (m *Monitor) Get(ctx context.Context, p providers.Provider) domain.ProviderHealth {
	name := p.Name()

	m.mu.RLock()
	cached, ok := m.cache[name]
	m.mu.RUnlock()

	if ok && time.Since(cached.LastCheck) < m.ttl {
		return cached
	}

	result, _, _ := m.group.Do(name, func() (interface{}, error) {
		return m.probe(ctx, p), nil
	})
	return result.(domain.ProviderHealth)
}

// Snapshot returns the currently cached health for name without
// triggering a refresh, and whether an entry exists at all.
func (m *Monitor) Snapshot(name string) (domain.ProviderHealth, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.cache[name]
	return h, ok
}

func (m *Monitor) probe(ctx context.Context, p providers.Provider) domain.ProviderHealth {
	probeCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	h, err := p.Health(probeCtx)
	latencyMs := time.Since(start).Milliseconds()

	if err != nil {
		log.Warn().Str("provider", p.Name()).Err(err).Msg("health probe failed")
		errRate := 1.0
		h = domain.ProviderHealth{
			Name:      p.Name(),
			Status:    domain.HealthUnhealthy,
			ErrorRate: &errRate,
			LastCheck: time.Now(),
		}
	} else {
		h.LastCheck = time.Now()
		if h.Latency == nil {
			h.Latency = &latencyMs
		}
	}

	m.mu.Lock()
	m.cache[p.Name()] = h
	m.mu.Unlock()

	return h
}
