// Package registry is the provider self-registration target: a dynamic,
// name-keyed map per provider category, populated at startup without any
// central knowledge of which concrete adapters exist. Adapters call
// Register* from their own init-style constructors during the
// composition root's startup sequence; the registry itself never imports
// a concrete adapter package.
package registry

import (
	"sync"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/providers"
	"github.com/rs/zerolog/log"
)

// Registry holds the four category maps plus the legacy AggregatorType
// mirror and the registration-complete latch.
type Registry struct {
	mu sync.RWMutex

	evmAggregators  map[string]providers.OnChainAggregator
	metaAggregators map[string]providers.MetaAggregator
	solanaRouters   map[string]providers.SolanaRouter
	nativeRouters   map[string]providers.NativeRouter

	legacy map[domain.AggregatorType]providers.OnChainAggregator

	completeOnce sync.Once
	complete     bool
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		evmAggregators:  make(map[string]providers.OnChainAggregator),
		metaAggregators: make(map[string]providers.MetaAggregator),
		solanaRouters:   make(map[string]providers.SolanaRouter),
		nativeRouters:   make(map[string]providers.NativeRouter),
		legacy:          make(map[domain.AggregatorType]providers.OnChainAggregator),
	}
}

// RegisterEvmAggregator registers an OnChainAggregator under
// ProviderCategory evm-aggregator. A second registration of the same name
// is ignored with a warning — registration is idempotent. Adapters named
// "0x" or "odos" are additionally mirrored into the legacy AggregatorType
// map for backward compatibility.
func (r *Registry) RegisterEvmAggregator(p providers.OnChainAggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if _, exists := r.evmAggregators[name]; exists {
		log.Warn().Str("provider", name).Str("category", "evm-aggregator").Msg("duplicate provider registration ignored")
		return
	}
	r.evmAggregators[name] = p

	if legacyType, ok := legacyTypeFor(name); ok {
		r.legacy[legacyType] = p
	}

	r.logRegistration(name, "evm-aggregator")
}

// RegisterMetaAggregator registers a MetaAggregator, idempotently.
func (r *Registry) RegisterMetaAggregator(p providers.MetaAggregator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.metaAggregators[name]; exists {
		log.Warn().Str("provider", name).Str("category", "meta-aggregator").Msg("duplicate provider registration ignored")
		return
	}
	r.metaAggregators[name] = p
	r.logRegistration(name, "meta-aggregator")
}

// RegisterSolanaRouter registers a SolanaRouter, idempotently.
func (r *Registry) RegisterSolanaRouter(p providers.SolanaRouter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.solanaRouters[name]; exists {
		log.Warn().Str("provider", name).Str("category", "solana-router").Msg("duplicate provider registration ignored")
		return
	}
	r.solanaRouters[name] = p
	r.logRegistration(name, "solana-router")
}

// RegisterNativeRouter registers a NativeRouter, idempotently.
func (r *Registry) RegisterNativeRouter(p providers.NativeRouter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := p.Name()
	if _, exists := r.nativeRouters[name]; exists {
		log.Warn().Str("provider", name).Str("category", "native-router").Msg("duplicate provider registration ignored")
		return
	}
	r.nativeRouters[name] = p
	r.logRegistration(name, "native-router")
}

// Register dispatches to the category-specific method matching cat.
func (r *Registry) Register(p providers.Provider, cat domain.ProviderCategory) {
	switch cat {
	case domain.CategoryEvmAggregator:
		if a, ok := p.(providers.OnChainAggregator); ok {
			r.RegisterEvmAggregator(a)
		}
	case domain.CategoryMetaAggregator:
		if a, ok := p.(providers.MetaAggregator); ok {
			r.RegisterMetaAggregator(a)
		}
	case domain.CategorySolanaRouter:
		if a, ok := p.(providers.SolanaRouter); ok {
			r.RegisterSolanaRouter(a)
		}
	case domain.CategoryNativeRouter:
		if a, ok := p.(providers.NativeRouter); ok {
			r.RegisterNativeRouter(a)
		}
	}
}

func (r *Registry) logRegistration(name, category string) {
	if r.complete {
		// Post-barrier registrations remain valid but are not announced.
		return
	}
	log.Info().Str("provider", name).Str("category", category).Msg("provider registered")
}

func legacyTypeFor(name string) (domain.AggregatorType, bool) {
	switch name {
	case "0x":
		return domain.AggregatorZeroX, true
	case "odos":
		return domain.AggregatorOdos, true
	default:
		return "", false
	}
}

// EvmAggregators returns a snapshot slice of all registered OnChainAggregators.
func (r *Registry) EvmAggregators() []providers.OnChainAggregator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]providers.OnChainAggregator, 0, len(r.evmAggregators))
	for _, p := range r.evmAggregators {
		out = append(out, p)
	}
	return out
}

// MetaAggregators returns a snapshot slice of all registered MetaAggregators.
func (r *Registry) MetaAggregators() []providers.MetaAggregator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]providers.MetaAggregator, 0, len(r.metaAggregators))
	for _, p := range r.metaAggregators {
		out = append(out, p)
	}
	return out
}

// SolanaRouters returns a snapshot slice of all registered SolanaRouters.
func (r *Registry) SolanaRouters() []providers.SolanaRouter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]providers.SolanaRouter, 0, len(r.solanaRouters))
	for _, p := range r.solanaRouters {
		out = append(out, p)
	}
	return out
}

// NativeRouters returns a snapshot slice of all registered NativeRouters.
func (r *Registry) NativeRouters() []providers.NativeRouter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]providers.NativeRouter, 0, len(r.nativeRouters))
	for _, p := range r.nativeRouters {
		out = append(out, p)
	}
	return out
}

// GetEvmAggregatorByName looks up a registered EVM aggregator by name.
func (r *Registry) GetEvmAggregatorByName(name string) (providers.OnChainAggregator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.evmAggregators[name]
	return p, ok
}

// GetLegacy looks up an EVM aggregator by its legacy AggregatorType.
func (r *Registry) GetLegacy(t domain.AggregatorType) (providers.OnChainAggregator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.legacy[t]
	return p, ok
}

// IsEmpty reports whether no provider has been registered in any category
// yet — used by the routing classifier's bootstrap chain-compatibility
// check.
func (r *Registry) IsEmpty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.evmAggregators) == 0 && len(r.metaAggregators) == 0 &&
		len(r.solanaRouters) == 0 && len(r.nativeRouters) == 0
}

// OnRegistrationComplete transitions the registration-complete latch
// exactly once. Registrations arriving afterward remain valid but are no
// longer announced via Info-level logging.
func (r *Registry) OnRegistrationComplete() {
	r.completeOnce.Do(func() {
		r.mu.Lock()
		r.complete = true
		r.mu.Unlock()
		log.Info().Msg("provider registration complete")
	})
}

// RegistrationComplete reports whether the barrier has been crossed.
func (r *Registry) RegistrationComplete() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.complete
}
