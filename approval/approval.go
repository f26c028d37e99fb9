// Package approval implements the EVM approval workflow: deciding
// whether a caller must grant allowance before a swap can execute, and
// resolving the address that allowance must be granted to.
package approval

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/evmchain"
	"github.com/fluxswap/gateway/providers"
	"github.com/rs/zerolog/log"
)

// DefaultSpenderTTL is how long a dynamically resolved allowance-holder
// spender address is trusted before being re-probed, unless a workflow
// is constructed with its own TTL.
const DefaultSpenderTTL = 24 * time.Hour

// ErrUnsupportedChain is returned when no spender can be resolved for a
// chain: neither the adapter probe nor the hardfork fallback table covers it.
var ErrUnsupportedChain = errors.New("approval: unsupported chain, no spender address available")

// hardforkFamily groups chains by EVM hardfork lineage for the
// allowance-holder fallback table. Each family maps to one known
// AllowanceHolder-equivalent spender address.
type hardforkFamily string

const (
	familyCancun   hardforkFamily = "cancun"
	familyShanghai hardforkFamily = "shanghai"
	familyLondon   hardforkFamily = "london"
)

// chainFamilies assigns each chain this gateway is aware of to its
// hardfork family, for the allowance-holder probe-failure fallback.
var chainFamilies = map[uint64]hardforkFamily{
	1:     familyCancun,   // Ethereum mainnet (Dencun)
	8453:  familyCancun,   // Base (Dencun)
	10:    familyCancun,   // Optimism (Dencun)
	137:   familyShanghai, // Polygon PoS (Shanghai-equivalent)
	56:    familyShanghai, // BNB Chain
	42161: familyLondon,   // Arbitrum One
	43114: familyLondon,   // Avalanche C-Chain
}

// familyFallbackSpenders is the hard-coded table of known spender
// addresses per hardfork family, consulted only when a dynamic
// allowance-holder probe fails.
var familyFallbackSpenders = map[hardforkFamily]string{
	familyCancun:   "0x0000000000001fF3684f28c67538d4D072C22734",
	familyShanghai: "0xDef1C0ded9bec7F1a1670819833240f027b25EfF",
	familyLondon:   "0xE592427A0AEce92De3Edee1F18E0157C05861564",
}

type spenderCacheEntry struct {
	address  string
	cachedAt time.Time
}

// Workflow evaluates approval need and resolves spender addresses for a
// single chain client.
type Workflow struct {
	client     *evmchain.Client
	spenderTTL time.Duration

	mu    sync.Mutex
	cache map[string]spenderCacheEntry // key: chainId:strategy:providerName
}

// NewWorkflow constructs a Workflow bound to client. spenderTTL bounds
// how long a dynamically resolved spender address is cached; a
// non-positive value selects DefaultSpenderTTL.
func NewWorkflow(client *evmchain.Client, spenderTTL time.Duration) *Workflow {
	if spenderTTL <= 0 {
		spenderTTL = DefaultSpenderTTL
	}
	return &Workflow{client: client, spenderTTL: spenderTTL, cache: make(map[string]spenderCacheEntry)}
}

// IsApprovalNeeded implements isApprovalNeeded: native tokens never need
// approval; Permit2-compatible tokens on Permit2-supported chains are
// checked against the Permit2 contract; everything else falls back to a
// plain ERC-20 allowance read.
func (w *Workflow) IsApprovalNeeded(ctx context.Context, chainID uint64, token, owner, spender string, amount *big.Int) (bool, error) {
	if domain.IsNativeSentinel(token) {
		return false, nil
	}

	if domain.Permit2ChainIDs[chainID] && isTokenPermit2Compatible(token) {
		p2, err := w.client.Permit2AllowanceOf(ctx, domain.Permit2ContractAddress, owner, token, spender)
		if err != nil {
			// Conservative default: an unreadable Permit2 allowance is
			// treated as approval-needed. The structured log is the
			// diagnostic channel for a misconfigured contract address.
			log.Warn().Uint64("chainId", chainID).Str("token", token).Err(err).
				Msg("permit2 allowance read failed, assuming approval needed")
			return true, nil
		}
		expired := p2.Expiration < time.Now().Unix()
		insufficient := p2.Amount.Cmp(amount) < 0
		return expired || insufficient, nil
	}

	allowed, err := w.client.ERC20Allowance(ctx, token, owner, spender)
	if err != nil {
		return false, fmt.Errorf("approval: erc20 allowance read: %w", err)
	}
	return allowed.Cmp(amount) < 0, nil
}

// isTokenPermit2Compatible reports whether token can be approved through
// Permit2 rather than a direct ERC-20 approval. Every non-native ERC-20
// token is treated as Permit2-compatible: Permit2 wraps the standard
// allowance/transferFrom surface and imposes no additional token-level
// requirement, so the only real exclusion is the native-token sentinel
// already handled by IsApprovalNeeded's first branch.
func isTokenPermit2Compatible(token string) bool {
	return !domain.IsNativeSentinel(token)
}

// ResolveSpender resolves the address that must be approved for strategy
// on chainID. Permit2 resolves directly to the canonical contract
// address. AllowanceHolder probes adapter (if it implements
// EvmSpenderProvider), caching the result for the workflow's spender
// TTL; on probe
// failure or absence of the capability, falls back to the hardfork-family
// table.
func (w *Workflow) ResolveSpender(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy, adapter providers.Provider) (string, error) {
	if strategy == domain.ApprovalStrategyPermit2 {
		return domain.Permit2ContractAddress, nil
	}

	key := fmt.Sprintf("%d:%s:%s", chainID, strategy, adapter.Name())

	w.mu.Lock()
	if entry, ok := w.cache[key]; ok && time.Since(entry.cachedAt) < w.spenderTTL {
		w.mu.Unlock()
		return entry.address, nil
	}
	w.mu.Unlock()

	if spenderProvider, ok := adapter.(providers.EvmSpenderProvider); ok {
		addr, err := spenderProvider.GetSpenderAddress(ctx, chainID, strategy)
		if err == nil && addr != "" {
			w.mu.Lock()
			w.cache[key] = spenderCacheEntry{address: addr, cachedAt: time.Now()}
			w.mu.Unlock()
			return addr, nil
		}
		log.Warn().Str("provider", adapter.Name()).Uint64("chainId", chainID).Err(err).
			Msg("spender probe failed, falling back to hardfork-family table")
	}

	family, ok := chainFamilies[chainID]
	if !ok {
		return "", fmt.Errorf("%w: chain %d", ErrUnsupportedChain, chainID)
	}
	addr, ok := familyFallbackSpenders[family]
	if !ok {
		return "", fmt.Errorf("%w: chain %d (family %s)", ErrUnsupportedChain, chainID, family)
	}
	return addr, nil
}

// InvalidateSpenderCache clears any cached spender address for key,
// forcing the next ResolveSpender call to re-probe. Intended for
// administrative use (e.g. after a known spender migration).
func (w *Workflow) InvalidateSpenderCache(chainID uint64, strategy domain.ApprovalStrategy, providerName string) {
	key := fmt.Sprintf("%d:%s:%s", chainID, strategy, providerName)
	w.mu.Lock()
	delete(w.cache, key)
	w.mu.Unlock()
}
