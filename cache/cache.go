// Package cache implements the supported-quote cache: which sell tokens
// and which buy tokens have been observed in a positive-liquidity quote on
// a given chain, kept as two independent sets per chain. It grows monotonically from successful pre-flight checks
// and quote requests, and is only ever reduced by an explicit admin clear.
package cache

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/fluxswap/gateway/storage"
	"github.com/rs/zerolog/log"
)

const keyPrefix = "supported:"

// SupportedQuoteCache tracks, per chain, every sell/buy token observed to
// have liquidity, backed by a storage.Store so it can survive a restart.
type SupportedQuoteCache struct {
	store storage.Store

	mu     sync.RWMutex
	chains map[uint64]*tokenSets
}

type tokenSets struct {
	SellTokens map[string]bool `json:"sellTokens"`
	BuyTokens  map[string]bool `json:"buyTokens"`
}

func newTokenSets() *tokenSets {
	return &tokenSets{SellTokens: make(map[string]bool), BuyTokens: make(map[string]bool)}
}

// NewSupportedQuoteCache constructs a cache backed by store, loading any
// previously persisted state.
func NewSupportedQuoteCache(store storage.Store) *SupportedQuoteCache {
	c := &SupportedQuoteCache{store: store, chains: make(map[uint64]*tokenSets)}
	c.load()
	return c
}

func (c *SupportedQuoteCache) load() {
	keys, err := c.store.Keys(keyPrefix)
	if err != nil {
		log.Warn().Err(err).Msg("supported-quote cache: failed to list persisted keys")
		return
	}
	for _, key := range keys {
		val, found, err := c.store.Get(key)
		if err != nil || !found {
			continue
		}
		var chainID uint64
		if _, err := fmt.Sscanf(key, keyPrefix+"%d", &chainID); err != nil {
			continue
		}
		var sets tokenSets
		if err := json.Unmarshal(val, &sets); err != nil {
			continue
		}
		c.chains[chainID] = &sets
	}
}

// MarkSupported records that sellToken and buyToken are known to have
// liquidity on chainID. Growth is monotonic: existing entries are never
// removed by this call. Tokens are normalized to lower-hex, matching
// domain.EqualAddress's case-insensitive comparison, so the same token
// under differing case folds into one entry.
func (c *SupportedQuoteCache) MarkSupported(chainID uint64, sellToken, buyToken string) {
	sellToken = strings.ToLower(sellToken)
	buyToken = strings.ToLower(buyToken)

	c.mu.Lock()
	defer c.mu.Unlock()

	sets, ok := c.chains[chainID]
	if !ok {
		sets = newTokenSets()
		c.chains[chainID] = sets
	}
	sets.SellTokens[sellToken] = true
	sets.BuyTokens[buyToken] = true

	c.persist(chainID, sets)
}

// IsSupported reports whether sellToken and buyToken have both previously
// been observed with liquidity on chainID.
func (c *SupportedQuoteCache) IsSupported(chainID uint64, sellToken, buyToken string) bool {
	sellToken = strings.ToLower(sellToken)
	buyToken = strings.ToLower(buyToken)

	c.mu.RLock()
	defer c.mu.RUnlock()
	sets, ok := c.chains[chainID]
	if !ok {
		return false
	}
	return sets.SellTokens[sellToken] && sets.BuyTokens[buyToken]
}

// HasChain reports whether chainID has any recorded entry at all,
// regardless of which specific token pair produced it. This backs
// routing.Classifier's chain-compatibility fallback.
func (c *SupportedQuoteCache) HasChain(chainID uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.chains[chainID]
	return ok
}

// SupportedTokens returns the distinct sell and buy tokens recorded for
// chainID.
func (c *SupportedQuoteCache) SupportedTokens(chainID uint64) (sell []string, buy []string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sets, ok := c.chains[chainID]
	if !ok {
		return nil, nil
	}
	for t := range sets.SellTokens {
		sell = append(sell, t)
	}
	for t := range sets.BuyTokens {
		buy = append(buy, t)
	}
	return sell, buy
}

// Clear wipes every recorded chain. Intended for administrative use.
func (c *SupportedQuoteCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for chainID := range c.chains {
		_ = c.store.Delete(fmt.Sprintf("%s%d", keyPrefix, chainID))
	}
	c.chains = make(map[uint64]*tokenSets)
	log.Info().Msg("supported-quote cache cleared")
}

func (c *SupportedQuoteCache) persist(chainID uint64, sets *tokenSets) {
	data, err := json.Marshal(sets)
	if err != nil {
		log.Warn().Err(err).Uint64("chainId", chainID).Msg("failed to marshal supported-quote entry")
		return
	}
	key := fmt.Sprintf("%s%d", keyPrefix, chainID)
	if err := c.store.Set(key, data); err != nil {
		log.Warn().Err(err).Uint64("chainId", chainID).Msg("failed to persist supported-quote entry")
	}
}
