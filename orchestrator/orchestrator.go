// Package orchestrator is the quote orchestrator: it scores and selects
// among registered adapters for a single best quote, or fans out to every
// supported adapter in parallel for price comparison.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/health"
	"github.com/fluxswap/gateway/providers"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNoProviderForChain is returned when no registered adapter supports
// the request's chain.
var ErrNoProviderForChain = errors.New("orchestrator: no provider supports this chain")

// ErrAllProvidersFailed is returned when every candidate adapter's
// GetQuote call failed.
var ErrAllProvidersFailed = errors.New("orchestrator: all candidate providers failed")

// Orchestrator scores and selects among a fixed set of registered EVM
// aggregators.
type Orchestrator struct {
	monitor *health.Monitor
}

// New constructs an Orchestrator bound to monitor.
func New(monitor *health.Monitor) *Orchestrator {
	return &Orchestrator{monitor: monitor}
}

type scoredAdapter struct {
	adapter providers.OnChainAggregator
	score   int
	health  domain.ProviderHealth
}

// GetQuote resolves a single best quote. If preferredName names a
// registered adapter it is tried first; on failure, or when absent,
// dynamic selection scores and tries every supported adapter in order
// until one succeeds.
func (o *Orchestrator) GetQuote(ctx context.Context, candidates []providers.OnChainAggregator, req *domain.SwapRequest, preferredName string, strict bool) (*domain.SwapQuote, error) {
	if preferredName != "" {
		for _, a := range candidates {
			if a.Name() == preferredName {
				q, err := quoteFrom(ctx, a, req, strict)
				if err == nil {
					return q, nil
				}
				log.Warn().Str("provider", preferredName).Err(err).Msg("preferred provider failed, falling through to dynamic selection")
				break
			}
		}
	}

	supported := supportedFor(candidates, req.ChainID)
	if len(supported) == 0 {
		return nil, fmt.Errorf("%w: chain %d (supported: %v)", ErrNoProviderForChain, req.ChainID, supportedChainsUnion(candidates))
	}

	scored := o.scoreAll(ctx, supported, req)
	healthy := filterHealthy(scored)
	pool := healthy
	if len(pool) == 0 {
		log.Warn().Uint64("chainId", req.ChainID).Msg("no healthy providers, entering fallback mode over unfiltered set")
		pool = scored
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].score > pool[j].score })

	var lastErr error
	for _, s := range pool {
		q, err := quoteFrom(ctx, s.adapter, req, strict)
		if err != nil {
			lastErr = err
			log.Warn().Str("provider", s.adapter.Name()).Err(err).Msg("provider quote failed, trying next candidate")
			continue
		}
		return q, nil
	}

	if lastErr != nil {
		return nil, fmt.Errorf("%w: last error: %v", ErrAllProvidersFailed, lastErr)
	}
	return nil, ErrAllProvidersFailed
}

// GetMultipleQuotes fans out to every supported adapter in parallel and
// returns every successful quote, tolerating partial failure. It fails
// only when every adapter fails.
func (o *Orchestrator) GetMultipleQuotes(ctx context.Context, candidates []providers.OnChainAggregator, req *domain.SwapRequest, strict bool) ([]*domain.SwapQuote, error) {
	supported := supportedFor(candidates, req.ChainID)
	if len(supported) == 0 {
		return nil, fmt.Errorf("%w: chain %d (supported: %v)", ErrNoProviderForChain, req.ChainID, supportedChainsUnion(candidates))
	}

	results := make([]*domain.SwapQuote, len(supported))
	g, gctx := errgroup.WithContext(ctx)
	for i, a := range supported {
		i, a := i, a
		g.Go(func() error {
			q, err := quoteFrom(gctx, a, req, strict)
			if err != nil {
				log.Warn().Str("provider", a.Name()).Err(err).Msg("provider quote failed during fan-out")
				return nil
			}
			results[i] = q
			return nil
		})
	}
	_ = g.Wait() // individual failures are tolerated; nothing propagates an error here

	out := make([]*domain.SwapQuote, 0, len(results))
	for _, q := range results {
		if q != nil {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, ErrAllProvidersFailed
	}
	return out, nil
}

// quoteFrom asks a for the quote variant matching the request's approval
// strategy: an adapter exposing the optional permit2 capability serves
// permit2-strategy requests through its dedicated quote endpoint, so the
// returned quote carries the typed-data block the signing workflow needs.
func quoteFrom(ctx context.Context, a providers.OnChainAggregator, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error) {
	if req.ApprovalStrategy == domain.ApprovalStrategyPermit2 {
		if p2, ok := a.(providers.EvmPermit2Provider); ok {
			return p2.GetPermit2Quote(ctx, req)
		}
	}
	return a.GetQuote(ctx, req, strict)
}

func (o *Orchestrator) scoreAll(ctx context.Context, candidates []providers.OnChainAggregator, req *domain.SwapRequest) []scoredAdapter {
	out := make([]scoredAdapter, 0, len(candidates))
	for _, a := range candidates {
		h := o.monitor.Get(ctx, a)
		out = append(out, scoredAdapter{
			adapter: a,
			health:  h,
			score:   Score(a.Name(), h, req),
		})
	}
	return out
}

// Score ranks a provider for a request: a base of 100, a healthy
// bonus, a latency bonus, an error-rate penalty, name/chain nudges, a
// trade-size nudge, and a strategy nudge, clamped to >= 0.
func Score(name string, h domain.ProviderHealth, req *domain.SwapRequest) int {
	score := 100

	if h.IsHealthy() {
		score += 50
		if h.Latency != nil {
			bonus := 100 - int(*h.Latency)
			if bonus > 0 {
				score += bonus
			}
		}
	} else {
		score -= 100
	}

	if h.ErrorRate != nil {
		score -= int(100 * *h.ErrorRate)
	}

	if req.ChainID == 1 && name == "0x" {
		score += 20
	}
	if req.ChainID == 137 && name == "odos" {
		score += 15
	}

	threshold := new(big.Int)
	threshold.Exp(big.NewInt(10), big.NewInt(21), nil)
	if req.SellAmount.Int != nil && req.SellAmount.Cmp(threshold) > 0 && name == "0x" {
		score += 10
	}

	if req.ApprovalStrategy == domain.ApprovalStrategyPermit2 && name == "0x" {
		score += 25
	}

	if score < 0 {
		score = 0
	}
	return score
}

func filterHealthy(scored []scoredAdapter) []scoredAdapter {
	out := make([]scoredAdapter, 0, len(scored))
	for _, s := range scored {
		if s.health.IsHealthy() {
			out = append(out, s)
		}
	}
	return out
}

func supportedFor(candidates []providers.OnChainAggregator, chainID uint64) []providers.OnChainAggregator {
	out := make([]providers.OnChainAggregator, 0, len(candidates))
	for _, a := range candidates {
		if a.SupportsChain(chainID) {
			out = append(out, a)
		}
	}
	return out
}

func supportedChainsUnion(candidates []providers.OnChainAggregator) []uint64 {
	seen := make(map[uint64]bool)
	var out []uint64
	for _, a := range candidates {
		for _, c := range a.GetSupportedChains() {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Recommend picks the quote whose provider scores highest for req,
// breaking ties by buyAmount. This is the one place provider-name and
// chain nudges apply to a comparison result; BestQuote stays a pure
// argmax-buyAmount so price-difference reporting is not skewed by
// scoring bonuses.
func (o *Orchestrator) Recommend(ctx context.Context, candidates []providers.OnChainAggregator, req *domain.SwapRequest, quotes []*domain.SwapQuote) (*domain.SwapQuote, bool) {
	if len(quotes) == 0 {
		return nil, false
	}

	healthByName := make(map[string]domain.ProviderHealth, len(candidates))
	for _, a := range candidates {
		healthByName[a.Name()] = o.monitor.Get(ctx, a)
	}

	best := quotes[0]
	bestScore := Score(best.Aggregator, healthByName[best.Aggregator], req)
	for _, q := range quotes[1:] {
		s := Score(q.Aggregator, healthByName[q.Aggregator], req)
		if s > bestScore || (s == bestScore && cmpBigInt(q.BuyAmount, best.BuyAmount) > 0) {
			best = q
			bestScore = s
		}
	}
	return best, true
}

// BestQuote returns the quote with the maximal buyAmount (unbounded
// integer comparison) among quotes.
func BestQuote(quotes []providers.QuoteResult) (providers.QuoteResult, bool) {
	if len(quotes) == 0 {
		return providers.QuoteResult{}, false
	}
	best := quotes[0]
	for _, q := range quotes[1:] {
		if cmpBigInt(q.BuyAmount(), best.BuyAmount()) > 0 {
			best = q
		}
	}
	return best, true
}

// cmpBigInt compares two BigInts, treating a nil-backed value as zero.
func cmpBigInt(a, b domain.BigInt) int {
	av, bv := a.Int, b.Int
	if av == nil {
		av = big.NewInt(0)
	}
	if bv == nil {
		bv = big.NewInt(0)
	}
	return av.Cmp(bv)
}

// PriceDifferencePercent computes (best-worst)/worst*100, rounded to two
// decimal places, among quotes. Returns 0 if fewer than two quotes or the
// worst amount is zero.
func PriceDifferencePercent(quotes []providers.QuoteResult) float64 {
	if len(quotes) < 2 {
		return 0
	}
	best := quotes[0].BuyAmount()
	worst := quotes[0].BuyAmount()
	for _, q := range quotes[1:] {
		amt := q.BuyAmount()
		if amt.Int == nil {
			continue
		}
		if best.Int == nil || amt.Cmp(best.Int) > 0 {
			best = amt
		}
		if worst.Int == nil || amt.Cmp(worst.Int) < 0 {
			worst = amt
		}
	}
	if worst.Int == nil || worst.Sign() == 0 {
		return 0
	}

	diff := new(big.Int).Sub(best.Int, worst.Int)
	// Scale by 10000 before dividing by worst to retain two decimal places
	// of precision in integer arithmetic, then convert to float for display.
	scaled := new(big.Int).Mul(diff, big.NewInt(10000))
	scaled.Div(scaled, worst.Int)
	pct := float64(scaled.Int64()) / 100.0
	return roundTwoDecimals(pct)
}

func roundTwoDecimals(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
