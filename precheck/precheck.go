// Package precheck runs the universal pre-flight check: five independent
// probes that never short-circuit each other, each recording its own
// boolean (or skip) and any warning.
package precheck

import (
	"context"
	"fmt"

	"github.com/fluxswap/gateway/approval"
	"github.com/fluxswap/gateway/cache"
	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/evmchain"
	"github.com/fluxswap/gateway/health"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/providers"
	"github.com/fluxswap/gateway/routing"
	"github.com/rs/zerolog/log"
)

// Result is the structured outcome of running every probe.
type Result struct {
	ParametersValid    bool
	LiquidityAvailable bool
	ApprovalRequired   *bool // nil means "skipped": spender could not be determined
	SufficientBalance  bool
	ProviderHealthy    bool
	Warnings           []string
	Details            map[string]string
}

func (r *Result) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// Checker holds the collaborators every probe needs.
type Checker struct {
	classifier *routing.Classifier
	orch       *orchestrator.Orchestrator
	appr       *approval.Workflow
	chain      *evmchain.Client
	monitor    *health.Monitor
	quoteCache *cache.SupportedQuoteCache
}

// NewChecker constructs a Checker from its collaborators.
func NewChecker(classifier *routing.Classifier, orch *orchestrator.Orchestrator, appr *approval.Workflow, chain *evmchain.Client, monitor *health.Monitor, quoteCache *cache.SupportedQuoteCache) *Checker {
	return &Checker{classifier: classifier, orch: orch, appr: appr, chain: chain, monitor: monitor, quoteCache: quoteCache}
}

// Run executes all five probes against req over candidates, in order,
// none short-circuiting the others.
func (c *Checker) Run(ctx context.Context, req *domain.SwapRequest, candidates []providers.OnChainAggregator) (*Result, error) {
	result := &Result{Details: make(map[string]string)}

	// 1. parametersValid
	result.ParametersValid = c.classifier.IsChainCompatible(domain.EcosystemEVM, req.ChainID)
	if !result.ParametersValid {
		result.warn(fmt.Sprintf("chain %d is not currently supported", req.ChainID))
	}

	// 2. liquidityAvailable
	quotes, qErr := c.orch.GetMultipleQuotes(ctx, candidates, req, false)
	if qErr != nil {
		result.LiquidityAvailable = false
		result.warn("no adapter returned a usable quote")
	} else {
		for _, q := range quotes {
			if q.BuyAmount.Int != nil && q.BuyAmount.Sign() > 0 {
				result.LiquidityAvailable = true
				break
			}
		}
		if result.LiquidityAvailable {
			c.quoteCache.MarkSupported(req.ChainID, req.SellToken, req.BuyToken)
		} else {
			result.warn("no quote returned a positive buyAmount")
		}
	}

	// 3. approvalRequired
	if domain.IsNativeSentinel(req.SellToken) {
		falseVal := false
		result.ApprovalRequired = &falseVal
	} else {
		adapter := findAdapter(candidates, req.Aggregator)
		if adapter == nil {
			result.ApprovalRequired = nil
			result.warn("approval requirement skipped: no adapter available to resolve spender")
		} else {
			spender, err := c.appr.ResolveSpender(ctx, req.ChainID, effectiveStrategy(req), adapter)
			if err != nil {
				result.ApprovalRequired = nil
				result.warn("approval requirement skipped: spender could not be determined")
			} else {
				needed, err := c.appr.IsApprovalNeeded(ctx, req.ChainID, req.SellToken, req.Taker, spender, req.SellAmount.Int)
				if err != nil {
					result.ApprovalRequired = nil
					result.warn("approval requirement skipped: allowance read failed")
				} else {
					result.ApprovalRequired = &needed
				}
			}
		}
	}

	// 4. sufficientBalance
	balanceKnown := true
	if domain.IsNativeSentinel(req.SellToken) {
		bal, err := c.chain.NativeBalanceAt(ctx, req.Taker)
		if err != nil {
			balanceKnown = false
			result.warn("could not read native balance")
		} else {
			result.SufficientBalance = bal.Cmp(req.SellAmount.Int) >= 0
		}
	} else {
		bal, err := c.chain.ERC20BalanceOf(ctx, req.SellToken, req.Taker)
		if err != nil {
			balanceKnown = false
			result.warn("could not read token balance")
		} else {
			result.SufficientBalance = bal.Cmp(req.SellAmount.Int) >= 0
		}
	}
	if balanceKnown && !result.SufficientBalance {
		result.warn("balance is insufficient for the requested sell amount")
	}

	// 5. providerHealthy
	result.ProviderHealthy = true
	for _, a := range candidates {
		h := c.monitor.Get(ctx, a)
		if !h.IsHealthy() {
			result.ProviderHealthy = false
			result.warn(fmt.Sprintf("provider %s is not healthy", a.Name()))
		}
	}

	log.Info().
		Uint64("chainId", req.ChainID).
		Bool("parametersValid", result.ParametersValid).
		Bool("liquidityAvailable", result.LiquidityAvailable).
		Bool("sufficientBalance", result.SufficientBalance).
		Bool("providerHealthy", result.ProviderHealthy).
		Msg("pre-flight check complete")

	return result, nil
}

func effectiveStrategy(req *domain.SwapRequest) domain.ApprovalStrategy {
	if req.ApprovalStrategy == "" {
		return domain.ApprovalStrategyAllowanceHolder
	}
	return req.ApprovalStrategy
}

func findAdapter(candidates []providers.OnChainAggregator, name string) providers.OnChainAggregator {
	for _, a := range candidates {
		if a.Name() == name {
			return a
		}
	}
	if len(candidates) > 0 {
		return candidates[0]
	}
	return nil
}
