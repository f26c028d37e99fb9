package providers

import (
	"github.com/fluxswap/gateway/domain"
	"github.com/rs/zerolog/log"
)

// QuoteResult is a tagged variant over the two quote shapes the gateway
// deals with: a same-ecosystem SwapQuote from an OnChainAggregator, or a
// cross-chain RouteQuote from everything else. Exactly one of Legacy/Route
// is set.
type QuoteResult struct {
	Legacy *domain.SwapQuote
	Route  *domain.RouteQuote
}

// BuyAmount returns the comparable output amount regardless of shape.
func (q QuoteResult) BuyAmount() domain.BigInt {
	if q.Legacy != nil {
		return q.Legacy.BuyAmount
	}
	if q.Route != nil {
		return q.Route.TotalEstimatedOut
	}
	return domain.NewBigInt(nil)
}

// AggregatorName returns the provider name the quote came from.
func (q QuoteResult) AggregatorName() string {
	if q.Legacy != nil {
		return q.Legacy.Aggregator
	}
	if q.Route != nil {
		return q.Route.Aggregator
	}
	return ""
}

// LegacyAggregatorType maps a provider name to its legacy AggregatorType:
// "0x" -> ZEROX, "odos" -> ODOS; anything else logs a warning and falls
// back to a generic marker so callers never branch on a name they don't
// recognise.
func LegacyAggregatorType(name string) domain.AggregatorType {
	switch name {
	case "0x":
		return domain.AggregatorZeroX
	case "odos":
		return domain.AggregatorOdos
	default:
		log.Warn().Str("provider", name).Msg("no legacy AggregatorType mapping for provider name, using fallback")
		return domain.AggregatorType("UNKNOWN")
	}
}
