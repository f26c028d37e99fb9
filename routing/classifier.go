// Package routing classifies a UniversalSwapRequest into a SwapType and
// the ProviderCategory responsible for servicing it, and answers whether
// a given chain/ecosystem pair is currently supported.
package routing

import (
	"errors"
	"fmt"

	"github.com/fluxswap/gateway/cache"
	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/registry"
	"github.com/rs/zerolog/log"
)

// ErrUnroutable is returned when no rule in the inference order matches.
var ErrUnroutable = errors.New("routing: request is unroutable")

// ErrNoCategory is returned when a SwapType has no servicing category.
var ErrNoCategory = errors.New("routing: no provider category for swap type")

var nativeEcosystems = map[domain.Ecosystem]bool{
	domain.EcosystemBitcoin:    true,
	domain.EcosystemThorchain:  true,
	domain.EcosystemMaya:       true,
	domain.EcosystemCosmos:     true,
}

// Classification is the outcome of classifying a request.
type Classification struct {
	SwapType domain.SwapType
	Category domain.ProviderCategory
}

// Classifier holds the registry used for chain-compatibility checks and the
// durable supported-quote cache used as its bootstrap fallback.
type Classifier struct {
	reg        *registry.Registry
	quoteCache *cache.SupportedQuoteCache
}

// NewClassifier constructs a Classifier bound to reg and quoteCache.
func NewClassifier(reg *registry.Registry, quoteCache *cache.SupportedQuoteCache) *Classifier {
	return &Classifier{
		reg:        reg,
		quoteCache: quoteCache,
	}
}

// Classify runs the deterministic SwapType inference order against req,
// then maps the result to a ProviderCategory.
func (c *Classifier) Classify(req *domain.UniversalSwapRequest) (Classification, error) {
	derived, err := deriveSwapType(req)
	if err != nil {
		return Classification{}, err
	}

	swapType := derived
	if req.SwapType != "" && req.SwapType != derived {
		log.Warn().
			Str("requested", string(req.SwapType)).
			Str("derived", string(derived)).
			Msg("swapType override inconsistent with derived classification, re-deriving")
	} else if req.SwapType != "" {
		swapType = req.SwapType
	}

	category, err := categoryFor(swapType, req.Source.Ecosystem)
	if err != nil {
		return Classification{}, err
	}

	return Classification{SwapType: swapType, Category: category}, nil
}

// deriveSwapType implements the inference order from scratch, ignoring
// any caller-supplied override.
func deriveSwapType(req *domain.UniversalSwapRequest) (domain.SwapType, error) {
	src, dst := req.Source, req.Destination

	if src.Ecosystem == dst.Ecosystem && src.Chain == dst.Chain {
		return domain.SwapTypeOnChain, nil
	}

	if src.Ecosystem != dst.Ecosystem {
		if nativeEcosystems[src.Ecosystem] || nativeEcosystems[dst.Ecosystem] {
			return domain.SwapTypeNativeSwap, nil
		}
		return domain.SwapTypeCrossChain, nil
	}

	// Same ecosystem, different chain IDs.
	if src.Ecosystem == domain.EcosystemEVM {
		srcL1, srcL2 := domain.EvmL1ChainIDs[src.Chain], domain.EvmL2ChainIDs[src.Chain]
		dstL1, dstL2 := domain.EvmL1ChainIDs[dst.Chain], domain.EvmL2ChainIDs[dst.Chain]
		switch {
		case srcL1 && dstL2:
			return domain.SwapTypeL1ToL2, nil
		case srcL2 && dstL1:
			return domain.SwapTypeL2ToL1, nil
		case srcL2 && dstL2:
			return domain.SwapTypeL2ToL2, nil
		default:
			return domain.SwapTypeCrossChain, nil
		}
	}

	return domain.SwapTypeCrossChain, nil
}

// categoryFor maps a SwapType (plus the source ecosystem, for on-chain
// disambiguation) to the ProviderCategory that must service it.
func categoryFor(swapType domain.SwapType, srcEco domain.Ecosystem) (domain.ProviderCategory, error) {
	switch swapType {
	case domain.SwapTypeOnChain:
		switch srcEco {
		case domain.EcosystemEVM, domain.EcosystemAvalanche:
			return domain.CategoryEvmAggregator, nil
		case domain.EcosystemSolana:
			return domain.CategorySolanaRouter, nil
		default:
			return "", fmt.Errorf("routing: no on-chain provider category for ecosystem %q: %w", srcEco, ErrNoCategory)
		}
	case domain.SwapTypeCrossChain, domain.SwapTypeL1ToL2, domain.SwapTypeL2ToL1, domain.SwapTypeL2ToL2:
		return domain.CategoryMetaAggregator, nil
	case domain.SwapTypeNativeSwap:
		return domain.CategoryNativeRouter, nil
	default:
		return "", fmt.Errorf("routing: unrecognised swap type %q: %w", swapType, ErrUnroutable)
	}
}

// IsChainCompatible reports whether chain/ecosystem is currently
// serviceable: both ecosystems recognised, and either a registered adapter
// claims SupportsChain, or the durable supported-quote cache already has
// an entry for it. An empty registry (bootstrap) always returns true so
// the first successful quote can populate the cache.
func (c *Classifier) IsChainCompatible(eco domain.Ecosystem, chain uint64) bool {
	if !eco.IsValid() {
		return false
	}
	if c.reg.IsEmpty() {
		return true
	}
	for _, a := range c.reg.EvmAggregators() {
		if a.SupportsChain(chain) {
			return true
		}
	}
	return c.quoteCache.HasChain(chain)
}
