// Package providers defines the capability-set interfaces every adapter
// implements. A concrete adapter (see the adapters/zerox, adapters/odos,
// adapters/lifi packages) satisfies the universal Provider interface plus
// exactly one category interface; it may additionally satisfy one of the
// narrower optional EVM capability interfaces, probed with a type
// assertion at the call site rather than through any registry metadata.
package providers

import (
	"context"

	"github.com/fluxswap/gateway/domain"
)

// Provider is the capability every adapter — regardless of category —
// must expose.
type Provider interface {
	Name() string
	Health(ctx context.Context) (domain.ProviderHealth, error)
	Config() Config
}

// Config is the adapter-supplied static configuration surfaced for
// diagnostics and for the registry's legacy-name mirroring.
type Config struct {
	BaseURL string
	Timeout int64 // milliseconds
}

// OnChainAggregator services same-ecosystem, same-chain swaps (SwapType
// "on-chain", routed to ProviderCategory "evm-aggregator" or, for
// non-EVM single-chain ecosystems, "solana-router").
type OnChainAggregator interface {
	Provider
	GetQuote(ctx context.Context, req *domain.SwapRequest, strict bool) (*domain.SwapQuote, error)
	BuildTx(ctx context.Context, req *domain.SwapRequest) (*TxPayload, error)
	SupportsChain(chainID uint64) bool
	GetSupportedChains() []uint64
}

// TxPayload is the transaction the caller must broadcast from taker.
type TxPayload struct {
	To                   string
	Data                 string
	Value                domain.BigInt
	GasLimit             *domain.BigInt
	GasPrice             *domain.BigInt
	MaxFeePerGas         *domain.BigInt
	MaxPriorityFeePerGas *domain.BigInt
}

// MetaAggregator composes multiple underlying DEXes and/or bridges, often
// across chains.
type MetaAggregator interface {
	Provider
	GetRoutes(ctx context.Context, req *domain.UniversalSwapRequest) ([]domain.RouteQuote, error)
	Execute(ctx context.Context, routeID string, signerCtx SignerContext) (ExecuteResult, error)
	Status(ctx context.Context, routeID string) (domain.ExecutionStatus, error)
	GetSupportedChains() (from []uint64, to []uint64)
}

// SignerContext carries the minimum a MetaAggregator needs to execute a
// route on the caller's behalf: a resolvable signing secret, forgotten by
// the gateway once the request completes.
type SignerContext struct {
	SignerSecret string
}

// ExecuteResult is what a MetaAggregator.Execute call returns immediately
// upon submission; txids may not yet be confirmed.
type ExecuteResult struct {
	TxIDs []string
}

// SolanaRouter services Solana on-chain swaps.
type SolanaRouter interface {
	Provider
	Quote(ctx context.Context, req *domain.SwapRequest) (*domain.RouteQuote, error)
	BuildAndSign(ctx context.Context, quote *domain.RouteQuote, keypair []byte) (SolanaTx, error)
	SupportsTokenPair(a, b string) bool
}

// SolanaTx is the result of building (and optionally signing) a Solana
// transaction.
type SolanaTx struct {
	RawTx        []byte
	TxID         string
	Instructions []string
}

// NativeRouter services native-L1 swaps (Bitcoin, THORChain, Maya, Cosmos).
type NativeRouter interface {
	Provider
	QuoteBtc(ctx context.Context, req *domain.SwapRequest) (*domain.RouteQuote, error)
	DepositAndTrack(ctx context.Context, tx string, memo string) (domain.ExecutionStatus, error)
	GetSupportedDestinations() []uint64
}

// EvmSpenderProvider is an optional, EVM-only capability: resolving the
// address that must be approved for a given approval strategy. Only
// adapters that expose a dynamic spender (e.g. 0x's AllowanceHolder) need
// implement it; probed via a type assertion in the approval package.
type EvmSpenderProvider interface {
	GetSpenderAddress(ctx context.Context, chainID uint64, strategy domain.ApprovalStrategy) (string, error)
}

// EvmPermit2Provider is an optional, EVM-only capability exposing
// Permit2-specific quote variants.
type EvmPermit2Provider interface {
	GetAllowanceHolderQuote(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error)
	GetPermit2Quote(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error)
	GetPermit2Price(ctx context.Context, req *domain.SwapRequest) (*domain.SwapQuote, error)
}
