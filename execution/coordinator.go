// Package execution runs the end-to-end swap state machine: validate,
// pre-flight, quote, approve, submit, confirm, and parse the receipt for
// the actual amount received.
package execution

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/fluxswap/gateway/approval"
	"github.com/fluxswap/gateway/domain"
	"github.com/fluxswap/gateway/evmchain"
	"github.com/fluxswap/gateway/orchestrator"
	"github.com/fluxswap/gateway/permit2"
	"github.com/fluxswap/gateway/precheck"
	"github.com/fluxswap/gateway/providers"
)

// MaxQuoteAttempts and MaxSubmitAttempts bound the retry loops for quote
// acquisition and swap-transaction submission respectively.
const (
	MaxQuoteAttempts  = 3
	MaxSubmitAttempts = 3
)

// ConfirmationCeiling is the maximum time spent waiting for a submitted
// transaction to confirm.
const ConfirmationCeiling = 5 * time.Minute

// erc20TransferTopic is keccak256("Transfer(address,address,uint256)").
const erc20TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// Result is the outcome of a completed (or failed) execution.
type Result struct {
	Status           domain.ExecutionStatus
	SwapTxHash       string
	ApprovalTxHash   string
	ActualReceived   domain.BigInt
	UsedQuotedAmount bool
}

// Coordinator wires together the orchestrator, approval workflow,
// pre-check, and chain client needed to drive one swap to completion.
type Coordinator struct {
	orch  *orchestrator.Orchestrator
	appr  *approval.Workflow
	pre   *precheck.Checker
	chain *evmchain.Client
}

// NewCoordinator constructs a Coordinator from its collaborators.
func NewCoordinator(orch *orchestrator.Orchestrator, appr *approval.Workflow, pre *precheck.Checker, chain *evmchain.Client) *Coordinator {
	return &Coordinator{orch: orch, appr: appr, pre: pre, chain: chain}
}

// Execute runs the full 7-step state machine for req, signing with
// privateKey. candidates is the pool of EVM aggregators to quote from.
func (c *Coordinator) Execute(ctx context.Context, req *domain.SwapRequest, candidates []providers.OnChainAggregator, privateKey *ecdsa.PrivateKey, signer *bind.TransactOpts) (*Result, error) {
	// 1. Validate.
	if err := req.Normalize(); err != nil {
		return nil, TranslateError(err)
	}

	// 2. Pre-flight.
	preResult, err := c.pre.Run(ctx, req, candidates)
	if err != nil {
		return nil, TranslateError(err)
	}
	if !preResult.SufficientBalance {
		return nil, fmt.Errorf("execution: insufficient balance for sell amount")
	}

	// 3. Quote acquisition, up to 3 attempts with exponential backoff.
	var quote *domain.SwapQuote
	err = withBackoff(ctx, MaxQuoteAttempts, func() error {
		q, qErr := c.orch.GetQuote(ctx, candidates, req, req.Aggregator, false)
		if qErr != nil {
			return qErr
		}
		quote = q
		return nil
	})
	if err != nil {
		return nil, TranslateError(err)
	}

	result := &Result{Status: domain.ExecutionPending}
	adapter := findAdapter(candidates, quote.Aggregator)

	// 4. Approval, unless sell token is native.
	if !domain.IsNativeSentinel(req.SellToken) {
		approvalTxHash, err := c.handleApproval(ctx, req, quote, signer, adapter)
		if err != nil {
			result.Status = domain.ExecutionFailed
			return result, TranslateError(err)
		}
		result.ApprovalTxHash = approvalTxHash
	}

	// For permit2, the signature is bound to the swap call itself: splice
	// it into the calldata the swap tx submits before step 5.
	if quote.HasPermit2() && effectiveStrategy(req) == domain.ApprovalStrategyPermit2 {
		signed, err := permit2.ProcessPermit2Quote(quote, privateKey)
		if err != nil {
			result.Status = domain.ExecutionFailed
			return result, TranslateError(err)
		}
		updated := permit2.CreateSignedQuote(quote, signed)
		quote = &updated
	}

	// 5. Submit swap tx, up to 3 attempts with exponential backoff.
	calldata, err := hex.DecodeString(strings.TrimPrefix(strings.TrimPrefix(quote.Data, "0x"), "0X"))
	if err != nil {
		result.Status = domain.ExecutionFailed
		return result, fmt.Errorf("execution: decoding transaction calldata: %w", err)
	}

	var swapTxHash string
	err = withBackoff(ctx, MaxSubmitAttempts, func() error {
		value := quote.Value.Int
		if value == nil {
			value = big.NewInt(0)
		}
		h, sErr := c.chain.SendRawTransaction(ctx, signer, quote.To, calldata, value, quoteGasLimit(quote))
		if sErr != nil {
			return sErr
		}
		swapTxHash = h
		return nil
	})
	if err != nil {
		result.Status = domain.ExecutionFailed
		return result, TranslateError(err)
	}
	result.SwapTxHash = swapTxHash

	// 6. Wait for confirmation, 5-minute ceiling.
	confirmCtx, cancel := context.WithTimeout(ctx, ConfirmationCeiling)
	defer cancel()
	receipt, err := c.chain.PollReceipt(confirmCtx, swapTxHash, 2*time.Second, ConfirmationCeiling)
	if err != nil {
		result.Status = domain.ExecutionFailed
		return result, TranslateError(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		result.Status = domain.ExecutionFailed
		return result, errors.New("execution: swap transaction reverted")
	}

	// 7. Parse receipt for the actual amount received.
	actual, found := parseReceivedAmount(receipt, req.BuyToken, req.Recipient)
	if found {
		result.ActualReceived = actual
	} else {
		result.ActualReceived = quote.BuyAmount
		result.UsedQuotedAmount = true
	}

	result.Status = domain.ExecutionSuccess
	return result, nil
}

// quoteGasLimit extracts the aggregator's own gas estimate from the
// quote; 0 tells the chain client to fall back to eth_estimateGas.
func quoteGasLimit(quote *domain.SwapQuote) uint64 {
	if quote.Gas.Int != nil && quote.Gas.Sign() > 0 && quote.Gas.IsUint64() {
		return quote.Gas.Uint64()
	}
	return 0
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
	return nil
}

// handleApproval resolves the spender and submits an approval tx if
// needed. For the permit2 strategy, no on-chain tx is submitted here:
// the signature gets spliced into the swap calldata by the caller.
func (c *Coordinator) handleApproval(ctx context.Context, req *domain.SwapRequest, quote *domain.SwapQuote, signer *bind.TransactOpts, adapter providers.OnChainAggregator) (string, error) {
	strategy := effectiveStrategy(req)

	if strategy == domain.ApprovalStrategyPermit2 && quote.HasPermit2() {
		return "", nil
	}

	spender := quote.AllowanceTarget
	if spender == "" && adapter != nil {
		addr, err := c.appr.ResolveSpender(ctx, req.ChainID, domain.ApprovalStrategyAllowanceHolder, adapter)
		if err != nil {
			return "", err
		}
		spender = addr
	}
	if spender == "" {
		return "", fmt.Errorf("execution: no spender address available for approval")
	}

	needed, err := c.appr.IsApprovalNeeded(ctx, req.ChainID, req.SellToken, signer.From.Hex(), spender, req.SellAmount.Int)
	if err != nil {
		return "", err
	}
	if !needed {
		return "", nil
	}

	txHash, err := c.chain.SendRawApproval(ctx, signer, req.SellToken, spender, req.SellAmount.Int)
	if err != nil {
		return "", err
	}

	confirmCtx, cancel := context.WithTimeout(ctx, ConfirmationCeiling)
	defer cancel()
	if _, err := c.chain.PollReceipt(confirmCtx, txHash, 2*time.Second, ConfirmationCeiling); err != nil {
		return "", fmt.Errorf("execution: approval confirmation: %w", err)
	}

	return txHash, nil
}

func parseReceivedAmount(receipt *types.Receipt, buyToken, recipient string) (domain.BigInt, bool) {
	recipientTopic := common.HexToHash(recipient)
	for _, l := range receipt.Logs {
		if l.Address != common.HexToAddress(buyToken) {
			continue
		}
		if len(l.Topics) < 3 || l.Topics[0].Hex() != erc20TransferTopic {
			continue
		}
		if l.Topics[2] != recipientTopic {
			continue
		}
		amount := new(big.Int).SetBytes(l.Data)
		return domain.NewBigInt(amount), true
	}
	return domain.BigInt{}, false
}

func withBackoff(ctx context.Context, maxAttempts int, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			if attempt < maxAttempts-1 {
				delay := time.Duration(1<<uint(attempt)) * time.Second
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}
			continue
		}
		return nil
	}
	return lastErr
}

