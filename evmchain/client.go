// Package evmchain wraps go-ethereum's ethclient for the handful of
// on-chain reads and writes the approval workflow and execution
// coordinator need: ERC-20 allowance/balance reads, a Permit2 contract
// allowance read, native balance, gas price suggestion, and transaction
// submission/confirmation.
package evmchain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

// ERC20ABI covers the subset of the ERC-20 interface the gateway reads
// and writes: balance, allowance, and approve.
const ERC20ABI = `[
	{
		"name": "balanceOf",
		"type": "function",
		"stateMutability": "view",
		"inputs": [{"name": "account", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "allowance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"name": "approve",
		"type": "function",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "spender", "type": "address"},
			{"name": "amount", "type": "uint256"}
		],
		"outputs": [{"name": "", "type": "bool"}]
	},
	{
		"name": "Transfer",
		"type": "event",
		"inputs": [
			{"name": "from", "type": "address", "indexed": true},
			{"name": "to", "type": "address", "indexed": true},
			{"name": "value", "type": "uint256", "indexed": false}
		]
	}
]`

// Permit2ABI covers the single read the approval workflow needs from the
// canonical Permit2 contract.
const Permit2ABI = `[
	{
		"name": "allowance",
		"type": "function",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "token", "type": "address"},
			{"name": "spender", "type": "address"}
		],
		"outputs": [
			{"name": "amount", "type": "uint160"},
			{"name": "expiration", "type": "uint48"},
			{"name": "nonce", "type": "uint48"}
		]
	}
]`

// Permit2Allowance is the decoded result of Permit2's allowance(owner,
// token, spender) view call.
type Permit2Allowance struct {
	Amount     *big.Int
	Expiration int64
	Nonce      uint64
}

// Client wraps a single chain's ethclient.Client plus parsed ABIs.
type Client struct {
	chainID    uint64
	rpc        *ethclient.Client
	erc20ABI   abi.ABI
	permit2ABI abi.ABI
}

// Dial connects to rpcURL and verifies the reported chain ID matches chainID.
func Dial(ctx context.Context, chainID uint64, rpcURL string) (*Client, error) {
	rpc, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("evmchain: dial chain %d: %w", chainID, err)
	}

	got, err := rpc.ChainID(ctx)
	if err != nil {
		rpc.Close()
		return nil, fmt.Errorf("evmchain: chain ID probe for %d: %w", chainID, err)
	}
	if got.Uint64() != chainID {
		rpc.Close()
		return nil, fmt.Errorf("evmchain: chain ID mismatch: expected %d, got %d", chainID, got.Uint64())
	}

	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		return nil, fmt.Errorf("evmchain: parse erc20 ABI: %w", err)
	}
	permit2ABI, err := abi.JSON(strings.NewReader(Permit2ABI))
	if err != nil {
		return nil, fmt.Errorf("evmchain: parse permit2 ABI: %w", err)
	}

	log.Info().Uint64("chainId", chainID).Str("rpc", rpcURL).Msg("evmchain client connected")

	return &Client{chainID: chainID, rpc: rpc, erc20ABI: erc20ABI, permit2ABI: permit2ABI}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// ChainID returns the chain this client is bound to.
func (c *Client) ChainID() uint64 { return c.chainID }

// ERC20Allowance reads allowance(owner, spender) on token.
func (c *Client) ERC20Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("allowance", common.HexToAddress(owner), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("evmchain: pack allowance call: %w", err)
	}

	tokenAddr := common.HexToAddress(token)
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("evmchain: call allowance: %w", err)
	}

	outputs, err := c.erc20ABI.Unpack("allowance", result)
	if err != nil {
		return nil, fmt.Errorf("evmchain: unpack allowance: %w", err)
	}
	return outputs[0].(*big.Int), nil
}

// ERC20BalanceOf reads balanceOf(account) on token.
func (c *Client) ERC20BalanceOf(ctx context.Context, token, account string) (*big.Int, error) {
	data, err := c.erc20ABI.Pack("balanceOf", common.HexToAddress(account))
	if err != nil {
		return nil, fmt.Errorf("evmchain: pack balanceOf call: %w", err)
	}

	tokenAddr := common.HexToAddress(token)
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &tokenAddr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("evmchain: call balanceOf: %w", err)
	}

	outputs, err := c.erc20ABI.Unpack("balanceOf", result)
	if err != nil {
		return nil, fmt.Errorf("evmchain: unpack balanceOf: %w", err)
	}
	return outputs[0].(*big.Int), nil
}

// NativeBalanceAt reads the native-token balance of account.
func (c *Client) NativeBalanceAt(ctx context.Context, account string) (*big.Int, error) {
	bal, err := c.rpc.BalanceAt(ctx, common.HexToAddress(account), nil)
	if err != nil {
		return nil, fmt.Errorf("evmchain: native balance: %w", err)
	}
	return bal, nil
}

// Permit2AllowanceOf reads the Permit2 contract's allowance(owner, token,
// spender) at permit2Address.
func (c *Client) Permit2AllowanceOf(ctx context.Context, permit2Address, owner, token, spender string) (*Permit2Allowance, error) {
	data, err := c.permit2ABI.Pack("allowance",
		common.HexToAddress(owner), common.HexToAddress(token), common.HexToAddress(spender))
	if err != nil {
		return nil, fmt.Errorf("evmchain: pack permit2 allowance call: %w", err)
	}

	permit2Addr := common.HexToAddress(permit2Address)
	result, err := c.rpc.CallContract(ctx, ethereum.CallMsg{To: &permit2Addr, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("evmchain: call permit2 allowance: %w", err)
	}

	outputs, err := c.permit2ABI.Unpack("allowance", result)
	if err != nil {
		return nil, fmt.Errorf("evmchain: unpack permit2 allowance: %w", err)
	}

	return &Permit2Allowance{
		Amount:     outputs[0].(*big.Int),
		Expiration: int64(outputs[1].(*big.Int).Uint64()),
		Nonce:      outputs[2].(*big.Int).Uint64(),
	}, nil
}

// SuggestGasPrice returns the network's suggested legacy gas price.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.rpc.SuggestGasPrice(ctx)
}

// EstimateGas asks the node for a gas estimate of the given call.
func (c *Client) EstimateGas(ctx context.Context, from, to common.Address, data []byte, value *big.Int) (uint64, error) {
	gas, err := c.rpc.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: data, Value: value})
	if err != nil {
		return 0, fmt.Errorf("evmchain: estimate gas: %w", err)
	}
	return gas, nil
}

// SendRawApproval builds, signs, and submits an ERC-20 approve(spender,
// amount) transaction, returning the submitted transaction's hash. The
// gas limit comes from the node's own estimate.
func (c *Client) SendRawApproval(ctx context.Context, signer *bind.TransactOpts, token, spender string, amount *big.Int) (string, error) {
	data, err := c.erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
	if err != nil {
		return "", fmt.Errorf("evmchain: pack approve call: %w", err)
	}
	return c.sendRawTx(ctx, signer, common.HexToAddress(token), data, big.NewInt(0), 0)
}

// SendRawTransaction builds, signs, and submits an arbitrary transaction
// (used for a quote's "to"/"data"/"value" payload). gasLimit should carry
// the quote's own gas estimate; pass 0 to estimate via the node instead.
func (c *Client) SendRawTransaction(ctx context.Context, signer *bind.TransactOpts, to string, data []byte, value *big.Int, gasLimit uint64) (string, error) {
	return c.sendRawTx(ctx, signer, common.HexToAddress(to), data, value, gasLimit)
}

func (c *Client) sendRawTx(ctx context.Context, signer *bind.TransactOpts, to common.Address, data []byte, value *big.Int, gasLimit uint64) (string, error) {
	nonce, err := c.rpc.PendingNonceAt(ctx, signer.From)
	if err != nil {
		return "", fmt.Errorf("evmchain: nonce: %w", err)
	}
	gasPrice, err := c.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("evmchain: gas price: %w", err)
	}
	if gasLimit == 0 {
		gasLimit, err = c.EstimateGas(ctx, signer.From, to, data, value)
		if err != nil {
			return "", err
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    value,
		Data:     data,
	})

	signedTx, err := signer.Signer(signer.From, tx)
	if err != nil {
		return "", fmt.Errorf("evmchain: sign transaction: %w", err)
	}

	if err := c.rpc.SendTransaction(ctx, signedTx); err != nil {
		return "", fmt.Errorf("evmchain: send transaction: %w", err)
	}

	log.Info().Str("txHash", signedTx.Hash().Hex()).Uint64("chainId", c.chainID).Msg("transaction submitted")
	return signedTx.Hash().Hex(), nil
}

// TransactionReceipt fetches the receipt for txHash directly, the
// preferred path when the coordinator already knows the hash and simply
// needs to poll until it appears.
func (c *Client) TransactionReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	return c.rpc.TransactionReceipt(ctx, common.HexToHash(txHash))
}

// PollReceipt polls TransactionReceipt every interval until it succeeds,
// ctx is cancelled, or timeout elapses.
func (c *Client) PollReceipt(ctx context.Context, txHash string, interval, timeout time.Duration) (*types.Receipt, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		receipt, err := c.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("evmchain: receipt for %s not found within %s: %w", txHash, timeout, err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
