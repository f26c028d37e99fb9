package evmchain

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestERC20ABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"balanceOf", "allowance", "approve"} {
		if _, ok := parsed.Methods[name]; !ok {
			t.Fatalf("expected method %s in parsed ERC20 ABI", name)
		}
	}
}

func TestPermit2ABIParses(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(Permit2ABI))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed.Methods["allowance"]; !ok {
		t.Fatal("expected allowance method in parsed Permit2 ABI")
	}
}

func TestERC20AllowancePackUnpackRoundTrip(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(ERC20ABI))
	if err != nil {
		t.Fatal(err)
	}
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	spender := common.HexToAddress("0x2222222222222222222222222222222222222222")

	packed, err := parsed.Pack("allowance", owner, spender)
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) != 4+32+32 { // selector + 2 address params
		t.Fatalf("unexpected packed length: %d", len(packed))
	}
}

func TestPermit2AllowancePack(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(Permit2ABI))
	if err != nil {
		t.Fatal(err)
	}
	owner := common.HexToAddress("0x1111111111111111111111111111111111111111")
	token := common.HexToAddress("0x2222222222222222222222222222222222222222")
	spender := common.HexToAddress("0x3333333333333333333333333333333333333333")

	packed, err := parsed.Pack("allowance", owner, token, spender)
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) != 4+32+32+32 {
		t.Fatalf("unexpected packed length: %d", len(packed))
	}
}

// txRPCFixture serves the JSON-RPC calls sendRawTx issues, counting
// eth_estimateGas invocations so tests can assert when estimation runs.
func txRPCFixture(t *testing.T, estimateCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode rpc request: %v", err)
		}
		reply := func(result interface{}) {
			json.NewEncoder(w).Encode(map[string]interface{}{
				"jsonrpc": "2.0",
				"id":      req.ID,
				"result":  result,
			})
		}
		switch req.Method {
		case "eth_chainId":
			reply("0x1")
		case "eth_getTransactionCount":
			reply("0x0")
		case "eth_gasPrice":
			reply("0x3b9aca00")
		case "eth_estimateGas":
			atomic.AddInt32(estimateCalls, 1)
			reply("0x61a80") // 400000
		case "eth_sendRawTransaction":
			reply("0x" + strings.Repeat("11", 32))
		default:
			reply("0x0")
		}
	}))
}

func testSigner(t *testing.T) *bind.TransactOpts {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	signer, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1))
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func TestSendRawTransactionUsesSuppliedGasLimit(t *testing.T) {
	var estimates int32
	srv := txRPCFixture(t, &estimates)
	defer srv.Close()

	client, err := Dial(context.Background(), 1, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	_, err = client.SendRawTransaction(context.Background(), testSigner(t),
		"0x4444444444444444444444444444444444444444", []byte{0x01}, big.NewInt(0), 350000)
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&estimates) != 0 {
		t.Fatal("expected no gas estimation when the caller supplies a limit")
	}
}

func TestSendRawTransactionEstimatesWhenNoGasLimit(t *testing.T) {
	var estimates int32
	srv := txRPCFixture(t, &estimates)
	defer srv.Close()

	client, err := Dial(context.Background(), 1, srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	_, err = client.SendRawTransaction(context.Background(), testSigner(t),
		"0x4444444444444444444444444444444444444444", []byte{0x01}, big.NewInt(0), 0)
	if err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&estimates) != 1 {
		t.Fatalf("expected exactly one gas estimation, got %d", estimates)
	}
}
