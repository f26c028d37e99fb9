// Package permit2 implements the EIP-712 signing, splicing, and
// transaction-payload workflow for quotes carrying a permit2 typed-data
// block.
package permit2

import (
	"crypto/ecdsa"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/fluxswap/gateway/domain"
)

// ErrNoPermit2 is returned when ProcessPermit2Quote is called on a quote
// with no attached permit2 block.
var ErrNoPermit2 = errors.New("permit2: quote carries no permit2 data")

// SignedQuote is the result of processing a permit2-bearing quote: the
// original calldata, the raw signature, the spliced calldata, and the
// permit2 block that produced it.
type SignedQuote struct {
	OriginalTxData string
	Signature      string
	ModifiedTxData string
	Permit2Data    domain.Permit2Data
}

// Sign produces an EIP-712 signature over (domain, types, primaryType,
// message) using privateKey, following the same domain-separator /
// message-hash / EIP-191-prefix construction go-ethereum's apitypes
// package exposes. The returned signature is a "0x"-prefixed hex string,
// 65 bytes / 130 hex chars, with v normalized to 27/28.
func Sign(p domain.Permit2EIP712, privateKey *ecdsa.PrivateKey) (string, error) {
	td := toTypedData(p)

	domainSep, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return "", fmt.Errorf("permit2: hashing domain: %w", err)
	}
	msgHash, err := td.HashStruct(td.PrimaryType, td.Message)
	if err != nil {
		return "", fmt.Errorf("permit2: hashing message: %w", err)
	}

	rawData := fmt.Sprintf("\x19\x01%s%s", string(domainSep), string(msgHash))
	digest := crypto.Keccak256Hash([]byte(rawData))

	sig, err := crypto.Sign(digest.Bytes(), privateKey)
	if err != nil {
		return "", fmt.Errorf("permit2: signing: %w", err)
	}

	if sig[64] < 27 {
		sig[64] += 27
	}

	return fmt.Sprintf("0x%x", sig), nil
}

func toTypedData(p domain.Permit2EIP712) apitypes.TypedData {
	types := make(apitypes.Types, len(p.Types))
	for name, fields := range p.Types {
		tf := make([]apitypes.Type, 0, len(fields))
		for _, f := range fields {
			tf = append(tf, apitypes.Type{Name: f.Name, Type: f.Type})
		}
		types[name] = tf
	}

	// Aggregators differ on whether the typed-data bundle carries an
	// EIP712Domain entry; apitypes requires one to hash the domain, so
	// synthesize it from the domain fields actually present when absent.
	if _, ok := types["EIP712Domain"]; !ok {
		types["EIP712Domain"] = domainTypeFor(p.Domain)
	}

	var dom apitypes.TypedDataDomain
	if v, ok := p.Domain["name"].(string); ok {
		dom.Name = v
	}
	if v, ok := p.Domain["version"].(string); ok {
		dom.Version = v
	}
	if v, ok := p.Domain["verifyingContract"].(string); ok {
		dom.VerifyingContract = v
	}
	if v, ok := p.Domain["chainId"]; ok {
		dom.ChainId = math.NewHexOrDecimal256(chainIDToInt64(v))
	}

	return apitypes.TypedData{
		Types:       types,
		PrimaryType: p.PrimaryType,
		Domain:      dom,
		Message:     apitypes.TypedDataMessage(p.Message),
	}
}

// domainTypeFor builds the EIP712Domain type declaration matching the
// fields present in dom, in the canonical field order.
func domainTypeFor(dom map[string]interface{}) []apitypes.Type {
	var out []apitypes.Type
	if _, ok := dom["name"]; ok {
		out = append(out, apitypes.Type{Name: "name", Type: "string"})
	}
	if _, ok := dom["version"]; ok {
		out = append(out, apitypes.Type{Name: "version", Type: "string"})
	}
	if _, ok := dom["chainId"]; ok {
		out = append(out, apitypes.Type{Name: "chainId", Type: "uint256"})
	}
	if _, ok := dom["verifyingContract"]; ok {
		out = append(out, apitypes.Type{Name: "verifyingContract", Type: "address"})
	}
	if _, ok := dom["salt"]; ok {
		out = append(out, apitypes.Type{Name: "salt", Type: "bytes32"})
	}
	return out
}

func chainIDToInt64(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

func hexToBytes(s string) []byte {
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

func bytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// splice produces originalData ∥ uint256_be(len(signature bytes)) ∥
// signature, per the external aggregator's v2 calldata convention. The
// length prefix is exactly 32 bytes, big-endian, unsigned.
func splice(originalData []byte, signature []byte) []byte {
	lengthPrefix := make([]byte, 32)
	binary.BigEndian.PutUint64(lengthPrefix[24:], uint64(len(signature)))

	out := make([]byte, 0, len(originalData)+len(lengthPrefix)+len(signature))
	out = append(out, originalData...)
	out = append(out, lengthPrefix...)
	out = append(out, signature...)
	return out
}

// ProcessPermit2Quote verifies quote carries permit2 data, signs it, and
// splices the signature into the quote's calldata.
func ProcessPermit2Quote(quote *domain.SwapQuote, privateKey *ecdsa.PrivateKey) (*SignedQuote, error) {
	if !quote.HasPermit2() {
		return nil, ErrNoPermit2
	}

	sigHex, err := Sign(quote.Permit2.EIP712, privateKey)
	if err != nil {
		return nil, err
	}

	originalData := hexToBytes(quote.Data)
	signature := hexToBytes(sigHex)
	modified := splice(originalData, signature)

	return &SignedQuote{
		OriginalTxData: quote.Data,
		Signature:      sigHex,
		ModifiedTxData: "0x" + bytesToHex(modified),
		Permit2Data:    *quote.Permit2,
	}, nil
}

// CreateSignedQuote returns a copy of quote with Data replaced by the
// spliced, signed calldata.
func CreateSignedQuote(quote *domain.SwapQuote, signed *SignedQuote) domain.SwapQuote {
	out := *quote
	out.Data = signed.ModifiedTxData
	return out
}

// PermitInfo is the informational summary GetPermit2Info extracts for
// logging, without exposing the full typed-data payload.
type PermitInfo struct {
	Type        string
	Hash        string
	PrimaryType string
	Domain      map[string]interface{}
	MessageKeys []string
}

// GetPermit2Info extracts a log-friendly summary of a quote's permit2 block.
func GetPermit2Info(quote *domain.SwapQuote) (*PermitInfo, error) {
	if !quote.HasPermit2() {
		return nil, ErrNoPermit2
	}
	p := quote.Permit2
	keys := make([]string, 0, len(p.EIP712.Message))
	for k := range p.EIP712.Message {
		keys = append(keys, k)
	}
	return &PermitInfo{
		Type:        p.Type,
		Hash:        p.Hash,
		PrimaryType: p.EIP712.PrimaryType,
		Domain:      p.EIP712.Domain,
		MessageKeys: keys,
	}, nil
}
