// Package domain defines the shared entity and enumeration types used
// across every component of the swap gateway: requests, quotes, routes,
// permit data, and provider health.
package domain

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// BigInt wraps math/big.Int so amounts, gas, and prices can be carried as
// base-10 decimal strings at JSON boundaries and as unbounded integers
// everywhere else, per the "no float round-trip" design constraint.
type BigInt struct {
	*big.Int
}

// NewBigInt wraps an existing *big.Int. A nil input becomes a zero value.
func NewBigInt(v *big.Int) BigInt {
	if v == nil {
		return BigInt{big.NewInt(0)}
	}
	return BigInt{v}
}

// ParseBigInt parses a base-10 decimal string into a BigInt.
func ParseBigInt(s string) (BigInt, error) {
	if s == "" {
		return BigInt{big.NewInt(0)}, nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return BigInt{}, fmt.Errorf("domain: invalid decimal integer %q", s)
	}
	return BigInt{v}, nil
}

// MarshalJSON renders the value as a quoted decimal string.
func (b BigInt) MarshalJSON() ([]byte, error) {
	if b.Int == nil {
		return json.Marshal("0")
	}
	return json.Marshal(b.Int.String())
}

// UnmarshalJSON accepts either a quoted decimal string or a JSON number.
func (b *BigInt) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return fmt.Errorf("domain: invalid decimal integer %q", s)
		}
		b.Int = v
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("domain: cannot decode BigInt: %w", err)
	}
	v, ok := new(big.Int).SetString(n.String(), 10)
	if !ok {
		return fmt.Errorf("domain: invalid numeric literal %q", n.String())
	}
	b.Int = v
	return nil
}

// String renders the decimal form, "0" for a zero value.
func (b BigInt) String() string {
	if b.Int == nil {
		return "0"
	}
	return b.Int.String()
}

// IsZero reports whether the wrapped integer is nil or zero.
func (b BigInt) IsZero() bool {
	return b.Int == nil || b.Int.Sign() == 0
}

// ApplySlippageBps returns amount * (10_000 - bps) / 10_000, the integer
// basis-points reduction used to derive minBuyAmount from buyAmount.
func ApplySlippageBps(amount BigInt, bps int64) BigInt {
	if amount.Int == nil {
		return NewBigInt(big.NewInt(0))
	}
	num := new(big.Int).Mul(amount.Int, big.NewInt(10_000-bps))
	num.Div(num, big.NewInt(10_000))
	return BigInt{num}
}
