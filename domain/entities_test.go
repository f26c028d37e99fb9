package domain

import (
	"math/big"
	"testing"
)

func TestSwapQuoteValidate(t *testing.T) {
	q := SwapQuote{
		BuyAmount:    NewBigInt(big.NewInt(100)),
		MinBuyAmount: NewBigInt(big.NewInt(95)),
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("expected valid quote, got %v", err)
	}

	bad := SwapQuote{
		BuyAmount:    NewBigInt(big.NewInt(100)),
		MinBuyAmount: NewBigInt(big.NewInt(101)),
	}
	if err := bad.Validate(); err != ErrMinExceedsBuy {
		t.Fatalf("expected ErrMinExceedsBuy, got %v", err)
	}
}

func TestSwapRequestNormalizeDefaultsRecipient(t *testing.T) {
	r := SwapRequest{SellToken: "0xAAA", BuyToken: "0xBBB", Taker: "0xTaker"}
	if err := r.Normalize(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Recipient != "0xTaker" {
		t.Fatalf("expected recipient to default to taker, got %q", r.Recipient)
	}
}

func TestSwapRequestNormalizeRejectsSameToken(t *testing.T) {
	r := SwapRequest{SellToken: "0xAAA", BuyToken: "0xaaa", Taker: "0xTaker"}
	if err := r.Normalize(); err != ErrSameToken {
		t.Fatalf("expected ErrSameToken (case-insensitive), got %v", err)
	}
}

func TestRouteQuoteValidateConfidenceRange(t *testing.T) {
	cases := []struct {
		confidence float64
		wantErr    bool
	}{
		{0.1, false},
		{1.0, false},
		{0.5, false},
		{0.09, true},
		{1.01, true},
	}
	for _, c := range cases {
		rq := RouteQuote{Confidence: c.confidence}
		err := rq.Validate()
		if c.wantErr && err == nil {
			t.Errorf("confidence %v: expected error", c.confidence)
		}
		if !c.wantErr && err != nil {
			t.Errorf("confidence %v: unexpected error %v", c.confidence, err)
		}
	}
}

func TestBigIntJSONRoundTrip(t *testing.T) {
	big1, err := ParseBigInt("123456789012345678901234567890")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	data, err := big1.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var big2 BigInt
	if err := big2.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if big1.String() != big2.String() {
		t.Fatalf("round trip mismatch: %s != %s", big1.String(), big2.String())
	}
}

func TestApplySlippageBps(t *testing.T) {
	out := NewBigInt(big.NewInt(1_000_000))
	min := ApplySlippageBps(out, 50) // 0.5%
	if min.String() != "995000" {
		t.Fatalf("expected 995000, got %s", min.String())
	}
}

func TestIsNativeSentinel(t *testing.T) {
	if !IsNativeSentinel("0x0000000000000000000000000000000000000000") {
		t.Fatal("expected zero address to be native sentinel")
	}
	if !IsNativeSentinel("0xEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEEE") {
		t.Fatal("expected eeee address to be native sentinel (case-insensitive)")
	}
	if IsNativeSentinel("0x1111111111111111111111111111111111111111") {
		t.Fatal("did not expect arbitrary address to be native sentinel")
	}
}
