package odos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fluxswap/gateway/domain"
)

func TestSupportsChain(t *testing.T) {
	a := New("")
	if !a.SupportsChain(137) {
		t.Fatal("expected chain 137 to be supported")
	}
	if a.SupportsChain(999999) {
		t.Fatal("expected unknown chain to be unsupported")
	}
}

func TestGetQuoteDrivesQuoteThenAssemble(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sor/quote/v2":
			json.NewEncoder(w).Encode(odosQuoteResponse{
				PathID:      "path-123",
				OutAmounts:  []string{"5000000"},
				PriceImpact: 0.1,
			})
		case "/sor/assemble":
			resp := odosAssembleResponse{}
			resp.Transaction.To = "0xrouter"
			resp.Transaction.Data = "0xbeef"
			resp.Transaction.Value = "0"
			resp.Transaction.Gas = 180000
			resp.Transaction.GasPrice = "20000000000"
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := New("")
	a.baseURL = srv.URL

	req := &domain.SwapRequest{
		ChainID:    137,
		SellToken:  "0xAAA",
		BuyToken:   "0xBBB",
		SellAmount: domain.NewBigInt(nil),
		Taker:      "0xTaker",
	}

	quote, err := a.GetQuote(context.Background(), req, false)
	if err != nil {
		t.Fatal(err)
	}
	if quote.Aggregator != Name {
		t.Fatalf("expected aggregator name %q, got %q", Name, quote.Aggregator)
	}
	if quote.To != "0xrouter" {
		t.Fatalf("expected to=0xrouter, got %s", quote.To)
	}
	if quote.BuyAmount.String() != "5000000" {
		t.Fatalf("expected buyAmount 5000000, got %s", quote.BuyAmount.String())
	}
	if quote.Gas.String() != "180000" {
		t.Fatalf("expected gas 180000, got %s", quote.Gas.String())
	}
}

func TestGetQuoteRefreshesExpiredPathIDOnce(t *testing.T) {
	quoteCalls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sor/quote/v2":
			quoteCalls++
			pathID := "path-stale"
			if quoteCalls > 1 {
				pathID = "path-fresh"
			}
			json.NewEncoder(w).Encode(odosQuoteResponse{
				PathID:      pathID,
				OutAmounts:  []string{"5000000"},
				PriceImpact: 0.1,
			})
		case "/sor/assemble":
			var body odosAssembleRequest
			json.NewDecoder(r.Body).Decode(&body)
			if body.PathID == "path-stale" {
				w.WriteHeader(http.StatusBadRequest)
				w.Write([]byte(`{"message":"path not found or expired"}`))
				return
			}
			resp := odosAssembleResponse{}
			resp.Transaction.To = "0xrouter"
			resp.Transaction.Data = "0xbeef"
			resp.Transaction.Value = "0"
			resp.Transaction.Gas = 180000
			resp.Transaction.GasPrice = "20000000000"
			json.NewEncoder(w).Encode(resp)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a := New("")
	a.baseURL = srv.URL

	req := &domain.SwapRequest{
		ChainID:    137,
		SellToken:  "0xAAA",
		BuyToken:   "0xBBB",
		SellAmount: domain.NewBigInt(nil),
		Taker:      "0xTaker",
	}

	quote, err := a.GetQuote(context.Background(), req, false)
	if err != nil {
		t.Fatal(err)
	}
	if quoteCalls != 2 {
		t.Fatalf("expected pathId to be refreshed exactly once (2 quote calls), got %d", quoteCalls)
	}
	if quote.To != "0xrouter" {
		t.Fatalf("expected to=0xrouter after refresh, got %s", quote.To)
	}
}

func TestGetQuoteFailsOnEmptyOutAmounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(odosQuoteResponse{PathID: "p"})
	}))
	defer srv.Close()

	a := New("")
	a.baseURL = srv.URL

	req := &domain.SwapRequest{
		SellToken:  "0xAAA",
		BuyToken:   "0xBBB",
		SellAmount: domain.NewBigInt(nil),
		Taker:      "0xTaker",
	}

	if _, err := a.GetQuote(context.Background(), req, false); err == nil {
		t.Fatal("expected an error when outAmounts is empty")
	}
}
