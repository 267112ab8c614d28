package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestParseVenue(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want Venue
	}{
		{"binance", VenueBinance},
		{"OKX", VenueOKX},
		{"  gateio ", VenueGateio},
		{"BingX", VenueBingx},
		{"blofin", VenueBlofin},
	} {
		got, err := ParseVenue(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseVenue(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}

	if _, err := ParseVenue("mtgox"); err == nil {
		t.Error("ParseVenue(mtgox) should fail")
	}
}

func TestSymbolMap(t *testing.T) {
	sm := NewSymbolMap(map[string]map[Venue]string{
		"btc": {VenueBinance: "BTC/USDC", VenueOKX: "BTC/USDT"},
		"ETH": {VenueBinance: "ETH/USDC"},
	})

	if pair, err := sm.Pair("BTC", VenueBinance); err != nil || pair != "BTC/USDC" {
		t.Fatalf("Pair(BTC, binance) = %q, %v", pair, err)
	}
	if _, err := sm.Pair("BTC", VenueBlofin); err == nil {
		t.Fatal("unmapped venue should error")
	}
	if _, err := sm.Pair("SOL", VenueBinance); err == nil {
		t.Fatal("unknown symbol should error")
	}

	if got := sm.Symbols(); len(got) != 2 || got[0] != "BTC" || got[1] != "ETH" {
		t.Fatalf("Symbols() = %v", got)
	}
	if got := sm.Venues("BTC"); len(got) != 2 || got[0] != VenueBinance || got[1] != VenueOKX {
		t.Fatalf("Venues(BTC) = %v", got)
	}
}

func TestQuoteCrossed(t *testing.T) {
	q := Quote{BestBid: 30010, BestAsk: 30000}
	if !q.Crossed() {
		t.Error("bid above ask must report crossed")
	}
	q = Quote{BestBid: 29990, BestAsk: 30000}
	if q.Crossed() {
		t.Error("normal book reported crossed")
	}
	// Missing sides are malformed but not crossed.
	q = Quote{BestBid: 0, BestAsk: 30000}
	if q.Crossed() {
		t.Error("zero bid reported crossed")
	}
}

func TestQuoteSetUsable(t *testing.T) {
	set := QuoteSet{Quotes: []Quote{{Venue: VenueBinance}}}
	if set.Usable() {
		t.Error("one quote should not be usable")
	}
	set.Quotes = append(set.Quotes, Quote{Venue: VenueOKX})
	if !set.Usable() {
		t.Error("two quotes should be usable")
	}

	failed := QuoteSet{Failures: []VenueFailure{{Venue: VenueBinance, Err: errors.New("down")}}}
	if !failed.AllFailed() {
		t.Error("failures without quotes should report AllFailed")
	}
	if (QuoteSet{}).AllFailed() {
		t.Error("empty set is not a systemic failure")
	}
}

func TestOpportunityValid(t *testing.T) {
	base := Opportunity{
		Symbol:      "BTC",
		BuyVenue:    VenueBinance,
		SellVenue:   VenueOKX,
		BuyPrice:    30000,
		SellPrice:   30150,
		TradeAmount: 0.72,
	}
	if !base.Valid() {
		t.Fatal("well-formed opportunity reported invalid")
	}

	for name, mutate := range map[string]func(*Opportunity){
		"same venue":  func(o *Opportunity) { o.SellVenue = o.BuyVenue },
		"zero amount": func(o *Opportunity) { o.TradeAmount = 0 },
		"no symbol":   func(o *Opportunity) { o.Symbol = "" },
		"zero price":  func(o *Opportunity) { o.BuyPrice = 0 },
	} {
		o := base
		mutate(&o)
		if o.Valid() {
			t.Errorf("%s: should be invalid", name)
		}
	}
}

func TestOpportunityNotionalAndAge(t *testing.T) {
	now := time.Now().UTC()
	o := Opportunity{BuyPrice: 30000, TradeAmount: 0.5, ComputedAt: now.Add(-2 * time.Second)}
	if o.Notional() != 15000 {
		t.Fatalf("Notional = %v, want 15000", o.Notional())
	}
	if o.Age(now) != 2*time.Second {
		t.Fatalf("Age = %v, want 2s", o.Age(now))
	}
}

func TestAttemptStateTerminal(t *testing.T) {
	terminal := []AttemptState{AttemptSettled, AttemptFailed, AttemptRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []AttemptState{AttemptPending, AttemptBuyPlaced, AttemptBothPlaced, AttemptUnwinding} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestIsTransientGatewayError(t *testing.T) {
	for kind, want := range map[GatewayErrorKind]bool{
		GatewayErrTimeout:     true,
		GatewayErrRateLimited: true,
		GatewayErrNetwork:     true,
		GatewayErrRejected:    false,
		GatewayErrMalformed:   false,
	} {
		err := NewGatewayError(VenueBinance, kind, errors.New("x"))
		if IsTransientGatewayError(err) != want {
			t.Errorf("kind %s: transient = %v, want %v", kind, !want, want)
		}
	}

	if !IsTransientGatewayError(context.DeadlineExceeded) {
		t.Error("deadline expiry should count as transient")
	}
	if IsTransientGatewayError(errors.New("plain")) {
		t.Error("plain errors are not transient")
	}

	// Wrapped gateway errors still classify.
	wrapped := NewGatewayError(VenueOKX, GatewayErrNetwork, errors.New("reset"))
	if !IsTransientGatewayError(errors.Join(errors.New("outer"), wrapped)) {
		t.Error("wrapped gateway error lost its classification")
	}
}
