package paper

import (
	"context"
	"errors"
	"testing"

	"github.com/mlajoie/crossarb/internal/domain"
)

func newBTCGateway() *Gateway {
	return New(domain.VenueBinance,
		domain.FeeSchedule{Venue: domain.VenueBinance, TakerRate: 0.001},
		SeedBooks("BTC/USDC", 30000, 6, 0.5),
	)
}

func TestFetchOrderBookShape(t *testing.T) {
	g := newBTCGateway()

	for i := 0; i < 40; i++ {
		top, err := g.FetchOrderBook(context.Background(), "BTC/USDC")
		if err != nil {
			t.Fatalf("FetchOrderBook: %v", err)
		}
		if top.BestBid >= top.BestAsk {
			t.Fatalf("tick %d: crossed book %+v", i, top)
		}
		if top.BidSize != 0.5 || top.AskSize != 0.5 {
			t.Fatalf("tick %d: sizes %+v", i, top)
		}
		// Drift is bounded to 5 steps of 1bp around the seeded mid.
		mid := (top.BestBid + top.BestAsk) / 2
		if mid < 30000*0.999 || mid > 30000*1.001 {
			t.Fatalf("tick %d: mid %v drifted out of bounds", i, mid)
		}
	}
}

func TestFetchOrderBookUnknownPair(t *testing.T) {
	g := newBTCGateway()
	if _, err := g.FetchOrderBook(context.Background(), "DOGE/USDT"); err == nil {
		t.Fatal("expected error for unseeded pair")
	}
}

func TestPlaceAndCancelOrder(t *testing.T) {
	g := newBTCGateway()

	res, err := g.PlaceOrder(context.Background(), "BTC/USDC", domain.SideBuy, 0.25, 0)
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if res.OrderID == "" || res.FilledAmount != 0.25 {
		t.Fatalf("result = %+v", res)
	}

	if err := g.CancelOrder(context.Background(), "BTC/USDC", res.OrderID); err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if err := g.CancelOrder(context.Background(), "BTC/USDC", res.OrderID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second cancel err = %v, want ErrNotFound", err)
	}
}

func TestPlaceOrderRejectsNonPositiveAmount(t *testing.T) {
	g := newBTCGateway()
	if _, err := g.PlaceOrder(context.Background(), "BTC/USDC", domain.SideBuy, 0, 0); err == nil {
		t.Fatal("expected rejection for zero amount")
	}
}

func TestInjectedFailuresAreTransient(t *testing.T) {
	g := newBTCGateway()
	g.FailNextFetches(1)
	g.FailNextPlacements(1)

	_, err := g.FetchOrderBook(context.Background(), "BTC/USDC")
	if !domain.IsTransientGatewayError(err) {
		t.Fatalf("fetch err = %v, want transient", err)
	}
	_, err = g.PlaceOrder(context.Background(), "BTC/USDC", domain.SideSell, 0.1, 0)
	if !domain.IsTransientGatewayError(err) {
		t.Fatalf("place err = %v, want transient", err)
	}

	// Injection is consumed; the next calls succeed.
	if _, err := g.FetchOrderBook(context.Background(), "BTC/USDC"); err != nil {
		t.Fatalf("fetch after injection: %v", err)
	}
	if _, err := g.PlaceOrder(context.Background(), "BTC/USDC", domain.SideSell, 0.1, 0); err != nil {
		t.Fatalf("place after injection: %v", err)
	}
}

func TestCancelledContext(t *testing.T) {
	g := newBTCGateway()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.FetchOrderBook(ctx, "BTC/USDC"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
