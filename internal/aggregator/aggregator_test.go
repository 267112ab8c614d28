package aggregator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubGateway implements domain.Gateway with a pluggable order-book fetch.
type stubGateway struct {
	venue domain.Venue
	fetch func(ctx context.Context) (domain.BookTop, error)
}

func (s *stubGateway) Venue() domain.Venue { return s.venue }

func (s *stubGateway) FetchOrderBook(ctx context.Context, pair string) (domain.BookTop, error) {
	return s.fetch(ctx)
}

func (s *stubGateway) PlaceOrder(ctx context.Context, pair string, side domain.OrderSide, amount, price float64) (domain.OrderResult, error) {
	return domain.OrderResult{}, errors.New("not implemented")
}

func (s *stubGateway) CancelOrder(ctx context.Context, pair, orderID string) error {
	return errors.New("not implemented")
}

func (s *stubGateway) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	return domain.FeeSchedule{Venue: s.venue}, nil
}

func testSymbolMap() *domain.SymbolMap {
	return domain.NewSymbolMap(map[string]map[domain.Venue]string{
		"BTC": {
			domain.VenueBinance: "BTC/USDC",
			domain.VenueOKX:     "BTC/USDT",
			domain.VenueGateio:  "BTC/USDT",
		},
	})
}

func goodBook() (domain.BookTop, error) {
	return domain.BookTop{BestBid: 29990, BestAsk: 30000, BidSize: 1, AskSize: 1}, nil
}

func TestSnapshotPartialFailure(t *testing.T) {
	gateways := map[domain.Venue]domain.Gateway{
		domain.VenueBinance: &stubGateway{venue: domain.VenueBinance, fetch: func(context.Context) (domain.BookTop, error) {
			return goodBook()
		}},
		domain.VenueOKX: &stubGateway{venue: domain.VenueOKX, fetch: func(context.Context) (domain.BookTop, error) {
			return domain.BookTop{}, domain.NewGatewayError(domain.VenueOKX, domain.GatewayErrNetwork, errors.New("connection refused"))
		}},
		domain.VenueGateio: &stubGateway{venue: domain.VenueGateio, fetch: func(context.Context) (domain.BookTop, error) {
			return goodBook()
		}},
	}

	agg := New(gateways, testSymbolMap(), nil, Config{FetchTimeout: time.Second}, discardLogger())

	set, err := agg.Snapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(set.Quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(set.Quotes))
	}
	if len(set.Failures) != 1 || set.Failures[0].Venue != domain.VenueOKX {
		t.Fatalf("failures = %+v, want one okx failure", set.Failures)
	}
	if !set.Usable() {
		t.Fatal("two quotes should be usable")
	}
}

func TestSnapshotMalformedBookIsFailure(t *testing.T) {
	gateways := map[domain.Venue]domain.Gateway{
		domain.VenueBinance: &stubGateway{venue: domain.VenueBinance, fetch: func(context.Context) (domain.BookTop, error) {
			// Crossed book: bid above ask.
			return domain.BookTop{BestBid: 30010, BestAsk: 30000, BidSize: 1, AskSize: 1}, nil
		}},
		domain.VenueOKX: &stubGateway{venue: domain.VenueOKX, fetch: func(context.Context) (domain.BookTop, error) {
			return goodBook()
		}},
	}

	agg := New(gateways, testSymbolMap(), nil, Config{FetchTimeout: time.Second}, discardLogger())

	set, err := agg.Snapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(set.Quotes) != 1 {
		t.Fatalf("got %d quotes, want 1", len(set.Quotes))
	}
	var ge *domain.GatewayError
	if len(set.Failures) != 1 || !errors.As(set.Failures[0].Err, &ge) || ge.Kind != domain.GatewayErrMalformed {
		t.Fatalf("failures = %+v, want one malformed-book failure", set.Failures)
	}
}

func TestSnapshotSlowVenueTimesOut(t *testing.T) {
	gateways := map[domain.Venue]domain.Gateway{
		domain.VenueBinance: &stubGateway{venue: domain.VenueBinance, fetch: func(ctx context.Context) (domain.BookTop, error) {
			<-ctx.Done()
			return domain.BookTop{}, ctx.Err()
		}},
		domain.VenueOKX: &stubGateway{venue: domain.VenueOKX, fetch: func(context.Context) (domain.BookTop, error) {
			return goodBook()
		}},
	}

	agg := New(gateways, testSymbolMap(), nil, Config{FetchTimeout: 20 * time.Millisecond}, discardLogger())

	set, err := agg.Snapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(set.Quotes) != 1 || set.Quotes[0].Venue != domain.VenueOKX {
		t.Fatalf("quotes = %+v, want only okx", set.Quotes)
	}
	if len(set.Failures) != 1 || set.Failures[0].Venue != domain.VenueBinance {
		t.Fatalf("failures = %+v, want binance timeout", set.Failures)
	}
}

func TestSnapshotAllFailed(t *testing.T) {
	fail := func(venue domain.Venue) *stubGateway {
		return &stubGateway{venue: venue, fetch: func(context.Context) (domain.BookTop, error) {
			return domain.BookTop{}, domain.NewGatewayError(venue, domain.GatewayErrNetwork, errors.New("down"))
		}}
	}
	gateways := map[domain.Venue]domain.Gateway{
		domain.VenueBinance: fail(domain.VenueBinance),
		domain.VenueOKX:     fail(domain.VenueOKX),
	}

	agg := New(gateways, testSymbolMap(), nil, Config{FetchTimeout: time.Second}, discardLogger())

	set, err := agg.Snapshot(context.Background(), "BTC")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if !set.AllFailed() {
		t.Fatalf("set = %+v, want AllFailed", set)
	}
}

func TestSnapshotCancelledContext(t *testing.T) {
	gateways := map[domain.Venue]domain.Gateway{
		domain.VenueBinance: &stubGateway{venue: domain.VenueBinance, fetch: func(ctx context.Context) (domain.BookTop, error) {
			<-ctx.Done()
			return domain.BookTop{}, ctx.Err()
		}},
	}

	agg := New(gateways, testSymbolMap(), nil, Config{FetchTimeout: time.Second}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := agg.Snapshot(ctx, "BTC"); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

// countingCache records quote cache writes.
type countingCache struct {
	mu   sync.Mutex
	puts int
}

func (c *countingCache) Put(ctx context.Context, q domain.Quote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	return nil
}

func (c *countingCache) Get(ctx context.Context, venue domain.Venue, symbol string) (domain.Quote, error) {
	return domain.Quote{}, domain.ErrNotFound
}

func TestSnapshotCachesQuotesWhenEnabled(t *testing.T) {
	gateways := map[domain.Venue]domain.Gateway{
		domain.VenueBinance: &stubGateway{venue: domain.VenueBinance, fetch: func(context.Context) (domain.BookTop, error) {
			return goodBook()
		}},
		domain.VenueOKX: &stubGateway{venue: domain.VenueOKX, fetch: func(context.Context) (domain.BookTop, error) {
			return goodBook()
		}},
	}
	cache := &countingCache{}

	agg := New(gateways, testSymbolMap(), cache, Config{FetchTimeout: time.Second, CacheQuotes: true}, discardLogger())

	if _, err := agg.Snapshot(context.Background(), "BTC"); err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if cache.puts != 2 {
		t.Fatalf("cache puts = %d, want 2", cache.puts)
	}
}
