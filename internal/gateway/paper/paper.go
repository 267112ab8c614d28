// Package paper implements a simulated venue gateway for paper trading and
// tests. Books are seeded per pair and drift by a small deterministic step on
// every fetch so that spreads between two paper venues appear and disappear.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/mlajoie/crossarb/internal/domain"
)

// Book seeds one pair's simulated top of book.
type Book struct {
	Mid    float64
	Spread float64 // absolute bid/ask distance around mid
	Depth  float64 // size shown at both best levels
}

// Gateway is an in-memory venue. All methods are safe for concurrent use.
type Gateway struct {
	venue domain.Venue
	fees  domain.FeeSchedule

	mu     sync.Mutex
	books  map[string]Book
	orders map[string]domain.OrderResult
	ticks  int

	// FailFetch and FailPlace inject errors for the next N calls.
	failFetch int
	failPlace int
}

// New creates a paper gateway for venue with the given seeded books.
func New(venue domain.Venue, fees domain.FeeSchedule, books map[string]Book) *Gateway {
	copied := make(map[string]Book, len(books))
	for pair, b := range books {
		copied[pair] = b
	}
	return &Gateway{
		venue:  venue,
		fees:   fees,
		books:  copied,
		orders: make(map[string]domain.OrderResult),
	}
}

// Venue identifies the simulated exchange.
func (g *Gateway) Venue() domain.Venue { return g.venue }

// FailNextFetches makes the next n FetchOrderBook calls fail transiently.
func (g *Gateway) FailNextFetches(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failFetch = n
}

// FailNextPlacements makes the next n PlaceOrder calls fail transiently.
func (g *Gateway) FailNextPlacements(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failPlace = n
}

// FetchOrderBook returns the simulated top of book, drifting mid by a small
// deterministic oscillation per call.
func (g *Gateway) FetchOrderBook(ctx context.Context, pair string) (domain.BookTop, error) {
	if err := ctx.Err(); err != nil {
		return domain.BookTop{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failFetch > 0 {
		g.failFetch--
		return domain.BookTop{}, domain.NewGatewayError(g.venue, domain.GatewayErrNetwork,
			fmt.Errorf("paper: injected fetch failure"))
	}

	book, ok := g.books[pair]
	if !ok {
		return domain.BookTop{}, domain.NewGatewayError(g.venue, domain.GatewayErrRejected,
			fmt.Errorf("paper: unknown pair %s", pair))
	}

	g.ticks++
	// Triangle-wave drift of +-5 steps of 0.01% keeps prices moving without
	// a RNG, so paper runs are reproducible.
	step := g.ticks % 20
	if step >= 10 {
		step = 20 - step
	}
	drift := float64(step-5) * 0.0001 * book.Mid
	mid := book.Mid + drift

	return domain.BookTop{
		BestBid: mid - book.Spread/2,
		BestAsk: mid + book.Spread/2,
		BidSize: book.Depth,
		AskSize: book.Depth,
	}, nil
}

// PlaceOrder fills market orders immediately and in full.
func (g *Gateway) PlaceOrder(ctx context.Context, pair string, side domain.OrderSide, amount, price float64) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failPlace > 0 {
		g.failPlace--
		return domain.OrderResult{}, domain.NewGatewayError(g.venue, domain.GatewayErrTimeout,
			fmt.Errorf("paper: injected placement failure"))
	}
	if _, ok := g.books[pair]; !ok {
		return domain.OrderResult{}, domain.NewGatewayError(g.venue, domain.GatewayErrRejected,
			fmt.Errorf("paper: unknown pair %s", pair))
	}
	if amount <= 0 {
		return domain.OrderResult{}, domain.NewGatewayError(g.venue, domain.GatewayErrRejected,
			fmt.Errorf("paper: non-positive amount %v", amount))
	}

	res := domain.OrderResult{
		OrderID:      uuid.New().String(),
		FilledAmount: amount,
	}
	g.orders[res.OrderID] = res
	return res, nil
}

// CancelOrder cancels a known order; unknown IDs return ErrNotFound.
func (g *Gateway) CancelOrder(ctx context.Context, pair, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.orders[orderID]; !ok {
		return fmt.Errorf("paper: cancel %s: %w", orderID, domain.ErrNotFound)
	}
	delete(g.orders, orderID)
	return nil
}

// FeeSchedule returns the configured fee rates.
func (g *Gateway) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	if err := ctx.Err(); err != nil {
		return domain.FeeSchedule{}, err
	}
	return g.fees, nil
}

// interface check
var _ domain.Gateway = (*Gateway)(nil)

// SeedBooks builds a one-pair book map seeded around mid with the given
// spread and depth.
func SeedBooks(pair string, mid, spread, depth float64) map[string]Book {
	return map[string]Book{
		pair: {Mid: mid, Spread: spread, Depth: depth},
	}
}
