// Package aggregator fans out concurrent order-book fetches across venues
// and collects them into a per-cycle snapshot. Fetch failures are captured
// per venue and never abort the aggregation; fewer than two responding
// venues simply means no cross-venue comparison is possible this cycle.
package aggregator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mlajoie/crossarb/internal/domain"
)

// Config holds aggregation parameters.
type Config struct {
	// FetchTimeout bounds each per-venue order-book fetch.
	FetchTimeout time.Duration
	// CacheQuotes enables writing fetched quotes to the quote cache.
	// Off by default: quotes normally die with their scan cycle.
	CacheQuotes bool
}

// Aggregator fetches one quote per venue concurrently for a symbol.
type Aggregator struct {
	gateways map[domain.Venue]domain.Gateway
	symbols  *domain.SymbolMap
	cache    domain.QuoteCache
	cfg      Config
	logger   *slog.Logger
}

// New creates an Aggregator over the given gateways. cache may be nil when
// cross-cycle caching is disabled.
func New(
	gateways map[domain.Venue]domain.Gateway,
	symbols *domain.SymbolMap,
	cache domain.QuoteCache,
	cfg Config,
	logger *slog.Logger,
) *Aggregator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 3 * time.Second
	}
	return &Aggregator{
		gateways: gateways,
		symbols:  symbols,
		cache:    cache,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "aggregator")),
	}
}

// Snapshot fetches the top of book for symbol on every mapped venue. Each
// fetch writes into its own result slot, so no locking is needed beyond the
// goroutine join. The returned error is non-nil only when the cycle context
// itself was cancelled.
func (a *Aggregator) Snapshot(ctx context.Context, symbol string) (domain.QuoteSet, error) {
	venues := a.symbols.Venues(symbol)
	set := domain.QuoteSet{Symbol: symbol, CycleStart: time.Now().UTC()}

	type slot struct {
		quote domain.Quote
		err   error
	}
	slots := make([]slot, len(venues))

	g, gctx := errgroup.WithContext(ctx)
	for i, venue := range venues {
		gw, ok := a.gateways[venue]
		if !ok {
			slots[i].err = fmt.Errorf("%w: no gateway configured for %s", domain.ErrVenueUnavailable, venue)
			continue
		}
		pair, err := a.symbols.Pair(symbol, venue)
		if err != nil {
			slots[i].err = err
			continue
		}
		i, venue := i, venue
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, a.cfg.FetchTimeout)
			defer cancel()

			top, err := gw.FetchOrderBook(fetchCtx, pair)
			if err != nil {
				slots[i].err = err
				return nil
			}
			q := domain.Quote{
				Venue:      venue,
				Symbol:     symbol,
				BestBid:    top.BestBid,
				BestAsk:    top.BestAsk,
				BidSize:    top.BidSize,
				AskSize:    top.AskSize,
				ObservedAt: time.Now().UTC(),
			}
			if q.Crossed() || q.BestBid <= 0 || q.BestAsk <= 0 {
				slots[i].err = domain.NewGatewayError(venue, domain.GatewayErrMalformed,
					fmt.Errorf("bad top of book bid=%v ask=%v", top.BestBid, top.BestAsk))
				return nil
			}
			slots[i].quote = q
			return nil
		})
	}
	// Goroutines always return nil; Wait only propagates context errors.
	if err := g.Wait(); err != nil {
		return set, err
	}
	if err := ctx.Err(); err != nil {
		return set, err
	}

	for i, venue := range venues {
		if slots[i].err != nil {
			a.logger.Debug("venue fetch failed",
				slog.String("symbol", symbol),
				slog.String("venue", string(venue)),
				slog.String("error", slots[i].err.Error()),
			)
			set.Failures = append(set.Failures, domain.VenueFailure{Venue: venue, Err: slots[i].err})
			continue
		}
		set.Quotes = append(set.Quotes, slots[i].quote)
	}

	if a.cfg.CacheQuotes && a.cache != nil {
		for _, q := range set.Quotes {
			if err := a.cache.Put(ctx, q); err != nil {
				a.logger.Warn("quote cache write failed",
					slog.String("venue", string(q.Venue)),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return set, nil
}
