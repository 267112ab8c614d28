// Package gateway provides decorators and test doubles around the venue
// gateway capability. Real venue connectors live outside this repository and
// are plugged in through the same interface.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"github.com/mlajoie/crossarb/internal/domain"
)

// RetryConfig bounds the read-path retry behaviour.
type RetryConfig struct {
	// Attempts is the total number of tries per call, including the first.
	Attempts int
	// Backoff is the initial pause between tries; it doubles per retry.
	Backoff time.Duration
}

// retrying wraps a Gateway and retries transient failures on the read path
// (order books, fee schedules). Order placement and cancellation pass
// through untouched: their retry semantics belong to the execution
// coordinator, which knows whether a fill may already have happened.
type retrying struct {
	inner  domain.Gateway
	cfg    RetryConfig
	logger *slog.Logger
}

// WithRetry decorates g with bounded read-path retries.
func WithRetry(g domain.Gateway, cfg RetryConfig, logger *slog.Logger) domain.Gateway {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 200 * time.Millisecond
	}
	return &retrying{
		inner:  g,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "gateway_retry"), slog.String("venue", string(g.Venue()))),
	}
}

func (r *retrying) Venue() domain.Venue { return r.inner.Venue() }

func (r *retrying) FetchOrderBook(ctx context.Context, pair string) (domain.BookTop, error) {
	var top domain.BookTop
	err := r.retry(ctx, "fetch_order_book", func(c context.Context) error {
		var err error
		top, err = r.inner.FetchOrderBook(c, pair)
		return err
	})
	return top, err
}

func (r *retrying) PlaceOrder(ctx context.Context, pair string, side domain.OrderSide, amount, price float64) (domain.OrderResult, error) {
	return r.inner.PlaceOrder(ctx, pair, side, amount, price)
}

func (r *retrying) CancelOrder(ctx context.Context, pair, orderID string) error {
	return r.inner.CancelOrder(ctx, pair, orderID)
}

func (r *retrying) FeeSchedule(ctx context.Context) (domain.FeeSchedule, error) {
	var fs domain.FeeSchedule
	err := r.retry(ctx, "fee_schedule", func(c context.Context) error {
		var err error
		fs, err = r.inner.FeeSchedule(c)
		return err
	})
	return fs, err
}

func (r *retrying) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	backoff := r.cfg.Backoff
	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !domain.IsTransientGatewayError(lastErr) || attempt == r.cfg.Attempts {
			return lastErr
		}
		r.logger.Debug("transient error, retrying",
			slog.String("op", op),
			slog.Int("attempt", attempt),
			slog.String("error", lastErr.Error()),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return lastErr
}
