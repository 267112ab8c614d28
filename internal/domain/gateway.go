package domain

import (
	"context"
	"errors"
	"fmt"
)

// OrderResult is the gateway's acknowledgement of a placed order.
type OrderResult struct {
	OrderID      string
	FilledAmount float64
}

// Gateway is the capability set the core consumes from each exchange
// connector. Venue-specific quirks (authentication, pair spelling, rate
// limits) are entirely internal to implementations. Every call honours the
// caller's context deadline.
type Gateway interface {
	// Venue identifies which exchange this gateway talks to.
	Venue() Venue

	// FetchOrderBook returns the current top of book for a venue pair.
	FetchOrderBook(ctx context.Context, pair string) (BookTop, error)

	// PlaceOrder submits an order. A zero price means market order.
	PlaceOrder(ctx context.Context, pair string, side OrderSide, amount, price float64) (OrderResult, error)

	// CancelOrder cancels a previously placed order.
	CancelOrder(ctx context.Context, pair, orderID string) error

	// FeeSchedule returns the venue's current fee rates.
	FeeSchedule(ctx context.Context) (FeeSchedule, error)
}

// GatewayErrorKind classifies gateway failures so callers can separate
// transient venue trouble from hard rejections.
type GatewayErrorKind string

const (
	GatewayErrTimeout     GatewayErrorKind = "timeout"
	GatewayErrRateLimited GatewayErrorKind = "rate_limited"
	GatewayErrNetwork     GatewayErrorKind = "network"
	GatewayErrRejected    GatewayErrorKind = "rejected"
	GatewayErrMalformed   GatewayErrorKind = "malformed"
)

// GatewayError tags an underlying gateway failure with its venue and kind.
type GatewayError struct {
	Venue Venue
	Kind  GatewayErrorKind
	Err   error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Venue, e.Kind, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Transient reports whether the failure is worth retrying.
func (e *GatewayError) Transient() bool {
	switch e.Kind {
	case GatewayErrTimeout, GatewayErrRateLimited, GatewayErrNetwork:
		return true
	}
	return false
}

// NewGatewayError wraps err with venue and kind tags.
func NewGatewayError(venue Venue, kind GatewayErrorKind, err error) *GatewayError {
	return &GatewayError{Venue: venue, Kind: kind, Err: err}
}

// IsTransientGatewayError reports whether err (or anything it wraps) is a
// transient gateway failure. Context deadline expiry counts as transient.
func IsTransientGatewayError(err error) bool {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient()
	}
	return errors.Is(err, context.DeadlineExceeded)
}
