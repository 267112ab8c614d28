package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrLockHeld           = errors.New("lock already held")
	ErrStaleOpportunity   = errors.New("opportunity is stale")
	ErrExecutionInFlight  = errors.New("execution already in flight for symbol")
	ErrInvalidOpportunity = errors.New("invalid opportunity")
	ErrVenueUnavailable   = errors.New("venue unavailable")
)
