package domain

import (
	"context"
	"time"
)

// QuoteCache stores the most recent quote per (venue, symbol). The engine
// only writes to it when cross-cycle caching is explicitly enabled; quotes
// otherwise die with their scan cycle.
type QuoteCache interface {
	Put(ctx context.Context, q Quote) error
	Get(ctx context.Context, venue Venue, symbol string) (Quote, error)
}

// SignalBus is a pub/sub channel for engine events (opportunities found,
// executions started/settled/failed). Delivery is fire-and-forget.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// LockManager provides distributed mutual exclusion. The coordinator layers
// it over the in-process in-flight registry so that two engine replicas never
// execute the same symbol concurrently. Acquire returns ErrLockHeld when the
// lock is taken elsewhere.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
