package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mlajoie/crossarb/internal/domain"
)

// defaultQuoteTTL bounds how long a cached quote can outlive its scan cycle.
// Anything older than the staleness window is useless to the scanner anyway.
const defaultQuoteTTL = 30 * time.Second

// QuoteCache implements domain.QuoteCache with one JSON value per
// (venue, symbol) key.
type QuoteCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewQuoteCache creates a QuoteCache backed by the given Client. A ttl of
// zero selects the default.
func NewQuoteCache(c *Client, ttl time.Duration) *QuoteCache {
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	return &QuoteCache{rdb: c.Underlying(), ttl: ttl}
}

func quoteKey(venue domain.Venue, symbol string) string {
	return fmt.Sprintf("%squote:%s:%s", keyPrefix, venue, symbol)
}

// Put stores a quote, replacing any previous quote for the same venue and
// symbol.
func (qc *QuoteCache) Put(ctx context.Context, q domain.Quote) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("redis: marshal quote: %w", err)
	}
	key := quoteKey(q.Venue, q.Symbol)
	if err := qc.rdb.Set(ctx, key, data, qc.ttl).Err(); err != nil {
		return fmt.Errorf("redis: put quote %s: %w", key, err)
	}
	return nil
}

// Get returns the cached quote for the venue and symbol, or
// domain.ErrNotFound if none is cached or it has expired.
func (qc *QuoteCache) Get(ctx context.Context, venue domain.Venue, symbol string) (domain.Quote, error) {
	key := quoteKey(venue, symbol)
	data, err := qc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return domain.Quote{}, domain.ErrNotFound
		}
		return domain.Quote{}, fmt.Errorf("redis: get quote %s: %w", key, err)
	}

	var q domain.Quote
	if err := json.Unmarshal(data, &q); err != nil {
		return domain.Quote{}, fmt.Errorf("redis: unmarshal quote %s: %w", key, err)
	}
	return q, nil
}

// Compile-time interface check.
var _ domain.QuoteCache = (*QuoteCache)(nil)
