// Package redis backs the engine's cross-process concerns with one shared
// go-redis/v9 connection: the quote inspection cache, the event signal bus,
// and the per-symbol execution locks. Every key this package writes is
// namespaced under keyPrefix so the scanner's data stays recognizable on a
// shared Redis instance.
package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces every key written by this package.
const keyPrefix = "crossarb:"

// pingTimeout bounds the connectivity probe in New independently of the
// startup context.
const pingTimeout = 5 * time.Second

// ClientConfig holds connection parameters for the shared client.
type ClientConfig struct {
	Addr       string
	Password   string
	DB         int
	PoolSize   int
	MaxRetries int
	TLSEnabled bool
}

// Client owns the shared driver connection handed to the quote cache, signal
// bus, and lock manager constructors.
type Client struct {
	rdb *redis.Client
}

// New dials Redis and verifies connectivity before returning. Zero pool and
// retry settings fall back to conservative defaults so a minimal config still
// survives transient network errors.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	opts := &redis.Options{
		Addr:       cfg.Addr,
		Password:   cfg.Password,
		DB:         cfg.DB,
		PoolSize:   cfg.PoolSize,
		MaxRetries: cfg.MaxRetries,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis: connect %s: %w", cfg.Addr, err)
	}

	return &Client{rdb: rdb}, nil
}

// Ping probes connectivity, for the ops server's health endpoint.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Underlying exposes the driver client to the sibling implementations in this
// package.
func (c *Client) Underlying() *redis.Client {
	return c.rdb
}
