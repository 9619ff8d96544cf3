package cache

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Provider defines the cache operations the engine relies on: monitor
// lookups and short-lived report reuse.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

// Key joins parts into a namespaced cache key.
func Key(parts ...string) string {
	return "faultline:" + strings.Join(parts, ":")
}

// NoopProvider implements Provider but never stores data.
type NoopProvider struct{}

// Get always returns ErrCacheMiss.
func (NoopProvider) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

// Set discards the value and returns nil.
func (NoopProvider) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// Ping always reports healthy.
func (NoopProvider) Ping(context.Context) error { return nil }

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
