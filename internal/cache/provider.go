package cache

import (
	"context"
	"errors"
	"time"
)

// Provider defines the shared store operations needed by the insight engine:
// plain key/value for task records and insights, windowed counters for rate
// limiting, and lists for per-user history indexes.
type Provider interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	// SetIfMatch replaces the value at key only while it still equals expected,
	// reporting false when the stored value differs or changed mid-flight.
	SetIfMatch(ctx context.Context, key string, expected, value []byte, ttl time.Duration) (bool, error)
	Del(ctx context.Context, key string) error
	// IncrWindow atomically increments key, starting a fresh expiry window when
	// the key is new, and reports the post-increment count and remaining window.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	RPush(ctx context.Context, key string, value []byte) error
	LRange(ctx context.Context, key string, start, stop int64) ([][]byte, error)
	Close() error
}

// ErrCacheMiss signals that a cache key was not found.
var ErrCacheMiss = errors.New("cache miss")

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

// SetNX pretends to store the value and reports success.
func (NoopProvider) SetNX(context.Context, string, []byte, time.Duration) (bool, error) {
	return true, nil
}

// SetIfMatch pretends the swap succeeded.
func (NoopProvider) SetIfMatch(context.Context, string, []byte, []byte, time.Duration) (bool, error) {
	return true, nil
}

// Del is a no-op for the noop cache.
func (NoopProvider) Del(context.Context, string) error { return nil }

// IncrWindow always reports a count of 1, so rate limits never trip.
func (NoopProvider) IncrWindow(_ context.Context, _ string, window time.Duration) (int64, time.Duration, error) {
	return 1, window, nil
}

// RPush discards the value and returns nil.
func (NoopProvider) RPush(context.Context, string, []byte) error { return nil }

// LRange always returns an empty list.
func (NoopProvider) LRange(context.Context, string, int64, int64) ([][]byte, error) {
	return nil, nil
}

// Close is a no-op.
func (NoopProvider) Close() error { return nil }
