// Package ratelimit implements per-tenant fixed-window admission control over
// a shared counter store with atomic increment-with-expiry semantics.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// CounterStore is the shared counter collaborator. IncrWindow must atomically
// increment the counter for key, starting a window of the given duration when
// the key is new or its previous window has lapsed, and return the
// post-increment count plus the time remaining until the window resets.
type CounterStore interface {
	IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, remaining time.Duration, err error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Count      int64
	RetryAfter time.Duration
}

// DeniedError reports an admission denial with the wait until the window resets.
type DeniedError struct {
	TenantID   string
	RetryAfter time.Duration
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("rate limit exceeded for tenant %s, retry after %s", e.TenantID, e.RetryAfter)
}

// Limiter admits requests per tenant within a fixed window.
type Limiter struct {
	store  CounterStore
	limit  int64
	window time.Duration
}

// NewLimiter constructs a Limiter allowing limit requests per window per tenant.
func NewLimiter(store CounterStore, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{store: store, limit: int64(limit), window: window}
}

// Admit increments the tenant's window counter and decides admission. The
// increment-and-compare relies on the store's atomicity, so concurrent calls
// for one tenant never lose updates.
func (l *Limiter) Admit(ctx context.Context, tenantID string) (Decision, error) {
	count, remaining, err := l.store.IncrWindow(ctx, counterKey(tenantID), l.window)
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit counter: %w", err)
	}
	if count > l.limit {
		return Decision{Allowed: false, Count: count, RetryAfter: remaining}, nil
	}
	return Decision{Allowed: true, Count: count}, nil
}

func counterKey(tenantID string) string {
	return "ratelimit:" + tenantID
}
