package ratelimit

import (
	"context"
	"sync"
	"time"
)

type windowState struct {
	start  time.Time
	window time.Duration
	count  int64
}

// MemoryStore is an in-process CounterStore. Windows reset lazily on the next
// increment after expiry, mirroring the INCR+PEXPIRE pattern of the shared
// store backends.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*windowState
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-process counter store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*windowState),
		now:     time.Now,
	}
}

// IncrWindow implements CounterStore.
func (s *MemoryStore) IncrWindow(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	state, ok := s.windows[key]
	if !ok || now.Sub(state.start) >= state.window {
		state = &windowState{start: now, window: window}
		s.windows[key] = state
	}
	state.count++

	remaining := state.window - now.Sub(state.start)
	if remaining < 0 {
		remaining = 0
	}
	return state.count, remaining, nil
}
