package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/parkvoucher/internal/clock"
)

type window struct {
	count   int64
	resetAt time.Time
}

// MemoryLimiter keeps windows in process memory.
type MemoryLimiter struct {
	clock clock.Clock

	mu      sync.Mutex
	windows map[string]*window
}

func NewMemoryLimiter(c clock.Clock) *MemoryLimiter {
	if c == nil {
		c = clock.SystemClock{}
	}
	return &MemoryLimiter{
		clock:   c,
		windows: make(map[string]*window),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int, period time.Duration) (Result, error) {
	if err := validate(key, limit, period); err != nil {
		return Result{}, err
	}

	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(period)}
		l.windows[key] = w
	}
	w.count++
	return result(w.count, limit, w.resetAt.Sub(now)), nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	delete(l.windows, key)
	l.mu.Unlock()
	return nil
}

// Prune drops windows that have already expired and reports how many went.
func (l *MemoryLimiter) Prune(_ context.Context) (int, error) {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, w := range l.windows {
		if !now.Before(w.resetAt) {
			delete(l.windows, key)
			removed++
		}
	}
	return removed, nil
}
