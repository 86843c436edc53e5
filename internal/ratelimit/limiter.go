package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidLimit = errors.New("rate limit must be positive")

// Result describes one attempt against a fixed window.
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts attempts per key in a fixed window that starts at the first
// attempt and resets lazily once it has elapsed.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
	Reset(ctx context.Context, key string) error
}

// Pruner is implemented by limiters that hold expired windows until swept.
// Redis expires its keys itself.
type Pruner interface {
	Prune(ctx context.Context) (int, error)
}

func validate(key string, limit int, window time.Duration) error {
	if key == "" {
		return errors.New("rate limiter key is empty")
	}
	if limit <= 0 || window <= 0 {
		return ErrInvalidLimit
	}
	return nil
}

func result(count int64, limit int, ttl time.Duration) Result {
	res := Result{
		Allowed: count <= int64(limit),
		Limit:   limit,
	}
	if remaining := int64(limit) - count; remaining > 0 {
		res.Remaining = int(remaining)
	}
	if !res.Allowed && ttl > 0 {
		res.RetryAfter = ttl
	}
	return res
}
