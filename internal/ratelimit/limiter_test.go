package ratelimit

import (
	"context"
	"os"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseLimiter(t *testing.T, l Limiter, key string, advance func(time.Duration)) {
	t.Helper()
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		res, err := l.Allow(ctx, key, 5, 15*time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "attempt %d", i)
		assert.Equal(t, 5-i, res.Remaining)
	}

	res, err := l.Allow(ctx, key, 5, 15*time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	require.NoError(t, l.Reset(ctx, key))
	res, err = l.Allow(ctx, key, 5, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	if advance == nil {
		return
	}
	for i := 0; i < 5; i++ {
		_, err = l.Allow(ctx, key, 5, 15*time.Minute)
		require.NoError(t, err)
	}
	advance(15 * time.Minute)
	res, err = l.Allow(ctx, key, 5, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window should reset after it elapses")
}

func TestMemoryLimiter(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	l := NewMemoryLimiter(fake)
	exerciseLimiter(t, l, "login:10.0.0.1", fake.Advance)

	res, err := l.Allow(context.Background(), "login:10.0.0.2", 5, 15*time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "keys are independent")
}

func TestMemoryLimiterValidates(t *testing.T) {
	l := NewMemoryLimiter(nil)
	_, err := l.Allow(context.Background(), "k", 0, time.Minute)
	assert.ErrorIs(t, err, ErrInvalidLimit)
	_, err = l.Allow(context.Background(), "", 1, time.Minute)
	assert.Error(t, err)
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })

	key := "test:" + time.Now().Format("150405.000000")
	l := NewRedisLimiter(client)
	t.Cleanup(func() { _ = l.Reset(context.Background(), key) })
	exerciseLimiter(t, l, key, nil)
}

func TestMemoryLimiterPrune(t *testing.T) {
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	l := NewMemoryLimiter(fake)
	ctx := context.Background()

	_, err := l.Allow(ctx, "login:10.0.0.1", 5, time.Minute)
	require.NoError(t, err)
	fake.Advance(30 * time.Second)
	_, err = l.Allow(ctx, "login:10.0.0.2", 5, time.Minute)
	require.NoError(t, err)

	fake.Advance(45 * time.Second)
	removed, err := l.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	removed, err = l.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}
