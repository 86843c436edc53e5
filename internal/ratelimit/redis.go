package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const keyPrefix = "parkvoucher:ratelimit:"

const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end

-- Return: count, ttl (milliseconds)
return {count, ttl}
`

// RedisLimiter shares windows across instances.
type RedisLimiter struct {
	client redis.UniversalClient
	script *redis.Script
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	if client == nil {
		return nil
	}
	return &RedisLimiter{
		client: client,
		script: redis.NewScript(fixedWindowScript),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, period time.Duration) (Result, error) {
	if l == nil || l.client == nil {
		return Result{}, errors.New("rate limiter not configured")
	}
	if err := validate(key, limit, period); err != nil {
		return Result{}, err
	}

	res, err := l.script.Run(ctx, l.client, []string{keyPrefix + key}, period.Milliseconds()).Slice()
	if err != nil {
		return Result{}, err
	}
	if len(res) < 2 {
		return Result{}, errors.New("invalid rate limit script response")
	}

	count := castToInt(res[0])
	ttl := time.Duration(castToInt(res[1])) * time.Millisecond
	return result(count, limit, ttl), nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Del(ctx, keyPrefix+key).Err()
}

func castToInt(v interface{}) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
