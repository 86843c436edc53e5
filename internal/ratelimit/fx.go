package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewLimiter),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Clock     clock.Clock
	Log       *zap.Logger
}

// NewLimiter uses Redis when REDIS_ADDR is set and process memory otherwise.
func NewLimiter(p Params) Limiter {
	log := p.Log.Named("ratelimit")
	addr := strings.TrimSpace(p.Config.RedisAddr)
	if addr == "" {
		log.Info("using in-memory rate limiter")
		return NewMemoryLimiter(p.Clock)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(p.Config.RedisPassword),
		DB:       p.Config.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				log.Warn("redis ping failed", zap.String("addr", addr), zap.Error(err))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	log.Info("using redis rate limiter", zap.String("addr", addr))
	return NewRedisLimiter(client)
}
