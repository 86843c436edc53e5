package config

import (
	"time"

	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewPolicyHolder),
	fx.Provide(func(cfg Config) *time.Location { return cfg.Location() }),
)
