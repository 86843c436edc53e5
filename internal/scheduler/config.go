package scheduler

import (
	"time"

	"github.com/smallbiznis/parkvoucher/internal/config"
)

const (
	JobSessionSweep = "session_sweep"
	JobLimiterPrune = "limiter_prune"
)

// Config controls maintenance intervals. An empty EnabledJobs runs every job.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval: 5 * time.Minute,
		JobTimeout:  30 * time.Second,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval: cfg.MaintenanceInterval,
		EnabledJobs: cfg.MaintenanceJobs,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}
