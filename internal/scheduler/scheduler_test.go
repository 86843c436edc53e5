package scheduler

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	authdomain "github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"github.com/smallbiznis/parkvoucher/internal/auth/session"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	"github.com/smallbiznis/parkvoucher/internal/ratelimit"
	"go.uber.org/zap"
)

func newTestScheduler(t *testing.T, cfg Config) (*Scheduler, *clock.FakeClock, *session.MemoryStore, *ratelimit.MemoryLimiter) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	fake := clock.NewFakeClock(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	sessions := session.NewMemoryStore(fake)
	limiter := ratelimit.NewMemoryLimiter(fake)

	s, err := New(Params{
		Log:      zap.NewNop(),
		Sessions: sessions,
		Limiter:  limiter,
		GenID:    node,
		Clock:    fake,
		Config:   cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return s, fake, sessions, limiter
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestRunOnceSweepsExpiredSessions(t *testing.T) {
	s, fake, sessions, _ := newTestScheduler(t, Config{})
	ctx := context.Background()
	now := fake.Now()

	if err := sessions.Create(ctx, authdomain.Session{ID: "short", Username: "admin", CreatedAt: now, ExpiresAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("create session: %v", err)
	}
	if err := sessions.Create(ctx, authdomain.Session{ID: "long", Username: "admin", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatalf("create session: %v", err)
	}

	fake.Advance(2 * time.Minute)
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if removed, _ := sessions.SweepExpired(ctx); removed != 0 {
		t.Fatalf("expected sweep to have run already, %d left", removed)
	}
	if _, err := sessions.Get(ctx, "long"); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
}

func TestRunOncePrunesLimiter(t *testing.T) {
	s, fake, _, limiter := newTestScheduler(t, Config{EnabledJobs: []string{JobLimiterPrune}})
	ctx := context.Background()

	if _, err := limiter.Allow(ctx, "login:10.0.0.1", 5, time.Minute); err != nil {
		t.Fatalf("allow: %v", err)
	}
	fake.Advance(2 * time.Minute)
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("run once: %v", err)
	}

	if removed, _ := limiter.Prune(ctx); removed != 0 {
		t.Fatalf("expected the window to be pruned already, %d left", removed)
	}
}

func TestRunJobTimeoutIsSoft(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})
	err := s.runJob(context.Background(), "timeout_job", 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestRunJobRecoversPanic(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})
	err := s.runJob(context.Background(), "panic_job", time.Second, func(context.Context, *jobRun) error {
		panic("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "panic_job") {
		t.Fatalf("expected wrapped panic error, got %v", err)
	}
}

func TestIsJobEnabled(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{EnabledJobs: []string{"SESSION_SWEEP"}})
	if !s.isJobEnabled(JobSessionSweep) {
		t.Fatalf("expected %s enabled", JobSessionSweep)
	}
	if s.isJobEnabled(JobLimiterPrune) {
		t.Fatalf("expected %s disabled", JobLimiterPrune)
	}
}

func TestRunJobRecordsMetrics(t *testing.T) {
	s, _, _, _ := newTestScheduler(t, Config{})
	registry := prometheus.NewRegistry()
	s.metrics = obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "parkvoucher", Environment: "test"})

	_ = s.runJob(context.Background(), "ok_job", time.Second, func(_ context.Context, run *jobRun) error {
		run.AddProcessed(3)
		return nil
	})
	_ = s.runJob(context.Background(), "slow_job", 5*time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.runJob(context.Background(), "bad_job", time.Second, func(context.Context, *jobRun) error {
		return errors.New("boom")
	}); err == nil {
		t.Fatalf("expected bad_job to fail")
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range families {
		found[mf.GetName()] = true
	}
	for _, name := range []string{
		"parkvoucher_scheduler_job_runs_total",
		"parkvoucher_scheduler_batch_processed_total",
		"parkvoucher_scheduler_job_timeouts_total",
		"parkvoucher_scheduler_job_errors_total",
	} {
		if !found[name] {
			t.Fatalf("expected metric %s to be recorded", name)
		}
	}
	if got := testutil.CollectAndCount(registry, "parkvoucher_scheduler_job_runs_total"); got != 3 {
		t.Fatalf("expected 3 job run series, got %d", got)
	}
}
