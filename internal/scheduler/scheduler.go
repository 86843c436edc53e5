package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/parkvoucher/internal/auditcontext"
	authdomain "github.com/smallbiznis/parkvoucher/internal/auth/domain"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	"github.com/smallbiznis/parkvoucher/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log      *zap.Logger
	Sessions authdomain.SessionStore
	Limiter  ratelimit.Limiter `optional:"true"`
	GenID    *snowflake.Node
	Clock    clock.Clock
	Config   Config                       `optional:"true"`
	Metrics  *obsmetrics.SchedulerMetrics `optional:"true"`
}

// Scheduler runs periodic housekeeping. Jobs never touch vouchers or usages.
type Scheduler struct {
	log      *zap.Logger
	cfg      Config
	genID    *snowflake.Node
	clock    clock.Clock
	sessions authdomain.SessionStore
	limiter  ratelimit.Limiter
	metrics  *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Sessions == nil || p.GenID == nil || p.Clock == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:      p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:      p.Config.withDefaults(),
		genID:    p.GenID,
		clock:    p.Clock,
		sessions: p.Sessions,
		limiter:  p.Limiter,
		metrics:  p.Metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) (err error) {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx = auditcontext.WithActor(ctx, auditcontext.ActorTypeSystem, "scheduler")
	ctx, run := s.startJobRun(ctx, name)
	s.logJobStart(ctx, run)
	s.metrics.IncJobRun(name)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
		if err != nil {
			run.IncError()
			s.metrics.IncJobError(name, obsmetrics.ClassifySchedulerJobError(err))
		}
		s.metrics.AddProcessed(name, run.processedCount)
		s.metrics.ObserveJobDuration(name, s.clock.Now().Sub(run.startedAt))
		s.logJobFinish(ctx, run)
	}()

	err = fn(ctx, run)
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick retries
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.metrics.IncJobTimeout(name)
		s.logger(ctx).Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context, *jobRun) error
	}{
		{JobSessionSweep, s.SessionSweepJob},
		{JobLimiterPrune, s.LimiterPruneJob},
	}

	for _, job := range jobs {
		if !s.isJobEnabled(job.Name) {
			continue
		}
		err = errors.Join(err, s.runJob(parent, job.Name, s.cfg.JobTimeout, job.Run))
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// SessionSweepJob forgets admin sessions past their expiry.
func (s *Scheduler) SessionSweepJob(ctx context.Context, run *jobRun) error {
	removed, err := s.sessions.SweepExpired(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(removed)
	return nil
}

// LimiterPruneJob drops expired login windows from limiters that keep them in
// memory.
func (s *Scheduler) LimiterPruneJob(ctx context.Context, run *jobRun) error {
	pruner, ok := s.limiter.(ratelimit.Pruner)
	if !ok {
		return nil
	}
	removed, err := pruner.Prune(ctx)
	if err != nil {
		return err
	}
	run.AddProcessed(removed)
	return nil
}
