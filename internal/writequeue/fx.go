package writequeue

import (
	"context"

	obsmetrics "github.com/smallbiznis/parkvoucher/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("writequeue",
	fx.Provide(Provide),
)

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Log       *zap.Logger
	Metrics   *obsmetrics.WriteQueueMetrics `optional:"true"`
	Expected  Classifier                    `optional:"true"`
}

func Provide(p Params) *Queue {
	q := New(Options{
		Log:      p.Log,
		Metrics:  p.Metrics,
		Expected: p.Expected,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			q.Start()
			return nil
		},
		OnStop: q.Stop,
	})
	return q
}
