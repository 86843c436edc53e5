package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	TaskOutcomeOK       = "ok"
	TaskOutcomeExpected = "expected"
	TaskOutcomeFailed   = "failed"
	TaskOutcomePanic    = "panic"
)

// WriteQueueMetrics tracks the single-writer mutation queue.
type WriteQueueMetrics struct {
	depth        prometheus.Gauge
	taskDuration *prometheus.HistogramVec
	taskWait     prometheus.Histogram
	taskResults  *prometheus.CounterVec
}

func NewWriteQueueMetrics(registerer prometheus.Registerer, cfg Config) *WriteQueueMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "parkvoucher"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	depth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "parkvoucher_writequeue_depth",
		Help:        "Mutations waiting for the single writer.",
		ConstLabels: constLabels,
	})
	taskDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "parkvoucher_writequeue_task_duration_seconds",
		Help:        "Time spent executing a queued mutation.",
		Buckets:     []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		ConstLabels: constLabels,
	}, []string{"task"})
	taskWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "parkvoucher_writequeue_wait_seconds",
		Help:        "Time a mutation waited behind earlier ones.",
		Buckets:     []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		ConstLabels: constLabels,
	})
	taskResults := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "parkvoucher_writequeue_tasks_total",
		Help:        "Queued mutations by task and outcome.",
		ConstLabels: constLabels,
	}, []string{"task", "outcome"})

	registerer.MustRegister(depth, taskDuration, taskWait, taskResults)

	return &WriteQueueMetrics{
		depth:        depth,
		taskDuration: taskDuration,
		taskWait:     taskWait,
		taskResults:  taskResults,
	}
}

func (m *WriteQueueMetrics) SetDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}

func (m *WriteQueueMetrics) ObserveWait(d time.Duration) {
	if m == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	m.taskWait.Observe(d.Seconds())
}

// ObserveTask records duration and outcome for a finished task.
func (m *WriteQueueMetrics) ObserveTask(task, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.taskDuration.WithLabelValues(task).Observe(d.Seconds())
	m.taskResults.WithLabelValues(task, outcome).Inc()
}
