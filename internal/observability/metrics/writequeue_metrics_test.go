package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestWriteQueueMetricsCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewWriteQueueMetrics(registry, Config{ServiceName: "parkvoucher", Environment: "test"})

	m.SetDepth(3)
	m.ObserveTask("voucher.use", TaskOutcomeOK, 2*time.Millisecond)
	m.ObserveTask("voucher.use", TaskOutcomeExpected, time.Millisecond)
	m.ObserveTask("voucher.use", TaskOutcomeOK, time.Millisecond)

	if got := testutil.ToFloat64(m.depth); got != 3 {
		t.Fatalf("expected depth 3, got %v", got)
	}
	if got := testutil.ToFloat64(m.taskResults.WithLabelValues("voucher.use", TaskOutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok tasks, got %v", got)
	}
	if got := testutil.ToFloat64(m.taskResults.WithLabelValues("voucher.use", TaskOutcomeExpected)); got != 1 {
		t.Fatalf("expected 1 expected-error task, got %v", got)
	}
}

func TestNilWriteQueueMetricsAreSafe(t *testing.T) {
	var m *WriteQueueMetrics
	m.SetDepth(1)
	m.ObserveWait(time.Second)
	m.ObserveTask("x", TaskOutcomeFailed, time.Second)
}
