package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTaskCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncTaskProcessed("processed", "worker-1")
	m.IncTaskProcessed("processed", "worker-1")
	m.IncTaskProcessed("failed", "worker-2")

	if got := testutil.ToFloat64(m.processed.WithLabelValues("processed", "worker-1")); got != 2 {
		t.Errorf("processed{processed,worker-1} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.processed.WithLabelValues("failed", "worker-2")); got != 1 {
		t.Errorf("processed{failed,worker-2} = %v, want 1", got)
	}
}

func TestQueueSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.IncQueueError("worker-1")
	m.SetQueueDepth("worker-1", 42)
	m.ObserveProcessingDuration("processed", "worker-1", 1500*time.Millisecond)

	if got := testutil.ToFloat64(m.queueErrors.WithLabelValues("worker-1")); got != 1 {
		t.Errorf("queueErrors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.queueDepth.WithLabelValues("worker-1")); got != 42 {
		t.Errorf("queueDepth = %v, want 42", got)
	}
	if got := testutil.CollectAndCount(m.durations); got != 1 {
		t.Errorf("durations series count = %d, want 1", got)
	}
}

func TestRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected duplicate registration to panic")
		}
	}()
	New(reg)
}
