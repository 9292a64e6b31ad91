package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the Prometheus sink for worker observations. All series carry a
// worker_id label so concurrent loops can be told apart on a dashboard.
type Metrics struct {
	processed   *prometheus.CounterVec
	durations   *prometheus.HistogramVec
	queueErrors *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
}

// New registers the worker series on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "video_worker",
			Name:      "tasks_processed_total",
			Help:      "Total number of tasks that reached a terminal outcome, by status.",
		}, []string{"status", "worker_id"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "video_worker",
			Name:      "task_processing_seconds",
			Help:      "Wall time spent processing one task.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status", "worker_id"}),
		queueErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "video_worker",
			Name:      "queue_errors_total",
			Help:      "Total number of queue transport failures.",
		}, []string{"worker_id"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "video_worker",
			Name:      "queue_depth",
			Help:      "Approximate number of messages waiting on the queue.",
		}, []string{"worker_id"}),
	}

	reg.MustRegister(m.processed, m.durations, m.queueErrors, m.queueDepth)
	return m
}

// IncTaskProcessed records one terminal task outcome.
func (m *Metrics) IncTaskProcessed(status, workerID string) {
	m.processed.WithLabelValues(status, workerID).Inc()
}

// ObserveProcessingDuration records the elapsed wall time of one iteration.
func (m *Metrics) ObserveProcessingDuration(status, workerID string, d time.Duration) {
	m.durations.WithLabelValues(status, workerID).Observe(d.Seconds())
}

// IncQueueError records a queue transport failure. Empty polls are not errors.
func (m *Metrics) IncQueueError(workerID string) {
	m.queueErrors.WithLabelValues(workerID).Inc()
}

// SetQueueDepth records the queue depth observed on the last fetch.
func (m *Metrics) SetQueueDepth(workerID string, depth int64) {
	m.queueDepth.WithLabelValues(workerID).Set(float64(depth))
}
