package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"contentmill/internal/pkg/config"
)

// WorkerMetrics provides Prometheus metrics for the queue-consumer runtime.
// It embeds the standard ConfigMetrics for configuration monitoring and adds
// runtime metrics for message handling.
//
// Embedded metrics (from ConfigMetrics):
//   - worker_config_load_timestamp
//   - worker_config_validation_errors_total
//   - worker_config_fallbacks_total
//   - worker_config_fallback_active
//
// Runtime metrics:
//   - worker_messages_handled_total: handled deliveries by queue and disposition
//   - worker_poll_errors_total: failed queue receives
//   - worker_last_handled_timestamp: Unix time of the last settled delivery
//
// Handler latency is covered by the shared queue_handle_duration_seconds
// histogram in observability/metrics.
type WorkerMetrics struct {
	*config.ConfigMetrics

	// MessagesHandledTotal counts settled deliveries.
	// Labels: queue, disposition (done, leave, redeliver, dead)
	MessagesHandledTotal *prometheus.CounterVec

	// PollErrorsTotal counts failed receives against the queue backend.
	PollErrorsTotal prometheus.Counter

	// LastHandledTimestamp records when the worker last settled a delivery.
	// A stale value on a busy queue means the worker is stuck.
	LastHandledTimestamp prometheus.Gauge
}

// NewWorkerMetrics creates the runtime metrics. Metrics register with the
// default Prometheus registry on creation, so call this once per process.
func NewWorkerMetrics() *WorkerMetrics {
	return &WorkerMetrics{
		ConfigMetrics: config.NewConfigMetrics("worker"),

		MessagesHandledTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_messages_handled_total",
			Help: "Total number of queue deliveries handled, by queue and disposition",
		}, []string{"queue", "disposition"}),

		PollErrorsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_poll_errors_total",
			Help: "Total number of failed queue receive calls",
		}),

		LastHandledTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_handled_timestamp",
			Help: "Unix timestamp of the last settled delivery",
		}),
	}
}

// MustRegister is a no-op kept for the conventional init sequence; metrics
// are auto-registered via promauto when created in NewWorkerMetrics.
func (m *WorkerMetrics) MustRegister() {}

// RecordHandled counts one settled delivery.
func (m *WorkerMetrics) RecordHandled(queue, disposition string) {
	m.MessagesHandledTotal.WithLabelValues(queue, disposition).Inc()
	m.LastHandledTimestamp.SetToCurrentTime()
}

// RecordPollError counts one failed queue receive.
func (m *WorkerMetrics) RecordPollError() {
	m.PollErrorsTotal.Inc()
}
