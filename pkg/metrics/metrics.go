// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// OperationsProcessedTotal tracks pending operations processed by outcome.
	OperationsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "outbox_operations_processed_total",
			Help: "Pending operations processed by the retry job",
		},
		[]string{"operation_type", "outcome"},
	)

	// OperationsByStatus tracks the current number of operations per status.
	OperationsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "outbox_operations",
			Help: "Current pending operations by status",
		},
		[]string{"status"},
	)

	// BatchDuration tracks retry batch duration.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "outbox_batch_duration_seconds",
			Help:    "Retry batch processing duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	// CRMSyncDuration tracks CRM deal sync call duration.
	CRMSyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_sync_duration_seconds",
			Help:    "CRM deal sync call duration",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"status"},
	)

	// AlertsSentTotal tracks alerts delivered by type and severity.
	AlertsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_sent_total",
			Help: "Alerts delivered to at least one channel",
		},
		[]string{"alert_type", "severity"},
	)

	// AlertsSuppressedTotal tracks alerts suppressed by debounce.
	AlertsSuppressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "alerts_suppressed_total",
			Help: "Alerts suppressed by the debounce window",
		},
		[]string{"alert_type"},
	)

	// PauseTransitionsTotal tracks agent pause/resume transitions.
	PauseTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_pause_transitions_total",
			Help: "Agent pause state transitions",
		},
		[]string{"transition", "reason"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordOperation records the outcome of one processed operation.
func RecordOperation(operationType, outcome string) {
	OperationsProcessedTotal.WithLabelValues(operationType, outcome).Inc()
}

// RecordCounts records the current per-status operation counts.
func RecordCounts(pending, processing, completed, failed int) {
	OperationsByStatus.WithLabelValues("pending").Set(float64(pending))
	OperationsByStatus.WithLabelValues("processing").Set(float64(processing))
	OperationsByStatus.WithLabelValues("completed").Set(float64(completed))
	OperationsByStatus.WithLabelValues("failed").Set(float64(failed))
}

// RecordAlertSent records a delivered alert.
func RecordAlertSent(alertType, severity string) {
	AlertsSentTotal.WithLabelValues(alertType, severity).Inc()
}

// RecordAlertSuppressed records a debounced alert.
func RecordAlertSuppressed(alertType string) {
	AlertsSuppressedTotal.WithLabelValues(alertType).Inc()
}

// RecordPauseTransition records a pause or resume transition.
func RecordPauseTransition(transition, reason string) {
	PauseTransitionsTotal.WithLabelValues(transition, reason).Inc()
}
