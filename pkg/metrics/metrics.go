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

	// AdvanceDuration tracks how long one state-machine advance takes,
	// extraction and store round trips included.
	AdvanceDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "triage_advance_duration_seconds",
			Help:    "Session advance duration in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"event", "status"},
	)

	// TransitionsTotal tracks committed phase transitions.
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_transitions_total",
			Help: "Total committed phase transitions",
		},
		[]string{"from", "to"},
	)

	// TriageLocksTotal tracks locked triage decisions.
	TriageLocksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_locks_total",
			Help: "Total locked triage decisions",
		},
		[]string{"department", "risk_level"},
	)

	// ExtractorTimeoutsTotal tracks extractor calls degraded to no-op.
	ExtractorTimeoutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_extractor_timeouts_total",
			Help: "Total extractor calls that timed out and degraded to no updates",
		},
		[]string{"provider"},
	)

	// SaveConflictsTotal tracks lost conditional writes, by outcome of
	// the single retry.
	SaveConflictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_save_conflicts_total",
			Help: "Total optimistic save conflicts",
		},
		[]string{"outcome"},
	)

	// SessionsStartedTotal tracks sessions created on first message.
	SessionsStartedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_sessions_started_total",
			Help: "Total sessions created",
		},
	)

	// HandoffsTotal tracks booking handoffs published on completion.
	HandoffsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "triage_handoffs_total",
			Help: "Total booking handoffs published",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordAdvance records metrics for one session advance.
func RecordAdvance(event, status string, duration float64) {
	AdvanceDuration.WithLabelValues(event, status).Observe(duration)
}

// RecordTransition records a committed phase transition.
func RecordTransition(from, to string) {
	TransitionsTotal.WithLabelValues(from, to).Inc()
}
