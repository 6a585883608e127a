// Package metrics provides Prometheus metrics for the verification step flow.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all step-flow metrics.
type Metrics struct {
	Submissions *prometheus.CounterVec // Document submissions by outcome
	Polls       *prometheus.CounterVec // Wait-view polls by derived session state
	Completions *prometheus.CounterVec // Attempts reaching a terminal step
	RetryReason *prometheus.CounterVec // needs_retry outcomes by internal reason
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		Submissions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_flow_submissions_total",
			Help: "Document submissions by outcome (enqueued, duplicate, invalid, rate_limited)",
		}, []string{"outcome"}),

		Polls: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_flow_polls_total",
			Help: "Wait-view polls by derived capture-session state",
		}, []string{"state"}),

		Completions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_flow_terminal_total",
			Help: "Verification attempts reaching a terminal step",
		}, []string{"step"}),

		RetryReason: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_flow_retry_reasons_total",
			Help: "needs_retry outcomes by internal reason (vendor_failure, timed_out, session_missing, resolution_failed)",
		}, []string{"reason"}),
	}
}
