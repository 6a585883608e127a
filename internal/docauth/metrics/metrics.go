// Package metrics provides Prometheus metrics for vendor verification calls.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all vendor call metrics.
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec   // Vendor requests by vendor and outcome
	RequestDurationSeconds *prometheus.HistogramVec // Vendor call latency by vendor
	ErrorsTotal            *prometheus.CounterVec   // Vendor errors by vendor and category
}

// New creates a new Metrics instance with all metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_vendor_requests_total",
			Help: "Total number of vendor verification requests by vendor and outcome",
		}, []string{"vendor", "outcome"}),

		RequestDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "idv_vendor_request_duration_seconds",
			Help:    "Duration of vendor verification calls by vendor",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60}, // Vendor latencies run into tens of seconds
		}, []string{"vendor"}),

		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_vendor_errors_total",
			Help: "Total number of vendor call failures by vendor and error category",
		}, []string{"vendor", "category"}),
	}
}

// RecordRequest records a completed vendor call and its latency.
func (m *Metrics) RecordRequest(vendor, outcome string, durationSeconds float64) {
	m.RequestsTotal.WithLabelValues(vendor, outcome).Inc()
	m.RequestDurationSeconds.WithLabelValues(vendor).Observe(durationSeconds)
}

// RecordError records a vendor call failure by category.
func (m *Metrics) RecordError(vendor, category string) {
	m.ErrorsTotal.WithLabelValues(vendor, category).Inc()
}
