package webhook

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts webhook ingress outcomes.
type Metrics struct {
	Events *prometheus.CounterVec
}

// NewMetrics registers the webhook metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Events: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "idv_webhook_events_total",
			Help: "Webhook events by type and outcome (processed, ignored, error, bad_signature, invalid_payload)",
		}, []string{"event_type", "outcome"}),
	}
}
