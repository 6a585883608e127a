// Package httptransport is the thin HTTP layer over the flow engine. Handlers
// translate between JSON and engine calls; no business logic lives here.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idv-gateway/internal/platform/health"
	"idv-gateway/internal/platform/metrics"
	"idv-gateway/internal/platform/middleware"
)

// RouterConfig carries everything the router needs beyond the handler itself.
type RouterConfig struct {
	JWTSigningKey []byte

	// Webhook is the vendor push ingress; mounted outside the bearer-auth
	// scope because vendors sign, they do not hold tokens.
	Webhook http.Handler

	Health *health.Handler

	// Metrics is optional; nil skips request instrumentation.
	Metrics *metrics.Metrics
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(h *Handler, cfg RouterConfig, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware)
	}
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(middleware.ContentTypeJSON)

	r.Route("/v1/flow", func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.JWTSigningKey, logger))

		r.Post("/document", h.handleSubmitDocument)
		r.Get("/wait", h.handlePollWait)
		r.Post("/verify", h.handleVerifyInfo)
		r.Delete("/session", h.handleAbandon)
	})

	if cfg.Webhook != nil {
		r.Method(http.MethodPost, "/webhooks/socure/event", cfg.Webhook)
	}

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	r.Handle("/metrics", promhttp.Handler())

	return r
}
