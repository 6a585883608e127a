package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"idv-gateway/internal/capture/store"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/docauth/aamva"
	"idv-gateway/internal/docauth/acuant"
	docmetrics "idv-gateway/internal/docauth/metrics"
	"idv-gateway/internal/docauth/socure"
	"idv-gateway/internal/docauth/tracer"
	"idv-gateway/internal/events"
	"idv-gateway/internal/flow"
	flowmetrics "idv-gateway/internal/flow/metrics"
	"idv-gateway/internal/platform/config"
	"idv-gateway/internal/platform/health"
	"idv-gateway/internal/platform/httpserver"
	"idv-gateway/internal/platform/kafka"
	"idv-gateway/internal/platform/kafka/consumer"
	"idv-gateway/internal/platform/kafka/producer"
	"idv-gateway/internal/platform/logger"
	platformmetrics "idv-gateway/internal/platform/metrics"
	"idv-gateway/internal/platform/redis"
	"idv-gateway/internal/proofing"
	"idv-gateway/internal/proofing/queue"
	httptransport "idv-gateway/internal/transport/http"
	"idv-gateway/internal/webhook"
)

// main wires high-level dependencies and keeps the server lifecycle small.
// Business logic lives in the internal packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	log.Info("initializing idv-gateway",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"doc_auth_vendor", cfg.DocAuthVendor,
	)

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis init failed", "error", err)
		os.Exit(1)
	}

	var (
		captures store.Store
		tokens   store.TokenIndex
		sessions flow.SessionStore
	)
	if redisClient != nil {
		captures = store.NewRedis(redisClient, cfg.CaptureSessionTTL)
		tokens = store.NewRedisTokenIndex(redisClient, cfg.CaptureSessionTTL)
		sessions = flow.NewRedisSessionStore(redisClient, cfg.CaptureSessionTTL)
	} else {
		log.Warn("redis not configured, using in-memory stores")
		captures = store.NewMemory(cfg.CaptureSessionTTL)
		tokens = store.NewMemoryTokenIndex()
		sessions = flow.NewMemorySessionStore()
	}

	vendorMetrics := docmetrics.New()
	tr := tracer.NewOTel()

	verifier := buildVerifier(cfg, log, vendorMetrics, tr)
	if verifier == nil {
		log.Error("no document authentication vendor configured",
			"vendor", cfg.DocAuthVendor)
		os.Exit(1)
	}

	var stateID aamva.StateIDVerifier
	if cfg.AAMVA.VerificationURL != "" {
		stateID = aamva.New(aamva.Config{
			VerificationURL: cfg.AAMVA.VerificationURL,
			AuthURL:         cfg.AAMVA.AuthURL,
			PrivateKey:      cfg.AAMVA.PrivateKey,
			PublicKey:       cfg.AAMVA.PublicKey,
			CertMode:        cfg.AAMVA.CertMode,
			Timeout:         cfg.AAMVA.Timeout,
		}, log, vendorMetrics, tr)
	}

	job := proofing.New(verifier, stateID, captures, log, tr)

	healthHandler := health.New(cfg.Environment)
	if redisClient != nil {
		healthHandler.RegisterCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return redisClient.Health(ctx)
		})
	}

	enqueuer, stopQueue := buildQueue(cfg, job, healthHandler, log)
	defer stopQueue()

	engine := flow.New(sessions, captures, enqueuer, flow.Config{
		ResultTimeout: cfg.CaptureResultTimeout,
		PollInterval:  cfg.PollInterval,
	}, log, flowmetrics.New(), flow.WithDocvTokenIndex(tokens))

	router := httptransport.NewRouter(
		httptransport.NewHandler(engine, cfg.LivenessEnabled, log),
		httptransport.RouterConfig{
			JWTSigningKey: []byte(cfg.JWTSigningKey),
			Webhook:       buildWebhook(cfg, tokens, captures, log, vendorMetrics, tr),
			Health:        healthHandler,
			Metrics:       platformmetrics.New(),
		}, log)

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server gracefully")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	if redisClient != nil {
		_ = redisClient.Close()
	}
	log.Info("server stopped")
}

// buildVerifier selects the document-authentication adapter. Nil means no
// vendor is usable with the current configuration.
func buildVerifier(cfg config.Server, log *slog.Logger, m *docmetrics.Metrics, tr tracer.Tracer) docauth.Verifier {
	switch cfg.DocAuthVendor {
	case "acuant":
		if cfg.Acuant.BaseURL == "" {
			return nil
		}
		return acuant.New(acuant.Config{
			BaseURL:         cfg.Acuant.BaseURL,
			APIKey:          cfg.Acuant.APIKey,
			SubscriptionID:  cfg.Acuant.SubscriptionID,
			Timeout:         cfg.Acuant.Timeout,
			LivenessEnabled: cfg.LivenessEnabled,
		}, log, m, tr)
	case "socure":
		if cfg.Socure.BaseURL == "" {
			return nil
		}
		return socure.New(socure.Config{
			BaseURL: cfg.Socure.BaseURL,
			APIKey:  cfg.Socure.APIKey,
			Timeout: cfg.Socure.Timeout,
		}, log, m, tr)
	default:
		return nil
	}
}

// buildQueue prefers Kafka; without brokers the proofing job runs in-process,
// which keeps development single-binary.
func buildQueue(cfg config.Server, job *proofing.Job, healthHandler *health.Handler, log *slog.Logger) (queue.Enqueuer, func()) {
	if cfg.Kafka.Brokers == "" {
		log.Warn("kafka not configured, running proofing jobs in-process")
		return queue.NewInProc(job, log), func() {}
	}

	p, err := producer.New(producer.Config{
		Brokers: cfg.Kafka.Brokers,
		Retries: 3,
	}, log)
	if err != nil {
		log.Error("kafka producer init failed", "error", err)
		os.Exit(1)
	}

	c, err := consumer.New(consumer.Config{
		Brokers: cfg.Kafka.Brokers,
		GroupID: cfg.Kafka.GroupID,
	}, queue.NewWorker(job, log), log)
	if err != nil {
		log.Error("kafka consumer init failed", "error", err)
		os.Exit(1)
	}
	if err := c.Subscribe([]string{cfg.Kafka.ProofingTopic}); err != nil {
		log.Error("kafka subscribe failed", "error", err)
		os.Exit(1)
	}
	c.Start()

	kafkaCheck := kafka.NewHealthChecker(cfg.Kafka.Brokers)
	healthHandler.RegisterCheck("kafka", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return kafkaCheck.Check(ctx)
	})

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.Stop(ctx); err != nil {
			log.Warn("kafka consumer stop failed", "error", err)
		}
		_ = p.Close()
	}
	return queue.NewKafka(p, cfg.Kafka.ProofingTopic), stop
}

// buildWebhook assembles the vendor push ingress. Nil disables the route;
// accepting unsigned events would be worse than accepting none.
func buildWebhook(cfg config.Server, tokens store.TokenIndex, captures store.Store, log *slog.Logger, m *docmetrics.Metrics, tr tracer.Tracer) http.Handler {
	if cfg.WebhookSecret == "" || cfg.Socure.BaseURL == "" {
		log.Warn("webhook ingress disabled",
			"secret_configured", cfg.WebhookSecret != "",
			"socure_configured", cfg.Socure.BaseURL != "")
		return nil
	}

	docv := socure.New(socure.Config{
		BaseURL: cfg.Socure.BaseURL,
		APIKey:  cfg.Socure.APIKey,
		Timeout: cfg.Socure.Timeout,
	}, log, m, tr)

	registry := events.NewRegistry()
	webhook.NewDocvResultHandler(docv, tokens, captures, log).Register(registry)

	return webhook.New(cfg.WebhookSecret, registry, log, webhook.NewMetrics())
}
