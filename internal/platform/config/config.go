package config

import (
	"os"
	"time"
)

// Defaults chosen for development; production deployments override via env.
const (
	defaultAddr                 = ":8080"
	defaultCaptureResultTimeout = 90 * time.Second
	defaultCaptureSessionTTL    = 30 * time.Minute
	defaultVendorTimeout        = 45 * time.Second
	defaultPollInterval         = 3 * time.Second
)

// Vendor holds credentials and endpoints for one document-authentication or
// state-ID vendor.
type Vendor struct {
	BaseURL        string
	APIKey         string
	SubscriptionID string
	Timeout        time.Duration
}

// AAMVA holds the DLDV SOAP endpoint configuration.
type AAMVA struct {
	VerificationURL string
	AuthURL         string
	PrivateKey      string
	PublicKey       string
	CertMode        bool
	Timeout         time.Duration
}

// Redis captures connection settings for the capture-session store.
type Redis struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Kafka captures broker settings for the proofing job queue.
type Kafka struct {
	Brokers       string
	ProofingTopic string
	GroupID       string
}

// Server is the top-level service configuration assembled from the
// environment so main stays lean.
type Server struct {
	Addr          string
	Environment   string
	JWTSigningKey string

	// CaptureResultTimeout bounds how long the wait step keeps polling
	// before a session with no stored result is treated as timed out.
	CaptureResultTimeout time.Duration

	// CaptureSessionTTL bounds how long a session record survives in the
	// store before eviction (observed by the wait step as missing).
	CaptureSessionTTL time.Duration

	// PollInterval is the client re-poll hint returned by the wait step.
	PollInterval time.Duration

	WebhookSecret string

	// LivenessEnabled turns on selfie capture and the liveness checks.
	LivenessEnabled bool

	DocAuthVendor string // "acuant" or "socure"
	Acuant        Vendor
	Socure        Vendor
	AAMVA         AAMVA

	Redis Redis
	Kafka Kafka
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	return Server{
		Addr:                 envOr("IDV_ADDR", defaultAddr),
		Environment:          envOr("IDV_ENVIRONMENT", "development"),
		JWTSigningKey:        envOr("IDV_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		CaptureResultTimeout: envDuration("IDV_CAPTURE_RESULT_TIMEOUT", defaultCaptureResultTimeout),
		CaptureSessionTTL:    envDuration("IDV_CAPTURE_SESSION_TTL", defaultCaptureSessionTTL),
		PollInterval:         envDuration("IDV_POLL_INTERVAL", defaultPollInterval),
		WebhookSecret:        os.Getenv("IDV_WEBHOOK_SECRET"),
		LivenessEnabled:      os.Getenv("IDV_LIVENESS_ENABLED") == "true",
		DocAuthVendor:        envOr("IDV_DOC_AUTH_VENDOR", "acuant"),
		Acuant: Vendor{
			BaseURL:        os.Getenv("ACUANT_BASE_URL"),
			APIKey:         os.Getenv("ACUANT_API_KEY"),
			SubscriptionID: os.Getenv("ACUANT_SUBSCRIPTION_ID"),
			Timeout:        envDuration("ACUANT_TIMEOUT", defaultVendorTimeout),
		},
		Socure: Vendor{
			BaseURL: os.Getenv("SOCURE_BASE_URL"),
			APIKey:  os.Getenv("SOCURE_API_KEY"),
			Timeout: envDuration("SOCURE_TIMEOUT", defaultVendorTimeout),
		},
		AAMVA: AAMVA{
			VerificationURL: os.Getenv("AAMVA_VERIFICATION_URL"),
			AuthURL:         os.Getenv("AAMVA_AUTH_URL"),
			PrivateKey:      os.Getenv("AAMVA_PRIVATE_KEY"),
			PublicKey:       os.Getenv("AAMVA_PUBLIC_KEY"),
			CertMode:        os.Getenv("AAMVA_CERT_MODE") == "true",
			Timeout:         envDuration("AAMVA_TIMEOUT", defaultVendorTimeout),
		},
		Redis: Redis{
			URL:          os.Getenv("IDV_REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: Kafka{
			Brokers:       os.Getenv("IDV_KAFKA_BROKERS"),
			ProofingTopic: envOr("IDV_KAFKA_PROOFING_TOPIC", "idv.proofing.jobs"),
			GroupID:       envOr("IDV_KAFKA_GROUP_ID", "idv-proofing-workers"),
		},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
