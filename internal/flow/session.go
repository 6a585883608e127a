package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"idv-gateway/internal/docauth"
	"idv-gateway/internal/platform/redis"
	"idv-gateway/internal/sentinel"
)

// Step is the flow position of one verification attempt.
type Step string

const (
	StepCollectingInput Step = "collecting_input"
	StepSubmitted       Step = "submitted"
	StepWaiting         Step = "waiting"
	StepComplete        Step = "complete"
	StepNeedsRetry      Step = "needs_retry"
	StepFatal           Step = "fatal"
)

// Session is the flow-level working record for one applicant's attempt. It
// accumulates extracted PII across steps; the capture session only ever holds
// one vendor result.
type Session struct {
	ApplicantID string `json:"applicant_id"`
	Step        Step   `json:"step"`

	// CaptureSessionUUID references the in-flight capture session; cleared
	// when the result is consumed so it cannot be reused.
	CaptureSessionUUID string `json:"capture_session_uuid,omitempty"`

	// Applicant holds the user-entered fields from the collect step.
	Applicant *docauth.Applicant `json:"applicant,omitempty"`

	// PII is the verified document data merged in on completion.
	PII *docauth.StateIDPII `json:"pii,omitempty"`

	// NeedsManualReview marks the attention-with-barcode success path.
	NeedsManualReview bool `json:"needs_manual_review,omitempty"`

	// SubmitAttempts counts document submissions for the rate-limit surface.
	SubmitAttempts int `json:"submit_attempts,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore persists flow sessions keyed by applicant id.
type SessionStore interface {
	// Get loads a session, sentinel.ErrNotFound when absent.
	Get(ctx context.Context, applicantID string) (*Session, error)

	// Put stores or replaces a session.
	Put(ctx context.Context, session *Session) error

	// Delete removes a session.
	Delete(ctx context.Context, applicantID string) error
}

// MemorySessionStore is the in-memory SessionStore for tests and development.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewMemorySessionStore creates an empty in-memory store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]*Session)}
}

var _ SessionStore = (*MemorySessionStore)(nil)

func (m *MemorySessionStore) Get(_ context.Context, applicantID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[applicantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (m *MemorySessionStore) Put(_ context.Context, session *Session) error {
	if session == nil || session.ApplicantID == "" {
		return sentinel.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *session
	m.sessions[session.ApplicantID] = &copied
	return nil
}

func (m *MemorySessionStore) Delete(_ context.Context, applicantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, applicantID)
	return nil
}

const flowSessionKeyPrefix = "idv:flow:session:"

// RedisSessionStore is the production SessionStore.
type RedisSessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionStore creates a redis-backed store with the given TTL.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration) *RedisSessionStore {
	return &RedisSessionStore{client: client, ttl: ttl}
}

var _ SessionStore = (*RedisSessionStore)(nil)

func (r *RedisSessionStore) Get(ctx context.Context, applicantID string) (*Session, error) {
	raw, err := r.client.Get(ctx, flowSessionKeyPrefix+applicantID).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get flow session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal flow session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionStore) Put(ctx context.Context, session *Session) error {
	if session == nil || session.ApplicantID == "" {
		return sentinel.ErrInvalidInput
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal flow session: %w", err)
	}
	if err := r.client.Set(ctx, flowSessionKeyPrefix+session.ApplicantID, payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("put flow session: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Delete(ctx context.Context, applicantID string) error {
	if err := r.client.Del(ctx, flowSessionKeyPrefix+applicantID).Err(); err != nil {
		return fmt.Errorf("delete flow session: %w", err)
	}
	return nil
}
