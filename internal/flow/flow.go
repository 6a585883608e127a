// Package flow drives the verification step machine: collect, submit, wait,
// verify. The web tier is stateless per request; every transition is derived
// from the flow session and the capture session on each call.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/capture/store"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/flow/metrics"
	"idv-gateway/internal/platform/middleware"
	"idv-gateway/internal/platform/privacy"
	"idv-gateway/internal/proofing"
	"idv-gateway/internal/proofing/queue"
	"idv-gateway/internal/sentinel"
)

// User-facing message taxonomy. Nothing outside these three strings reaches
// the user; adapter internals never do.
const (
	MsgTryAgain       = "We could not verify your document. Check your information and try again."
	MsgContactSupport = "Something went wrong on our end. Try again, and contact support if this keeps happening."
	MsgRateLimited    = "Too many attempts. Wait a while before trying again."
)

// Internal retry reasons, logged and counted but never shown to users.
const (
	reasonVendorFailure    = "vendor_failure"
	reasonTimedOut         = "timed_out"
	reasonSessionMissing   = "session_missing"
	reasonDocNumberCheck   = "doc_number_check"
	reasonResolutionFailed = "resolution_failed"
)

// Config tunes the flow engine.
type Config struct {
	// ResultTimeout bounds how long the wait step keeps polling before
	// declaring the attempt timed out.
	ResultTimeout time.Duration

	// PollInterval is handed to the client as the re-poll delay.
	PollInterval time.Duration

	// MaxSubmitAttempts bounds document submissions per applicant (0 means 5).
	MaxSubmitAttempts int
}

func (c Config) maxSubmitAttempts() int {
	if c.MaxSubmitAttempts > 0 {
		return c.MaxSubmitAttempts
	}
	return 5
}

// Resolver runs the identity-resolution check against the verified document
// data before any format checks are allowed to fail.
type Resolver interface {
	Resolve(ctx context.Context, applicant *docauth.Applicant, pii *docauth.StateIDPII) (bool, []string, error)
}

// Engine owns the step transitions for all applicants.
type Engine struct {
	sessions SessionStore
	captures store.Store
	queue    queue.Enqueuer
	resolver Resolver
	tokens   store.TokenIndex

	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures the engine.
type Option func(*Engine)

// WithClock injects a clock (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithResolver overrides the identity-resolution check.
func WithResolver(r Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

// WithDocvTokenIndex records vendor-side capture tokens at submit time so
// webhook events can be routed back to their capture session.
func WithDocvTokenIndex(idx store.TokenIndex) Option {
	return func(e *Engine) { e.tokens = idx }
}

// New creates a flow engine.
func New(sessions SessionStore, captures store.Store, q queue.Enqueuer, cfg Config, logger *slog.Logger, m *metrics.Metrics, opts ...Option) *Engine {
	e := &Engine{
		sessions: sessions,
		captures: captures,
		queue:    q,
		resolver: piiResolver{},
		cfg:      cfg,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SubmitInput is the document-submission payload.
type SubmitInput struct {
	FrontImage []byte
	BackImage  []byte
	Selfie     []byte

	DocvTransactionToken string

	Applicant *docauth.Applicant

	LivenessEnabled bool
}

// SubmitResult reports the submit transition.
type SubmitResult struct {
	Step               Step
	CaptureSessionUUID string

	// Duplicate marks an idempotent re-submission: the existing job is still
	// running and no second job was enqueued.
	Duplicate bool

	RateLimited bool
	Message     string
}

// SubmitDocument runs the submitted transition: create a capture session,
// enqueue the proofing job, move to waiting. Resubmitting while a job is in
// flight is idempotent.
func (e *Engine) SubmitDocument(ctx context.Context, applicantID string, input SubmitInput) (*SubmitResult, error) {
	if err := validateSubmitInput(input); err != nil {
		e.countSubmission("invalid")
		return nil, err
	}

	sess, err := e.loadOrCreateSession(ctx, applicantID)
	if err != nil {
		return nil, err
	}

	if dup := e.duplicateSubmission(ctx, sess); dup != nil {
		e.countSubmission("duplicate")
		return dup, nil
	}

	if sess.SubmitAttempts >= e.cfg.maxSubmitAttempts() {
		e.countSubmission("rate_limited")
		return &SubmitResult{Step: StepNeedsRetry, RateLimited: true, Message: MsgRateLimited}, nil
	}

	now := e.now()
	captureSession := &capture.Session{
		UUID:        uuid.NewString(),
		ApplicantID: applicantID,
		CreatedAt:   now,
	}
	if err := e.captures.Create(ctx, captureSession); err != nil {
		return nil, fmt.Errorf("create capture session: %w", err)
	}
	if err := e.captures.MarkRequested(ctx, captureSession.UUID, now); err != nil {
		return nil, fmt.Errorf("mark capture requested: %w", err)
	}
	if input.DocvTransactionToken != "" && e.tokens != nil {
		if err := e.tokens.Bind(ctx, input.DocvTransactionToken, captureSession.UUID); err != nil {
			return nil, fmt.Errorf("bind docv token: %w", err)
		}
	}

	err = e.queue.Enqueue(ctx, proofing.Args{
		SessionUUID:          captureSession.UUID,
		TraceID:              middleware.GetRequestID(ctx),
		FrontImage:           input.FrontImage,
		BackImage:            input.BackImage,
		Selfie:               input.Selfie,
		DocvTransactionToken: input.DocvTransactionToken,
		Applicant:            input.Applicant,
		LivenessEnabled:      input.LivenessEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue proofing job: %w", err)
	}

	sess.Step = StepWaiting
	sess.CaptureSessionUUID = captureSession.UUID
	sess.Applicant = input.Applicant
	sess.SubmitAttempts++
	sess.UpdatedAt = now
	if err := e.sessions.Put(ctx, sess); err != nil {
		return nil, fmt.Errorf("save flow session: %w", err)
	}

	e.countSubmission("enqueued")
	e.logger.Info("document submitted",
		"applicant_id", applicantID,
		"attempt", sess.SubmitAttempts)

	return &SubmitResult{Step: StepWaiting, CaptureSessionUUID: captureSession.UUID}, nil
}

// duplicateSubmission reports the idempotent result when the session already
// references a live capture session, nil when a fresh submit may proceed.
func (e *Engine) duplicateSubmission(ctx context.Context, sess *Session) *SubmitResult {
	if sess.CaptureSessionUUID == "" {
		return nil
	}

	captureSession, err := e.captures.Get(ctx, sess.CaptureSessionUUID)
	if err != nil {
		// Evicted reference: the wait step will report it; let resubmission
		// start fresh.
		return nil
	}
	switch captureSession.State(e.now(), e.cfg.ResultTimeout) {
	case capture.StateInProgress, capture.StateDone:
		return &SubmitResult{
			Step:               StepWaiting,
			CaptureSessionUUID: sess.CaptureSessionUUID,
			Duplicate:          true,
		}
	default:
		return nil
	}
}

// WaitResult reports the waiting transition.
type WaitResult struct {
	Step Step

	// RetryAfter is the client re-poll delay while still waiting.
	RetryAfter time.Duration

	// Errors carries user-facing error groups on needs_retry.
	Errors  map[string]any
	Message string

	// Reason is the internal needs_retry classification for logs.
	Reason string

	// Set on complete.
	PII               *docauth.StateIDPII
	NeedsManualReview bool
}

// PollWait runs the waiting transition: derive the capture state and map it
// to the next step.
func (e *Engine) PollWait(ctx context.Context, applicantID string) (*WaitResult, error) {
	sess, err := e.sessions.Get(ctx, applicantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &WaitResult{Step: StepCollectingInput}, nil
	}
	if err != nil {
		return e.fatal(applicantID, err), nil
	}

	if sess.CaptureSessionUUID == "" {
		if sess.Step == StepComplete {
			return &WaitResult{Step: StepComplete, PII: sess.PII, NeedsManualReview: sess.NeedsManualReview}, nil
		}
		return &WaitResult{Step: StepCollectingInput}, nil
	}

	captureSession, err := e.captures.Get(ctx, sess.CaptureSessionUUID)
	if errors.Is(err, sentinel.ErrNotFound) {
		e.countPoll(string(capture.StateMissing))
		return e.needsRetry(ctx, sess, reasonSessionMissing, nil, MsgTryAgain)
	}
	if err != nil {
		return e.fatal(applicantID, err), nil
	}

	state := captureSession.State(e.now(), e.cfg.ResultTimeout)
	e.countPoll(string(state))

	switch state {
	case capture.StateInProgress:
		return &WaitResult{Step: StepWaiting, RetryAfter: e.cfg.PollInterval}, nil

	case capture.StateTimedOut:
		return e.needsRetry(ctx, sess, reasonTimedOut, nil, MsgTryAgain)

	case capture.StateDone:
		return e.consumeResult(ctx, sess, captureSession.Result)

	default:
		// None cannot occur with a session reference present; treat it as
		// missing rather than crash.
		return e.needsRetry(ctx, sess, reasonSessionMissing, nil, MsgTryAgain)
	}
}

// consumeResult finishes the waiting step for a committed result.
func (e *Engine) consumeResult(ctx context.Context, sess *Session, result *docauth.Response) (*WaitResult, error) {
	if !result.Success {
		message := MsgTryAgain
		if result.Exception != "" {
			message = MsgContactSupport
		}
		return e.needsRetry(ctx, sess, reasonVendorFailure, result.Errors, message)
	}

	// Secondary check on the extracted document number before declaring the
	// step complete; a failure here is treated exactly like a vendor failure.
	if !validDocumentNumber(result.PII) {
		return e.needsRetry(ctx, sess, reasonDocNumberCheck, map[string]any{
			"id": []string{"doc_number_checks"},
		}, MsgTryAgain)
	}

	// Consume: merge PII, clear the capture reference so it cannot be reused.
	if err := e.captures.Delete(ctx, sess.CaptureSessionUUID); err != nil {
		return e.fatal(sess.ApplicantID, err), nil
	}
	sess.Step = StepComplete
	sess.CaptureSessionUUID = ""
	sess.PII = result.PII
	sess.NeedsManualReview = result.AttentionWithBarcode
	sess.UpdatedAt = e.now()
	if err := e.sessions.Put(ctx, sess); err != nil {
		return e.fatal(sess.ApplicantID, err), nil
	}

	e.countTerminal(string(StepComplete))
	e.logger.Info("document verification complete",
		"applicant_id", sess.ApplicantID,
		"needs_manual_review", sess.NeedsManualReview)

	return &WaitResult{
		Step:              StepComplete,
		PII:               sess.PII,
		NeedsManualReview: sess.NeedsManualReview,
	}, nil
}

func (e *Engine) needsRetry(ctx context.Context, sess *Session, reason string, errGroups map[string]any, message string) (*WaitResult, error) {
	sess.Step = StepNeedsRetry
	sess.CaptureSessionUUID = ""
	sess.UpdatedAt = e.now()
	if err := e.sessions.Put(ctx, sess); err != nil {
		return e.fatal(sess.ApplicantID, err), nil
	}

	if e.metrics != nil {
		e.metrics.RetryReason.WithLabelValues(reason).Inc()
	}
	e.logger.Info("verification needs retry",
		"applicant_id", sess.ApplicantID,
		"reason", reason)

	return &WaitResult{
		Step:    StepNeedsRetry,
		Errors:  errGroups,
		Message: message,
		Reason:  reason,
	}, nil
}

// fatal is the unexpected-internal-failure path: generic message, detailed
// log, nothing vendor-shaped in the result.
func (e *Engine) fatal(applicantID string, err error) *WaitResult {
	e.logger.Error("flow step failed",
		"applicant_id", applicantID,
		"error", err)
	e.countTerminal(string(StepFatal))
	return &WaitResult{Step: StepFatal, Message: MsgContactSupport}
}

// VerifyInput is the verify-info submission.
type VerifyInput struct {
	SSN string
}

// VerifyResult reports the verify-info transition.
type VerifyResult struct {
	Step    Step
	Errors  map[string]any
	Message string

	// RedactedStateIDNumber is safe to echo back to the client.
	RedactedStateIDNumber string
	NeedsManualReview     bool
}

var ssnPattern = regexp.MustCompile(`^(\d{3})-?(\d{2})-?(\d{4})$`)

// VerifyInfo runs the resolution path after the document step completed.
//
// The resolution check always runs before the SSN format check. Flipping the
// order would let a caller learn whether an SSN is well-formed before their
// identity resolved, a discovery side channel.
func (e *Engine) VerifyInfo(ctx context.Context, applicantID string, input VerifyInput) (*VerifyResult, error) {
	sess, err := e.sessions.Get(ctx, applicantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, sentinel.ErrInvalidState
	}
	if err != nil {
		return nil, err
	}
	if sess.Step != StepComplete || sess.PII == nil {
		return nil, sentinel.ErrInvalidState
	}

	resolved, reasons, err := e.resolver.Resolve(ctx, sess.Applicant, sess.PII)
	if err != nil {
		return nil, fmt.Errorf("resolution check: %w", err)
	}
	if !resolved {
		if e.metrics != nil {
			e.metrics.RetryReason.WithLabelValues(reasonResolutionFailed).Inc()
		}
		e.logger.Info("identity resolution failed",
			"applicant_id", applicantID,
			"reason_count", len(reasons))
		return &VerifyResult{
			Step:    StepNeedsRetry,
			Errors:  map[string]any{"resolution": reasons},
			Message: MsgTryAgain,
		}, nil
	}

	if !validSSN(input.SSN) {
		return &VerifyResult{
			Step:    StepCollectingInput,
			Errors:  map[string]any{"ssn": []string{"format"}},
			Message: MsgTryAgain,
		}, nil
	}

	return &VerifyResult{
		Step:                  StepComplete,
		RedactedStateIDNumber: privacy.RedactAlphanumeric(sess.PII.StateIDNumber),
		NeedsManualReview:     sess.NeedsManualReview,
	}, nil
}

// Abandon clears the attempt's working state.
func (e *Engine) Abandon(ctx context.Context, applicantID string) error {
	sess, err := e.sessions.Get(ctx, applicantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if sess.CaptureSessionUUID != "" {
		if err := e.captures.Delete(ctx, sess.CaptureSessionUUID); err != nil {
			return err
		}
	}
	return e.sessions.Delete(ctx, applicantID)
}

func (e *Engine) loadOrCreateSession(ctx context.Context, applicantID string) (*Session, error) {
	sess, err := e.sessions.Get(ctx, applicantID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return &Session{ApplicantID: applicantID, Step: StepCollectingInput}, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (e *Engine) countSubmission(outcome string) {
	if e.metrics != nil {
		e.metrics.Submissions.WithLabelValues(outcome).Inc()
	}
}

func (e *Engine) countPoll(state string) {
	if e.metrics != nil {
		e.metrics.Polls.WithLabelValues(state).Inc()
	}
}

func (e *Engine) countTerminal(step string) {
	if e.metrics != nil {
		e.metrics.Completions.WithLabelValues(step).Inc()
	}
}

// validateSubmitInput enforces presence only; content validation is the
// vendors' job.
func validateSubmitInput(input SubmitInput) error {
	hasImages := len(input.FrontImage) > 0 && len(input.BackImage) > 0
	if !hasImages && input.DocvTransactionToken == "" {
		return fmt.Errorf("%w: front and back images, or a docv transaction token, are required", sentinel.ErrInvalidInput)
	}
	return nil
}

// validDocumentNumber is the post-verification sanity check on the extracted
// ID number.
func validDocumentNumber(pii *docauth.StateIDPII) bool {
	if pii == nil || pii.StateIDNumber == "" {
		return false
	}
	if len(pii.StateIDNumber) > 25 {
		return false
	}
	return true
}

// validSSN checks format only: nine digits with optional dashes, excluding
// the never-issued area numbers.
func validSSN(ssn string) bool {
	m := ssnPattern.FindStringSubmatch(ssn)
	if m == nil {
		return false
	}
	area, group, serial := m[1], m[2], m[3]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	if group == "00" || serial == "0000" {
		return false
	}
	return true
}

// piiResolver is the default identity-resolution check: the fields the user
// typed must agree with what the document said.
type piiResolver struct{}

func (piiResolver) Resolve(_ context.Context, applicant *docauth.Applicant, pii *docauth.StateIDPII) (bool, []string, error) {
	if applicant == nil {
		// Vendor-side capture flows carry no typed fields; the document
		// stands alone.
		return true, nil, nil
	}

	var reasons []string
	check := func(field, entered, extracted string) {
		if entered != "" && extracted != "" && !strings.EqualFold(entered, extracted) {
			reasons = append(reasons, "Failed to resolve "+field)
		}
	}
	check("last_name", applicant.LastName, pii.LastName)
	check("first_name", applicant.FirstName, pii.FirstName)
	check("state_id_number", applicant.StateIDNumber, pii.StateIDNumber)

	return len(reasons) == 0, reasons, nil
}
