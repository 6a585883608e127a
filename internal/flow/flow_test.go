package flow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/capture/store"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/platform/logger"
	"idv-gateway/internal/proofing"
	"idv-gateway/internal/sentinel"
)

type recordingQueue struct {
	enqueued []proofing.Args
}

func (q *recordingQueue) Enqueue(_ context.Context, args proofing.Args) error {
	q.enqueued = append(q.enqueued, args)
	return nil
}

type testEnv struct {
	engine   *Engine
	sessions SessionStore
	captures store.Store
	queue    *recordingQueue
	now      time.Time
	clock    *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Now()
	clock := &now

	sessions := NewMemorySessionStore()
	captures := store.NewMemory(30*time.Minute, store.WithClock(func() time.Time { return *clock }))
	q := &recordingQueue{}

	engine := New(sessions, captures, q, Config{
		ResultTimeout: 90 * time.Second,
		PollInterval:  3 * time.Second,
	}, logger.New(), nil, WithClock(func() time.Time { return *clock }))

	return &testEnv{engine: engine, sessions: sessions, captures: captures, queue: q, now: now, clock: clock}
}

func (env *testEnv) advance(d time.Duration) {
	*env.clock = env.clock.Add(d)
}

func submitInput() SubmitInput {
	return SubmitInput{
		FrontImage: []byte("front"),
		BackImage:  []byte("back"),
		Applicant: &docauth.Applicant{
			FirstName:           "Jane",
			LastName:            "Doe",
			DOB:                 "1986-10-13",
			StateIDNumber:       "1111111111111",
			StateIDJurisdiction: "MT",
		},
	}
}

func successResult() *docauth.Response {
	return &docauth.Response{
		Success: true,
		PII: &docauth.StateIDPII{
			FirstName:     "Jane",
			LastName:      "Doe",
			StateIDNumber: "1111111111111",
		},
	}
}

func TestSubmitDocument_EnqueuesJob(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.SubmitDocument(context.Background(), "a1", submitInput())

	require.NoError(t, err)
	assert.Equal(t, StepWaiting, result.Step)
	assert.False(t, result.Duplicate)
	require.Len(t, env.queue.enqueued, 1)
	assert.Equal(t, result.CaptureSessionUUID, env.queue.enqueued[0].SessionUUID)

	got, err := env.captures.Get(context.Background(), result.CaptureSessionUUID)
	require.NoError(t, err)
	assert.Equal(t, capture.StateInProgress, got.State(env.now, 90*time.Second))
}

func TestSubmitDocument_ResubmissionWhileInProgressIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.engine.SubmitDocument(context.Background(), "a1", submitInput())
	require.NoError(t, err)

	second, err := env.engine.SubmitDocument(context.Background(), "a1", submitInput())
	require.NoError(t, err)

	assert.True(t, second.Duplicate)
	assert.Equal(t, first.CaptureSessionUUID, second.CaptureSessionUUID)
	assert.Len(t, env.queue.enqueued, 1, "no second job may be enqueued")
}

func TestSubmitDocument_ResubmissionAfterTimeoutStartsFresh(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.engine.SubmitDocument(context.Background(), "a1", submitInput())
	require.NoError(t, err)

	env.advance(2 * time.Minute)

	second, err := env.engine.SubmitDocument(context.Background(), "a1", submitInput())
	require.NoError(t, err)

	assert.False(t, second.Duplicate)
	assert.NotEqual(t, first.CaptureSessionUUID, second.CaptureSessionUUID)
	assert.Len(t, env.queue.enqueued, 2)
}

func TestSubmitDocument_ValidatesPresence(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.SubmitDocument(context.Background(), "a1", SubmitInput{FrontImage: []byte("only front")})
	assert.ErrorIs(t, err, sentinel.ErrInvalidInput)

	// A docv token alone is a valid vendor-side capture submission.
	result, err := env.engine.SubmitDocument(context.Background(), "a1", SubmitInput{DocvTransactionToken: "token-1"})
	require.NoError(t, err)
	assert.Equal(t, StepWaiting, result.Step)
}

func TestSubmitDocument_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		result, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
		require.NoError(t, err)
		require.False(t, result.RateLimited)

		// Consume each attempt so the next one is not a duplicate.
		_, err = env.captures.WriteResultOnce(ctx, result.CaptureSessionUUID,
			&docauth.Response{Success: false, Errors: map[string]any{"id": []string{"general_error"}}})
		require.NoError(t, err)
		_, err = env.engine.PollWait(ctx, "a1")
		require.NoError(t, err)
	}

	result, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)
	assert.True(t, result.RateLimited)
	assert.Equal(t, MsgRateLimited, result.Message)
	assert.Len(t, env.queue.enqueued, 5)
}

func TestPollWait_NoSession(t *testing.T) {
	env := newTestEnv(t)

	result, err := env.engine.PollWait(context.Background(), "a1")

	require.NoError(t, err)
	assert.Equal(t, StepCollectingInput, result.Step)
}

func TestPollWait_InProgress(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.engine.SubmitDocument(context.Background(), "a1", submitInput())
	require.NoError(t, err)

	result, err := env.engine.PollWait(context.Background(), "a1")

	require.NoError(t, err)
	assert.Equal(t, StepWaiting, result.Step)
	assert.Equal(t, 3*time.Second, result.RetryAfter)
}

func TestPollWait_DoneSuccessCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	_, err = env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, successResult())
	require.NoError(t, err)

	result, err := env.engine.PollWait(ctx, "a1")

	require.NoError(t, err)
	assert.Equal(t, StepComplete, result.Step)
	require.NotNil(t, result.PII)
	assert.Equal(t, "Jane", result.PII.FirstName)
	assert.False(t, result.NeedsManualReview)

	// The capture-session reference is cleared and the record deleted.
	sess, err := env.sessions.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Empty(t, sess.CaptureSessionUUID)
	_, err = env.captures.Get(ctx, submitted.CaptureSessionUUID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestPollWait_AttentionWithBarcodeNeedsManualReview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	result := successResult()
	result.AttentionWithBarcode = true
	_, err = env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, result)
	require.NoError(t, err)

	got, err := env.engine.PollWait(ctx, "a1")

	require.NoError(t, err)
	assert.Equal(t, StepComplete, got.Step)
	assert.True(t, got.NeedsManualReview)
}

func TestPollWait_DoneFailureNeedsRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	_, err = env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, &docauth.Response{
		Success: false,
		Errors:  map[string]any{"id": []string{"birth_date_checks"}},
	})
	require.NoError(t, err)

	result, err := env.engine.PollWait(ctx, "a1")

	require.NoError(t, err)
	assert.Equal(t, StepNeedsRetry, result.Step)
	assert.Equal(t, "vendor_failure", result.Reason)
	assert.Equal(t, MsgTryAgain, result.Message)
	assert.Contains(t, result.Errors, "id")
}

func TestPollWait_NetworkFailureSuggestsSupport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	stored := docauth.NetworkFailureResponse(assert.AnError)
	_, err = env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, stored)
	require.NoError(t, err)

	result, err := env.engine.PollWait(ctx, "a1")

	require.NoError(t, err)
	assert.Equal(t, StepNeedsRetry, result.Step)
	assert.Equal(t, MsgContactSupport, result.Message)
}

func TestPollWait_TimedOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	env.advance(91 * time.Second)

	result, err := env.engine.PollWait(ctx, "a1")

	require.NoError(t, err)
	assert.Equal(t, StepNeedsRetry, result.Step)
	assert.Equal(t, "timed_out", result.Reason)
}

func TestPollWait_MissingSessionDistinctReason(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	// Simulate TTL eviction.
	require.NoError(t, env.captures.Delete(ctx, submitted.CaptureSessionUUID))

	result, err := env.engine.PollWait(ctx, "a1")

	require.NoError(t, err)
	assert.Equal(t, StepNeedsRetry, result.Step)
	assert.Equal(t, "session_missing", result.Reason)
}

func TestPollWait_LateResultNotSurfacedAfterRetry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	env.advance(91 * time.Second)
	result, err := env.engine.PollWait(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StepNeedsRetry, result.Step)

	// The late result is still written for audit, but the user has moved on.
	committed, err := env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, successResult())
	require.NoError(t, err)
	assert.True(t, committed)

	again, err := env.engine.PollWait(ctx, "a1")
	require.NoError(t, err)
	assert.NotEqual(t, StepComplete, again.Step)
}

func completedEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	ctx := context.Background()

	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)
	_, err = env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, successResult())
	require.NoError(t, err)
	result, err := env.engine.PollWait(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, StepComplete, result.Step)
	return env
}

func TestVerifyInfo_Success(t *testing.T) {
	env := completedEnv(t)

	result, err := env.engine.VerifyInfo(context.Background(), "a1", VerifyInput{SSN: "123-45-6789"})

	require.NoError(t, err)
	assert.Equal(t, StepComplete, result.Step)
	assert.Equal(t, "#############", result.RedactedStateIDNumber)
	assert.NotContains(t, result.RedactedStateIDNumber, "1111111111111")
}

func TestVerifyInfo_ResolutionRunsBeforeSSNFormatCheck(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	input := submitInput()
	input.Applicant.LastName = "Smith" // will not resolve against the document
	submitted, err := env.engine.SubmitDocument(ctx, "a1", input)
	require.NoError(t, err)
	_, err = env.captures.WriteResultOnce(ctx, submitted.CaptureSessionUUID, successResult())
	require.NoError(t, err)
	_, err = env.engine.PollWait(ctx, "a1")
	require.NoError(t, err)

	// Both checks would fail; only the resolution failure may surface.
	result, err := env.engine.VerifyInfo(ctx, "a1", VerifyInput{SSN: "not-an-ssn"})

	require.NoError(t, err)
	assert.Equal(t, StepNeedsRetry, result.Step)
	assert.Contains(t, result.Errors, "resolution")
	assert.NotContains(t, result.Errors, "ssn")
}

func TestVerifyInfo_SSNFormat(t *testing.T) {
	env := completedEnv(t)
	ctx := context.Background()

	for _, ssn := range []string{"", "12-34-5678", "000-12-3456", "666-12-3456", "900-12-3456", "123-00-4567", "123-45-0000"} {
		result, err := env.engine.VerifyInfo(ctx, "a1", VerifyInput{SSN: ssn})
		require.NoError(t, err)
		assert.Contains(t, result.Errors, "ssn", "ssn %q must fail the format check", ssn)
	}

	result, err := env.engine.VerifyInfo(ctx, "a1", VerifyInput{SSN: "123456789"})
	require.NoError(t, err)
	assert.Equal(t, StepComplete, result.Step)
}

func TestVerifyInfo_RequiresCompletedDocumentStep(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.VerifyInfo(context.Background(), "a1", VerifyInput{SSN: "123-45-6789"})
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)

	_, err = env.engine.SubmitDocument(context.Background(), "a1", submitInput())
	require.NoError(t, err)
	_, err = env.engine.VerifyInfo(context.Background(), "a1", VerifyInput{SSN: "123-45-6789"})
	assert.ErrorIs(t, err, sentinel.ErrInvalidState)
}

func TestAbandon(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	submitted, err := env.engine.SubmitDocument(ctx, "a1", submitInput())
	require.NoError(t, err)

	require.NoError(t, env.engine.Abandon(ctx, "a1"))

	_, err = env.sessions.Get(ctx, "a1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	_, err = env.captures.Get(ctx, submitted.CaptureSessionUUID)
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
