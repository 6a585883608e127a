// Package capture holds the document-capture session: the durable record
// coordinating one in-flight or completed vendor verification attempt.
package capture

import (
	"time"

	"idv-gateway/internal/docauth"
)

// AsyncState is the derived lifecycle state of a capture session. A session
// is always in exactly one state.
type AsyncState string

const (
	// StateNone means the flow holds no capture-session reference.
	StateNone AsyncState = "none"

	// StateInProgress means a proofing job was requested and no result has
	// been committed yet.
	StateInProgress AsyncState = "in_progress"

	// StateDone means a result is committed and readable.
	StateDone AsyncState = "done"

	// StateTimedOut means the result window elapsed with no committed result.
	StateTimedOut AsyncState = "timed_out"

	// StateMissing means the session itself is gone (TTL eviction or an
	// unknown uuid).
	StateMissing AsyncState = "missing"
)

// Session is one capture-session record.
type Session struct {
	UUID        string `json:"uuid"`
	ApplicantID string `json:"applicant_id"`

	CreatedAt time.Time `json:"created_at"`

	// RequestedAt is set when the proofing job is enqueued; the result
	// timeout window is measured from it.
	RequestedAt *time.Time `json:"requested_at,omitempty"`

	// Result is the committed verification outcome, nil until the write-once
	// commit happens.
	Result   *docauth.Response `json:"result,omitempty"`
	ResultAt *time.Time        `json:"result_at,omitempty"`
}

// State derives the session's lifecycle state at the given instant.
//
// A late result always wins: once committed it is Done even if the timeout
// window had elapsed before the poll that observes it. Callers that already
// reported TimedOut simply never surface the late value.
func (s *Session) State(now time.Time, resultTimeout time.Duration) AsyncState {
	if s == nil {
		return StateMissing
	}
	if s.Result != nil {
		return StateDone
	}
	if s.RequestedAt == nil {
		return StateNone
	}
	if now.Sub(*s.RequestedAt) >= resultTimeout {
		return StateTimedOut
	}
	return StateInProgress
}

// Age reports how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
