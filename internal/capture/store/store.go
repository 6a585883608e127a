// Package store provides capture-session persistence with an atomic
// write-once result commit.
package store

import (
	"context"
	"time"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/docauth"
)

// Store persists capture sessions.
//
// WriteResultOnce is the load-bearing primitive: the first committed result
// for a uuid wins and every later write reports committed=false. Duplicate
// job execution and webhook/job races are safe because of it.
type Store interface {
	// Create persists a new session. Creating an existing uuid is an
	// ErrInvalidInput.
	Create(ctx context.Context, session *capture.Session) error

	// Get loads a session, sentinel.ErrNotFound when absent or evicted.
	Get(ctx context.Context, uuid string) (*capture.Session, error)

	// MarkRequested records that the proofing job was enqueued, starting the
	// result timeout window.
	MarkRequested(ctx context.Context, uuid string, at time.Time) error

	// WriteResultOnce commits a result if none exists yet. Reports whether
	// this call performed the commit. Writing to an unknown uuid is
	// ErrNotFound; late writes after eviction are dropped the same way.
	WriteResultOnce(ctx context.Context, uuid string, result *docauth.Response) (bool, error)

	// Delete removes the session reference once the flow has consumed it.
	Delete(ctx context.Context, uuid string) error
}
