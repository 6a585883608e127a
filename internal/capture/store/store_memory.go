package store

import (
	"context"
	"sync"
	"time"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/sentinel"
)

// Memory is an in-memory Store for tests and single-process development.
// Sessions expire after the configured TTL, mirroring redis eviction.
type Memory struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry

	ttl time.Duration
	now func() time.Time
}

type memoryEntry struct {
	session   capture.Session
	expiresAt time.Time
}

// MemoryOption configures the memory store.
type MemoryOption func(*Memory)

// WithClock injects a clock (tests).
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory store with the given session TTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	m := &Memory{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ Store = (*Memory)(nil)

func (m *Memory) Create(_ context.Context, session *capture.Session) error {
	if session == nil || session.UUID == "" {
		return sentinel.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.live(session.UUID); ok {
		return sentinel.ErrInvalidInput
	}
	m.sessions[session.UUID] = &memoryEntry{
		session:   *session,
		expiresAt: m.now().Add(m.ttl),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, uuid string) (*capture.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(uuid)
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	session := entry.session
	return &session, nil
}

func (m *Memory) MarkRequested(_ context.Context, uuid string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(uuid)
	if !ok {
		return sentinel.ErrNotFound
	}
	entry.session.RequestedAt = &at
	return nil
}

func (m *Memory) WriteResultOnce(_ context.Context, uuid string, result *docauth.Response) (bool, error) {
	if result == nil {
		return false, sentinel.ErrInvalidInput
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(uuid)
	if !ok {
		return false, sentinel.ErrNotFound
	}
	if entry.session.Result != nil {
		return false, nil
	}
	now := m.now()
	entry.session.Result = result
	entry.session.ResultAt = &now
	return true, nil
}

func (m *Memory) Delete(_ context.Context, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, uuid)
	return nil
}

// live returns the entry for uuid, evicting it first if expired. Callers must
// hold the mutex.
func (m *Memory) live(uuid string) (*memoryEntry, bool) {
	entry, ok := m.sessions[uuid]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.sessions, uuid)
		return nil, false
	}
	return entry, true
}
