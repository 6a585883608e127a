package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"idv-gateway/internal/platform/redis"
	"idv-gateway/internal/sentinel"
)

// TokenIndex maps vendor-side capture tokens to capture-session uuids so
// webhook events can find the session they concern.
type TokenIndex interface {
	// Bind records token -> uuid. Rebinding a token overwrites.
	Bind(ctx context.Context, token, uuid string) error

	// Lookup resolves a token, sentinel.ErrNotFound when unknown or expired.
	Lookup(ctx context.Context, token string) (string, error)
}

// MemoryTokenIndex is the in-memory TokenIndex for tests and development.
type MemoryTokenIndex struct {
	mu     sync.Mutex
	tokens map[string]string
}

// NewMemoryTokenIndex creates an empty index.
func NewMemoryTokenIndex() *MemoryTokenIndex {
	return &MemoryTokenIndex{tokens: make(map[string]string)}
}

var _ TokenIndex = (*MemoryTokenIndex)(nil)

func (m *MemoryTokenIndex) Bind(_ context.Context, token, uuid string) error {
	if token == "" || uuid == "" {
		return sentinel.ErrInvalidInput
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tokens[token] = uuid
	return nil
}

func (m *MemoryTokenIndex) Lookup(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	uuid, ok := m.tokens[token]
	if !ok {
		return "", sentinel.ErrNotFound
	}
	return uuid, nil
}

const tokenKeyPrefix = "idv:capture:docv:"

// RedisTokenIndex is the production TokenIndex. Entries share the capture
// session TTL so a token never outlives its session.
type RedisTokenIndex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTokenIndex creates a redis-backed index with the given TTL.
func NewRedisTokenIndex(client *redis.Client, ttl time.Duration) *RedisTokenIndex {
	return &RedisTokenIndex{client: client, ttl: ttl}
}

var _ TokenIndex = (*RedisTokenIndex)(nil)

func (r *RedisTokenIndex) Bind(ctx context.Context, token, uuid string) error {
	if token == "" || uuid == "" {
		return sentinel.ErrInvalidInput
	}
	if err := r.client.Set(ctx, tokenKeyPrefix+token, uuid, r.ttl).Err(); err != nil {
		return fmt.Errorf("bind docv token: %w", err)
	}
	return nil
}

func (r *RedisTokenIndex) Lookup(ctx context.Context, token string) (string, error) {
	uuid, err := r.client.Get(ctx, tokenKeyPrefix+token).Result()
	if errors.Is(err, goredis.Nil) {
		return "", sentinel.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup docv token: %w", err)
	}
	return uuid, nil
}
