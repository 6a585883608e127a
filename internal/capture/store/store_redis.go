package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"idv-gateway/internal/capture"
	"idv-gateway/internal/docauth"
	"idv-gateway/internal/platform/redis"
	"idv-gateway/internal/sentinel"
)

const (
	sessionKeyPrefix = "idv:capture:session:"
	resultKeyPrefix  = "idv:capture:result:"
)

// Redis is the production Store. The session record and the committed result
// live under separate keys so the result commit can be a single SETNX: redis
// guarantees exactly one writer wins regardless of how many job executions or
// webhook deliveries race.
//
// Both keys carry the session TTL; eviction turns the session into
// ErrNotFound, which the flow reports as the missing state.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// resultEnvelope is the stored result value.
type resultEnvelope struct {
	Result   *docauth.Response `json:"result"`
	ResultAt time.Time         `json:"result_at"`
}

// RedisOption configures the redis store.
type RedisOption func(*Redis)

// WithRedisClock injects a clock (tests).
func WithRedisClock(now func() time.Time) RedisOption {
	return func(r *Redis) { r.now = now }
}

// NewRedis creates a redis-backed store with the given session TTL.
func NewRedis(client *redis.Client, ttl time.Duration, opts ...RedisOption) *Redis {
	r := &Redis{client: client, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ Store = (*Redis)(nil)

func (r *Redis) Create(ctx context.Context, session *capture.Session) error {
	if session == nil || session.UUID == "" {
		return sentinel.ErrInvalidInput
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	created, err := r.client.SetNX(ctx, sessionKeyPrefix+session.UUID, payload, r.ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if !created {
		return sentinel.ErrInvalidInput
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, uuid string) (*capture.Session, error) {
	raw, err := r.client.Get(ctx, sessionKeyPrefix+uuid).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session capture.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	rawResult, err := r.client.Get(ctx, resultKeyPrefix+uuid).Bytes()
	if errors.Is(err, goredis.Nil) {
		return &session, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	var envelope resultEnvelope
	if err := json.Unmarshal(rawResult, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	session.Result = envelope.Result
	session.ResultAt = &envelope.ResultAt
	return &session, nil
}

func (r *Redis) MarkRequested(ctx context.Context, uuid string, at time.Time) error {
	session, err := r.Get(ctx, uuid)
	if err != nil {
		return err
	}
	session.RequestedAt = &at

	// Strip any merged result before persisting; the result key owns it.
	session.Result = nil
	session.ResultAt = nil

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := r.client.Set(ctx, sessionKeyPrefix+uuid, payload, goredis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("mark requested: %w", err)
	}
	return nil
}

func (r *Redis) WriteResultOnce(ctx context.Context, uuid string, result *docauth.Response) (bool, error) {
	if result == nil {
		return false, sentinel.ErrInvalidInput
	}

	exists, err := r.client.Exists(ctx, sessionKeyPrefix+uuid).Result()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	if exists == 0 {
		return false, sentinel.ErrNotFound
	}

	payload, err := json.Marshal(resultEnvelope{Result: result, ResultAt: r.now()})
	if err != nil {
		return false, fmt.Errorf("marshal result: %w", err)
	}

	committed, err := r.client.SetNX(ctx, resultKeyPrefix+uuid, payload, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("write result: %w", err)
	}
	return committed, nil
}

func (r *Redis) Delete(ctx context.Context, uuid string) error {
	if err := r.client.Del(ctx, sessionKeyPrefix+uuid, resultKeyPrefix+uuid).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
