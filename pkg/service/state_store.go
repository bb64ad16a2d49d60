// Redis persistence for live session state.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrStateNotFound is returned when no snapshot exists for a session.
var ErrStateNotFound = errors.New("session state not found")

// StateStore persists live session-state snapshots so a restarted
// process can rehydrate a session instead of starting fresh. The store
// is a cache, not the source of truth: losing it only costs context.
type StateStore interface {
	Save(ctx context.Context, state *SessionState, ttl time.Duration) error
	Load(ctx context.Context, sessionID string) (*SessionState, error)
	Delete(ctx context.Context, sessionID string) error
}

const stateKeyPrefix = "haven:session:"

// RedisStateStore keeps one JSON snapshot per session with a TTL equal
// to the session inactivity threshold, so abandoned sessions expire on
// the redis side without a sweeper.
type RedisStateStore struct {
	rdb *redis.Client
}

func NewRedisStateStore(addr string, db int) *RedisStateStore {
	return &RedisStateStore{
		rdb: redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   db,
		}),
	}
}

func (s *RedisStateStore) Save(ctx context.Context, state *SessionState, ttl time.Duration) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal session state: %w", err)
	}
	if err := s.rdb.Set(ctx, stateKeyPrefix+state.SessionID, data, ttl).Err(); err != nil {
		return fmt.Errorf("save session state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	data, err := s.rdb.Get(ctx, stateKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("load session state: %w", err)
	}

	var state SessionState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshal session state: %w", err)
	}
	return &state, nil
}

func (s *RedisStateStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.rdb.Del(ctx, stateKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("delete session state: %w", err)
	}
	return nil
}

// Ping verifies the redis connection on startup.
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
