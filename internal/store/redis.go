package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/parley-chat/parley/internal/chat"
)

// ErrRedisNil must be returned by RedisClient.Get when the key does not
// exist. It lets the store tell absence from a failed lookup: only this
// error maps to ErrNotFound, so a transient connection failure never looks
// like a missing session.
var ErrRedisNil = errors.New("redis: nil reply")

// RedisClient is the interface for Redis operations needed by the session
// store. This abstracts the actual Redis client library. Get must return
// ErrRedisNil (possibly wrapped) for absent keys.
type RedisClient interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore implements Store backed by Redis. Each session is one value
// under a prefixed key.
type RedisStore struct {
	client RedisClient
	prefix string
	ttl    time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithPrefix sets the key prefix for session keys.
func WithPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithTTL sets the session TTL. Zero means sessions never expire.
func WithTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.ttl = ttl }
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client RedisClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client: client,
		prefix: "parley:session:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) sessionKey(key string) string {
	return s.prefix + key
}

// Get retrieves the session stored under key. An absent key (ErrRedisNil
// from the client) is ErrNotFound; any other client error is a lookup
// failure and propagates, so callers never mistake an outage for a
// missing session.
func (s *RedisStore) Get(ctx context.Context, key string) (*chat.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(key))
	if errors.Is(err, ErrRedisNil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read session %q: %w", key, err)
	}
	var sess chat.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session %q: %w", key, err)
	}
	return &sess, nil
}

// Put stores the full session snapshot under key.
func (s *RedisStore) Put(ctx context.Context, key string, sess *chat.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.sessionKey(key), string(data), s.ttl); err != nil {
		return fmt.Errorf("write session %q: %w", key, err)
	}
	return nil
}

// Delete removes the session stored under key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.sessionKey(key))
}
