package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "sitegate:session:"

// RedisStore keeps records as JSON under "<prefix><id>" with a native Redis TTL.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithKeyPrefix overrides the key namespace (default "sitegate:session:").
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		if p := strings.TrimSpace(prefix); p != "" {
			s.prefix = p
		}
	}
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(client redis.Cmdable, opts ...RedisOption) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("session: redis client is nil")
	}
	s := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *RedisStore) key(id string) string {
	return s.prefix + id
}

func (s *RedisStore) Get(ctx context.Context, id string) (Record, error) {
	if strings.TrimSpace(id) == "" {
		return Record{}, ErrSessionNotFound
	}

	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrSessionNotFound
	}
	if err != nil {
		return Record{}, StoreError{Op: "session.redis.get", Err: err}
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, StoreError{Op: "session.redis.get", Err: fmt.Errorf("unmarshal: %w", err)}
	}
	if rec.ID != id {
		// Key and payload disagree; treat as missing rather than trusting either.
		return Record{}, ErrSessionNotFound
	}
	return rec, nil
}

func (s *RedisStore) Set(ctx context.Context, rec Record, ttl time.Duration) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if ttl <= 0 {
		return ErrConfig
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return StoreError{Op: "session.redis.set", Err: fmt.Errorf("marshal: %w", err)}
	}
	if err := s.client.Set(ctx, s.key(rec.ID), data, ttl).Err(); err != nil {
		return StoreError{Op: "session.redis.set", Err: err}
	}
	return nil
}

func (s *RedisStore) Destroy(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return StoreError{Op: "session.redis.destroy", Err: err}
	}
	return nil
}
