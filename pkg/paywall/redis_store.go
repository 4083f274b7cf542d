package paywall

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/paywallkit/pkg/purchase"
)

const defaultKeyPrefix = "paywall"

// RedisStore persists the paywall session state in Redis. The user id is
// stored without expiry (it identifies the device for its lifetime); statuses
// carry a TTL so stale entitlement snapshots age out.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	statusTTL time.Duration
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix overrides the default "paywall" key prefix.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithStatusTTL bounds how long a persisted status survives without refresh.
// Zero means no expiry.
func WithStatusTTL(ttl time.Duration) RedisStoreOption {
	return func(s *RedisStore) {
		if ttl >= 0 {
			s.statusTTL = ttl
		}
	}
}

// NewRedisStore creates a Store backed by the given Redis client.
// Panics if the client is nil to fail fast during initialization.
func NewRedisStore(client *redis.Client, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("paywall: redis client is required")
	}

	s := &RedisStore{
		client:    client,
		prefix:    defaultKeyPrefix,
		statusTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ConnectRedis establishes and verifies a Redis connection from a URL in the
// form "redis://:password@localhost:6379/0".
func ConnectRedis(ctx context.Context, connectionURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(connectionURL)
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return client, nil
}

func (s *RedisStore) userIDKey() string {
	return s.prefix + ":user_id"
}

func (s *RedisStore) statusKey(userID string) string {
	return s.prefix + ":status:" + userID
}

func (s *RedisStore) UserID(ctx context.Context) (string, error) {
	userID, err := s.client.Get(ctx, s.userIDKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrUserIDNotFound
	}
	if err != nil {
		return "", errors.Join(ErrStoreUnavailable, err)
	}
	return userID, nil
}

func (s *RedisStore) SaveUserID(ctx context.Context, userID string) error {
	if err := s.client.Set(ctx, s.userIDKey(), userID, 0).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) Status(ctx context.Context, userID string) (*purchase.Status, error) {
	payload, err := s.client.Get(ctx, s.statusKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}

	var status purchase.Status
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, errors.Join(ErrStoreUnavailable, err)
	}
	return &status, nil
}

func (s *RedisStore) SaveStatus(ctx context.Context, userID string, status purchase.Status) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	if err := s.client.Set(ctx, s.statusKey(userID), payload, s.statusTTL).Err(); err != nil {
		return errors.Join(ErrStoreUnavailable, err)
	}
	return nil
}
