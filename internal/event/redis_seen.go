package event

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "slacknotes/internal/errors"
)

// RedisSeenStoreConfig carries the settings for the shared dedupe window.
type RedisSeenStoreConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

// RedisSeenStore implements SeenStore on Redis with SETNX and a TTL, so
// every replica of the daemon shares one dedupe window.
type RedisSeenStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisSeenStore connects and verifies the connection.
func NewRedisSeenStore(cfg RedisSeenStoreConfig) (*RedisSeenStore, error) {
	if cfg.Address == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "redis address is required")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "slacknotes:seen:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "connect to redis")
	}
	return &RedisSeenStore{client: client, prefix: prefix, ttl: ttl}, nil
}

// Seen implements SeenStore. SETNX returning false means another intake
// already claimed the id within the TTL.
func (s *RedisSeenStore) Seen(ctx context.Context, id string) (bool, error) {
	stored, err := s.client.SetNX(ctx, s.prefix+id, "1", s.ttl).Result()
	if err != nil {
		return false, apperrors.Wrap(apperrors.CodeStorageFailure, err, "mark envelope seen")
	}
	return !stored, nil
}

// Close releases the Redis connection.
func (s *RedisSeenStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ SeenStore = (*RedisSeenStore)(nil)
