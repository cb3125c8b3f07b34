package event

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "slacknotes/internal/errors"
	"slacknotes/pkg/logger"
)

// RedisQueueConfig carries the connection settings for the redis driver.
type RedisQueueConfig struct {
	Address   string
	Password  string
	DB        int
	Key       string
	BlockWait time.Duration
}

// RedisQueue backs the pipeline with a Redis list: LPUSH to publish, BRPOP
// to consume. Envelopes travel as JSON.
type RedisQueue struct {
	client *redis.Client
	key    string
	wait   time.Duration
}

// NewRedisQueue connects to Redis and verifies the connection with a ping.
func NewRedisQueue(cfg RedisQueueConfig) (*RedisQueue, error) {
	if cfg.Address == "" {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "redis address is required")
	}
	key := cfg.Key
	if key == "" {
		key = "slacknotes:events"
	}
	wait := cfg.BlockWait
	if wait <= 0 {
		wait = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeQueueFailure, err, "connect to redis")
	}
	return &RedisQueue{client: client, key: key, wait: wait}, nil
}

// Publish pushes the encoded envelope onto the list head.
func (q *RedisQueue) Publish(ctx context.Context, env Envelope) error {
	data, err := env.Encode()
	if err != nil {
		return err
	}
	if err := q.client.LPush(ctx, q.key, data).Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeQueueFailure, err, "publish envelope to redis")
	}
	return nil
}

// Consume pops envelopes with BRPOP. Payloads that fail to decode are
// dropped with a log line; requeueing garbage would loop forever. A handler
// error puts the raw payload back on the tail so another worker can retry
// after transient failures of the processor itself.
func (q *RedisQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	errCh := make(chan error, workerCount)
	for i := 0; i < workerCount; i++ {
		go func() {
			for {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				default:
				}
				values, err := q.client.BRPop(ctx, q.wait, q.key).Result()
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed) {
						errCh <- err
						return
					}
					if errors.Is(err, redis.Nil) {
						continue
					}
					errCh <- apperrors.Wrap(apperrors.CodeQueueFailure, err, "pop envelope from redis")
					return
				}
				if len(values) != 2 {
					continue
				}
				payload := values[1]
				env, decodeErr := Decode([]byte(payload))
				if decodeErr != nil {
					logger.L().Warn("dropping undecodable envelope",
						slog.Any("error", decodeErr),
						slog.Int("payload_bytes", len(payload)))
					continue
				}
				if handlerErr := handler(ctx, env); handlerErr != nil {
					_ = q.client.RPush(ctx, q.key, payload).Err()
				}
			}
		}()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	if q == nil || q.client == nil {
		return nil
	}
	return q.client.Close()
}
