package pubsub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mohamedkhairy/signal-engine/internal/config"
	"github.com/mohamedkhairy/signal-engine/pkg/logger"
)

// StreamMessage is one entry read back from a Redis stream
type StreamMessage struct {
	ID     string
	Stream string
	Values map[string]interface{}
}

// RedisClient is the part of Redis the event mirror and tailer use
type RedisClient interface {
	// PublishBatchToStream appends messages to stream in one pipeline,
	// trimming it to roughly maxLen entries (0 disables trimming)
	PublishBatchToStream(ctx context.Context, stream string, maxLen int64, messages []map[string]interface{}) error
	// Publish sends payload to a pub/sub channel
	Publish(ctx context.Context, channel string, payload []byte) error
	// ReadStream returns entries after lastID, blocking up to block
	ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error)
	Close() error
}

// RedisClientImpl implements RedisClient with go-redis
type RedisClientImpl struct {
	client *redis.Client
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg config.RedisConfig) (*RedisClientImpl, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Connected to Redis",
		logger.String("host", cfg.Host),
		logger.Int("port", cfg.Port),
	)

	return &RedisClientImpl{client: rdb}, nil
}

// PublishBatchToStream appends messages to a stream using a pipeline
func (r *RedisClientImpl) PublishBatchToStream(ctx context.Context, stream string, maxLen int64, messages []map[string]interface{}) error {
	if len(messages) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, msg := range messages {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: maxLen,
			Approx: maxLen > 0,
			Values: msg,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish batch to stream %s: %w", stream, err)
	}
	return nil
}

// Publish publishes a message to a pub/sub channel
func (r *RedisClientImpl) Publish(ctx context.Context, channel string, payload []byte) error {
	return r.client.Publish(ctx, channel, payload).Err()
}

// ReadStream reads entries newer than lastID. A timeout with nothing to
// read returns an empty slice and no error.
func (r *RedisClientImpl) ReadStream(ctx context.Context, stream, lastID string, count int64, block time.Duration) ([]StreamMessage, error) {
	streams, err := r.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   count,
		Block:   block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read stream %s: %w", stream, err)
	}

	var out []StreamMessage
	for _, s := range streams {
		for _, message := range s.Messages {
			out = append(out, StreamMessage{
				ID:     message.ID,
				Stream: s.Stream,
				Values: message.Values,
			})
		}
	}
	return out, nil
}

// Close closes the Redis connection
func (r *RedisClientImpl) Close() error {
	return r.client.Close()
}
