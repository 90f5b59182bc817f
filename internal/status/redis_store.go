package status

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStatusStore keeps the latest status of each order in a hash and
// appends every change to a stream.
type RedisStatusStore struct {
	client    RedisPipelineClient
	stream    string
	keyPrefix string
	ttl       time.Duration
	maxLen    int64
}

// RedisPipelineClient is the minimal client surface used by RedisStatusStore.
type RedisPipelineClient interface {
	Pipeline() RedisPipeliner
}

// RedisPipeliner is the subset of commands used within a pipeline.
type RedisPipeliner interface {
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Exec(ctx context.Context) ([]redis.Cmder, error)
}

// NewRedisStatusStore constructs a Redis-backed status store.
func NewRedisStatusStore(client RedisPipelineClient, stream string, ttl time.Duration, maxLen int64) *RedisStatusStore {
	if stream == "" {
		stream = "order_events"
	}
	return &RedisStatusStore{
		client:    client,
		stream:    stream,
		keyPrefix: "order:",
		ttl:       ttl,
		maxLen:    maxLen,
	}
}

// Publish writes the latest status and appends to the stream.
func (r *RedisStatusStore) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := r.keyPrefix + event.OrderID
	timestamp := event.Timestamp.UTC().Format(time.RFC3339Nano)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"order_id":       event.OrderID,
		"status":         event.Status,
		"transaction_id": event.TransactionID,
		"timestamp":      timestamp,
	})
	if r.ttl > 0 {
		pipe.Expire(ctx, key, r.ttl)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]any{
			"order_id":       event.OrderID,
			"status":         event.Status,
			"transaction_id": event.TransactionID,
			"timestamp":      timestamp,
		},
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}
	pipe.XAdd(ctx, args)

	_, err := pipe.Exec(ctx)
	return err
}
