package status

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStreamReader is the minimal client surface used by StreamFollower.
type RedisStreamReader interface {
	XRead(ctx context.Context, a *redis.XReadArgs) *redis.XStreamSliceCmd
}

// StreamFollower tails the order-status stream and pushes each event to a
// broadcaster. The saga worker writes the stream; the API process runs a
// follower so websocket clients see status changes across processes.
type StreamFollower struct {
	client      RedisStreamReader
	stream      string
	broadcaster Broadcaster
	block       time.Duration
	logf        func(format string, args ...any)
}

// NewStreamFollower constructs a follower over the given stream. logf may
// be nil.
func NewStreamFollower(client RedisStreamReader, stream string, broadcaster Broadcaster, logf func(format string, args ...any)) *StreamFollower {
	if stream == "" {
		stream = "order_events"
	}
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &StreamFollower{
		client:      client,
		stream:      stream,
		broadcaster: broadcaster,
		block:       5 * time.Second,
		logf:        logf,
	}
}

// Run tails the stream until ctx is cancelled, starting from new entries
// only. Read errors are logged and retried; a follower outage loses live
// events, never store state.
func (f *StreamFollower) Run(ctx context.Context) error {
	lastID := "$"
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := f.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{f.stream, lastID},
			Count:   16,
			Block:   f.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.logf("status: read %s: %v", f.stream, err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range res {
			for _, msg := range stream.Messages {
				lastID = msg.ID
				data, err := json.Marshal(eventFromValues(msg.Values))
				if err != nil {
					f.logf("status: encode stream entry %s: %v", msg.ID, err)
					continue
				}
				f.broadcaster.Broadcast(data)
			}
		}
	}
}

// eventFromValues rebuilds an Event from the field map written by
// RedisStatusStore.Publish.
func eventFromValues(values map[string]interface{}) Event {
	event := Event{
		Type:          "order_status",
		OrderID:       stringValue(values["order_id"]),
		Status:        stringValue(values["status"]),
		TransactionID: stringValue(values["transaction_id"]),
	}
	if ts, err := time.Parse(time.RFC3339Nano, stringValue(values["timestamp"])); err == nil {
		event.Timestamp = ts
	}
	return event
}

func stringValue(v interface{}) string {
	s, _ := v.(string)
	return s
}
