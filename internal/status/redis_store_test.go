package status

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestRedisStatusStore_UpdatesHashAndStream(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	client := &stubRedisClient{pipe: pipe}
	store := NewRedisStatusStore(client, "order_events", 0, 0)

	event := Event{
		Type:          "order_status",
		OrderID:       "ORD-1",
		Status:        "completed",
		TransactionID: "txn-1",
		Timestamp:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := store.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(pipe.hsets) != 1 {
		t.Fatalf("expected 1 HSET, got %d", len(pipe.hsets))
	}
	if pipe.hsets[0].key != "order:ORD-1" {
		t.Fatalf("unexpected hash key %q", pipe.hsets[0].key)
	}

	hash := toMap(pipe.hsets[0].values)
	if hash["order_id"] != "ORD-1" || hash["status"] != "completed" || hash["transaction_id"] != "txn-1" {
		t.Fatalf("unexpected hash values: %+v", hash)
	}

	if len(pipe.xadds) != 1 {
		t.Fatalf("expected 1 XADD, got %d", len(pipe.xadds))
	}
	if pipe.xadds[0].Stream != "order_events" {
		t.Fatalf("unexpected stream %q", pipe.xadds[0].Stream)
	}

	if !pipe.execCalled {
		t.Fatalf("expected Exec to be called")
	}
}

func TestRedisStatusStore_TTLMaxLenAndDefaultStream(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	client := &stubRedisClient{pipe: pipe}
	store := NewRedisStatusStore(client, "", time.Minute, 100)

	event := Event{
		OrderID:   "ORD-ttl",
		Status:    "completed",
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	if err := store.Publish(context.Background(), event); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if pipe.expirationCalls != 1 {
		t.Fatalf("expected one Expire call, got %d", pipe.expirationCalls)
	}
	if pipe.expirations["order:ORD-ttl"] != time.Minute {
		t.Fatalf("unexpected ttl: %v", pipe.expirations["order:ORD-ttl"])
	}

	if len(pipe.xadds) != 1 {
		t.Fatalf("expected 1 XADD, got %d", len(pipe.xadds))
	}
	if pipe.xadds[0].Stream != "order_events" {
		t.Fatalf("expected default stream, got %q", pipe.xadds[0].Stream)
	}
	if pipe.xadds[0].MaxLen != 100 || !pipe.xadds[0].Approx {
		t.Fatalf("expected maxlen settings applied, got %+v", pipe.xadds[0])
	}
}

func TestRedisStatusStore_RespectsCanceledContext(t *testing.T) {
	t.Parallel()

	pipe := &stubPipeline{}
	client := &stubRedisClient{pipe: pipe}
	store := NewRedisStatusStore(client, "order_events", 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.Publish(ctx, Event{OrderID: "ORD-cancel"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if pipe.execCalled || len(pipe.hsets) > 0 || len(pipe.xadds) > 0 {
		t.Fatalf("expected no writes when context canceled")
	}
}

type stubRedisClient struct {
	pipe *stubPipeline
}

func (s *stubRedisClient) Pipeline() RedisPipeliner { return s.pipe }

type stubPipeline struct {
	hsets []struct {
		key    string
		values []any
	}
	expirations     map[string]time.Duration
	expirationCalls int
	xadds           []redis.XAddArgs
	execCalled      bool
	execErr         error
}

func (s *stubPipeline) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	s.hsets = append(s.hsets, struct {
		key    string
		values []any
	}{key: key, values: values})
	return redis.NewIntCmd(context.Background())
}

func (s *stubPipeline) Expire(_ context.Context, key string, ttl time.Duration) *redis.BoolCmd {
	if s.expirations == nil {
		s.expirations = map[string]time.Duration{}
	}
	s.expirations[key] = ttl
	s.expirationCalls++
	return redis.NewBoolCmd(context.Background())
}

func (s *stubPipeline) XAdd(_ context.Context, a *redis.XAddArgs) *redis.StringCmd {
	s.xadds = append(s.xadds, *a)
	return redis.NewStringCmd(context.Background())
}

func (s *stubPipeline) Exec(_ context.Context) ([]redis.Cmder, error) {
	s.execCalled = true
	return nil, s.execErr
}

func toMap(args []any) map[string]any {
	if len(args) == 0 {
		return map[string]any{}
	}
	if m, ok := args[0].(map[string]any); ok {
		return m
	}
	return map[string]any{}
}
