package main

import (
	"context"
	"log"
	"time"

	"caravel/internal/config"
	"caravel/internal/status"

	"github.com/redis/go-redis/v9"
)

// buildStatusFeed tails the Redis order-status stream written by the saga
// worker and forwards each event to the websocket hub, so clients on
// /ws/orders see status changes from the worker process. With no REDIS_URL
// configured the feed is off and the hub simply has no producer.
func buildStatusFeed(ctx context.Context, cfg config.RedisConfig, broadcaster status.Broadcaster) (func(), error) {
	if cfg.URL == "" {
		return func() {}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.DialTimeout != nil {
		opts.DialTimeout = *cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}

	follower := status.NewStreamFollower(client, cfg.Stream, broadcaster, log.Printf)
	go func() {
		if err := follower.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("status feed stopped: %v", err)
		}
	}()

	cleanup := func() {
		if err := client.Close(); err != nil {
			log.Printf("close redis: %v", err)
		}
	}
	return cleanup, nil
}
