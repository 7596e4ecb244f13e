package main

import (
	"context"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"uniattend/internal/config"
	"uniattend/internal/logging"
	"uniattend/internal/queue"
	"uniattend/internal/rollup"
	"uniattend/internal/store"
)

// Worker consumes attendance events from Redis and maintains per-day roll-ups.
func main() {
	cfg := config.Load()
	log, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync() //nolint:errcheck
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.QueueBackend != "redis" {
		log.Fatal("worker needs QUEUE_BACKEND=redis; the in-memory queue is drained by the api process")
	}
	rdb := store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, 0)
	defer rdb.Close()
	if !rdb.Healthy(ctx) {
		log.Warn("redis not reachable yet, will keep retrying", zap.String("addr", cfg.RedisAddr))
	}

	msgs, err := queue.NewRedisQueue(rdb.Client, "").Consume(ctx)
	if err != nil {
		log.Fatal("queue consume init failed", zap.Error(err))
	}

	log.Info("worker started, waiting for messages")
	c := rollup.Consumer{Store: rollup.NewRedis(rdb.Client, rollup.DefaultTTL), Log: log}
	if err := c.Run(ctx, msgs); err != nil {
		log.Error("worker stopped with error", zap.Error(err))
		return
	}
	log.Info("worker stopped")
}
