package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"uniattend/internal/attendance"
	"uniattend/internal/auth"
	"uniattend/internal/config"
	"uniattend/internal/metrics"
	"uniattend/internal/queue"
	"uniattend/internal/rollup"
	"uniattend/internal/session"
	"uniattend/internal/store"
	"uniattend/internal/system"
)

// Runtime is everything a process needs, built from configuration.
type Runtime struct {
	System  *system.System
	Store   store.Store
	Redis   *store.Redis
	Queue   queue.Queue
	Rollups rollup.Store
	Metrics *metrics.Metrics
}

// Build opens the store and the optional Redis-backed parts named in cfg.
// Redis is only dialed when a backend asks for it.
func Build(ctx context.Context, cfg config.App, log *zap.Logger) (*Runtime, error) {
	policy, err := attendance.ParsePolicy(cfg.AttendancePolicy)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, store.Options{
		Backend:     cfg.StoreBackend,
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		BoltPath:    cfg.BoltPath,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	rt := &Runtime{Store: st, Metrics: metrics.New()}

	needRedis := cfg.QueueBackend == "redis" || cfg.SessionBackend == "redis"
	if needRedis {
		rt.Redis = store.NewRedis(cfg.RedisAddr, cfg.RedisPassword, 0)
		if !rt.Redis.Healthy(ctx) {
			log.Warn("redis not reachable yet", zap.String("addr", cfg.RedisAddr))
		}
	}

	var sessions session.Store = session.NewMemory()
	if cfg.SessionBackend == "redis" {
		sessions = session.NewRedis(rt.Redis.Client)
	}
	switch cfg.QueueBackend {
	case "redis":
		rt.Queue = queue.NewRedisQueue(rt.Redis.Client, "")
		rt.Rollups = rollup.NewRedis(rt.Redis.Client, rollup.DefaultTTL)
	default:
		rt.Queue = queue.NewInMemory(256)
		rt.Rollups = rollup.NewMemory()
	}

	rt.System = system.New(system.Deps{
		Store:     store.WithLogging(st, log),
		Sessions:  sessions,
		Signer:    auth.NewSigner(cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL),
		Hasher:    auth.NewBcrypt(cfg.BcryptCost),
		Publisher: rt.Queue,
		Policy:    policy,
		Strict:    cfg.StrictReferences,
		Log:       log,
		Metrics:   rt.Metrics,
	})
	log.Info("runtime ready",
		zap.String("store", cfg.StoreBackend),
		zap.String("sessions", cfg.SessionBackend),
		zap.String("queue", cfg.QueueBackend),
		zap.Stringer("policy", policy),
		zap.Bool("strict_references", cfg.StrictReferences))
	return rt, nil
}

// Health reports the status of each dependency.
func (rt *Runtime) Health(ctx context.Context) map[string]bool {
	out := map[string]bool{"store": rt.System.Ready(ctx)}
	if rt.Redis != nil {
		out["redis"] = rt.Redis.Healthy(ctx)
	}
	return out
}

// Close releases the store and the Redis pool.
func (rt *Runtime) Close() error {
	err := rt.Store.Close()
	if rerr := rt.Redis.Close(); err == nil {
		err = rerr
	}
	return err
}
