package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mongoadmin/indexsync/internal/config"
	"github.com/mongoadmin/indexsync/internal/db"
	"github.com/mongoadmin/indexsync/internal/lock"
)

// lockBackend is a lock factory with the resources it holds
type lockBackend struct {
	factory lock.Factory
	close   func()
}

// buildLockBackend connects the configured lock backend
func buildLockBackend(ctx context.Context, cfg *config.Config) (*lockBackend, error) {
	backend := cfg.Lock.GetBackend()
	slog.InfoContext(ctx, "Initializing lock backend", "backend", backend)

	switch backend {
	case config.LockBackendRedis:
		return buildRedisLock(ctx, cfg.Lock.Redis)
	case config.LockBackendPostgres:
		pool, err := db.NewPool(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return &lockBackend{factory: lock.NewPostgres(pool), close: pool.Close}, nil
	case config.LockBackendLocal:
		slog.WarnContext(ctx, "Local locks only exclude jobs within this process")
		return &lockBackend{factory: lock.NewLocal(), close: func() {}}, nil
	case config.LockBackendNone:
		return &lockBackend{factory: lock.Unavailable{}, close: func() {}}, nil
	default:
		return nil, fmt.Errorf("unknown lock backend: %s", backend)
	}
}

func buildRedisLock(ctx context.Context, cfg *config.RedisConfig) (*lockBackend, error) {
	if cfg == nil || cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	password, err := cfg.GetPassword()
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: password,
		DB:       cfg.DB,
	})
	locks := lock.NewRedis(client, cfg.KeyPrefix)

	// an unreachable Redis degrades locking instead of blocking startup
	if err := locks.Ping(ctx); err != nil {
		slog.WarnContext(ctx, "Redis is not reachable, locks will be degraded until it is",
			"address", cfg.Address, "error", err)
	}

	return &lockBackend{
		factory: locks,
		close: func() {
			if err := client.Close(); err != nil {
				slog.Error("Failed to close redis client", "error", err)
			}
		},
	}, nil
}
