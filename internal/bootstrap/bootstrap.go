// Package bootstrap opens the storage and messaging dependencies shared by
// the api and worker binaries.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jwalitptl/shadowing-api/internal/config"
	"github.com/jwalitptl/shadowing-api/internal/repository"
	"github.com/jwalitptl/shadowing-api/internal/repository/memory"
	"github.com/jwalitptl/shadowing-api/internal/repository/postgres"
	"github.com/jwalitptl/shadowing-api/pkg/logger"
	"github.com/jwalitptl/shadowing-api/pkg/messaging"
	"github.com/jwalitptl/shadowing-api/pkg/messaging/redis"
)

const connectBackoff = 500 * time.Millisecond

// CloseFunc releases what an Open call acquired.
type CloseFunc func() error

func noop() error { return nil }

// connect retries fn with exponential backoff, logging each failure.
func connect(ctx context.Context, log *logger.Logger, what string, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = 1
	}
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewExponential(connectBackoff))
	attempt := 0
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := fn(ctx); err != nil {
			log.Warn(err, "Connection attempt failed", "target", what, "attempt", attempt)
			return retry.RetryableError(err)
		}
		return nil
	})
}

// OpenStore returns the configured store. For postgres it waits for the
// database and applies migrations when auto_migrate is set.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig, log *logger.Logger) (repository.Store, CloseFunc, error) {
	if cfg.Driver == "memory" {
		log.Warn(nil, "Using in-memory store; data is lost on restart")
		return memory.NewStore(), noop, nil
	}

	var store *postgres.Store
	var closeDB CloseFunc
	err := connect(ctx, log, "postgres", cfg.ConnectAttempts, func(ctx context.Context) error {
		db, err := postgres.NewDB(ctx, cfg)
		if err != nil {
			return err
		}
		store = postgres.NewStore(db)
		closeDB = db.Close
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if cfg.AutoMigrate {
		migrator, err := postgres.NewMigrator(store.GetDB().DB)
		if err != nil {
			closeDB()
			return nil, nil, err
		}
		if err := migrator.Up(ctx); err != nil {
			closeDB()
			return nil, nil, err
		}
		log.Info("Database migrations applied")
	}
	return store, closeDB, nil
}

// OpenBroker connects to Redis when a URL is configured. It returns a nil
// Broker otherwise, and events are then dropped.
func OpenBroker(ctx context.Context, cfg config.RedisConfig, attempts int, log *logger.Logger) (messaging.Broker, CloseFunc, error) {
	if cfg.URL == "" {
		log.Info("No Redis configured; slot events are disabled")
		return nil, noop, nil
	}

	var broker *redis.RedisBroker
	err := connect(ctx, log, "redis", attempts, func(ctx context.Context) error {
		b, err := redis.NewRedisBroker(ctx, redis.Config{
			URL:            cfg.URL,
			MaxRetries:     cfg.MaxRetries,
			RetryBackoff:   cfg.RetryBackoff,
			PoolSize:       cfg.PoolSize,
			MinIdleConns:   cfg.MinIdleConns,
			PublishTimeout: cfg.PublishTimeout,
		}, log.Zerolog())
		if err != nil {
			return err
		}
		broker = b
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return broker, broker.Close, nil
}
