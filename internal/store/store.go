// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store selects and opens the configured account repository backend.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/holomush/accountd/internal/account"
	"github.com/holomush/accountd/internal/store/memory"
	"github.com/holomush/accountd/internal/store/mongodb"
	"github.com/holomush/accountd/internal/store/postgres"
)

// Supported drivers.
const (
	DriverMemory   = "memory"
	DriverMongo    = "mongo"
	DriverPostgres = "postgres"
)

// Default startup retry policy.
const (
	DefaultConnectRetries = 5
	DefaultConnectBackoff = 500 * time.Millisecond
)

// Backend is an account repository with an explicit lifecycle.
type Backend interface {
	account.Repository
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects a backend.
type Config struct {
	Driver         string
	MongoURI       string
	MongoDatabase  string
	PostgresURL    string
	ConnectRetries uint64
	ConnectBackoff time.Duration
}

// opener opens a backend without checking it is reachable.
type opener func(ctx context.Context, cfg Config) (Backend, error)

var openers = map[string]opener{
	DriverMemory: func(context.Context, Config) (Backend, error) {
		return memory.NewRepository(), nil
	},
	DriverMongo: func(ctx context.Context, cfg Config) (Backend, error) {
		return mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
	},
	DriverPostgres: func(ctx context.Context, cfg Config) (Backend, error) {
		return postgres.Open(ctx, cfg.PostgresURL)
	},
}

// Open opens the backend named by cfg.Driver and pings it, retrying with
// exponential backoff until it answers or the retry budget is spent.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Backend, error) {
	return open(ctx, cfg, logger, openers)
}

func open(ctx context.Context, cfg Config, logger *slog.Logger, registry map[string]opener) (Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	openFn, ok := registry[cfg.Driver]
	if !ok {
		return nil, oops.Code("STORE_UNKNOWN_DRIVER").With("driver", cfg.Driver).Errorf("unknown store driver %q", cfg.Driver)
	}

	backend, err := openFn(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := pingWithRetry(ctx, backend, cfg, logger); err != nil {
		_ = backend.Close(ctx) //nolint:errcheck // ping error takes precedence
		return nil, err
	}

	logger.InfoContext(ctx, "store ready", "driver", cfg.Driver)
	return backend, nil
}

func pingWithRetry(ctx context.Context, backend Backend, cfg Config, logger *slog.Logger) error {
	base := cfg.ConnectBackoff
	if base <= 0 {
		base = DefaultConnectBackoff
	}
	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(base))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := backend.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "store not ready", "driver", cfg.Driver, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("driver", cfg.Driver).
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
