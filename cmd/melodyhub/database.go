package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"

	"melodyhub/internal/config"
	"melodyhub/internal/logging"
	"melodyhub/internal/store"
)

// env bundles what every subcommand needs.
type env struct {
	cfg     *config.Config
	logger  zerolog.Logger
	db      *sql.DB
	dialect store.Dialect
	manager *store.Manager
}

func (rt *env) Close() error {
	return rt.db.Close()
}

// setup loads configuration, installs the logger and connects to the database.
func setup(ctx context.Context, configPath string) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	logging.SetGlobal(logger)

	dialect, err := store.DialectFor(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	db, err := openDatabase(ctx, dialect.Driver(), cfg.Database.DSN(), logger)
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		dialect: dialect,
		manager: store.NewManager(db, dialect, logger),
	}, nil
}

// openDatabase establishes a database connection and retries until the instance responds.
func openDatabase(ctx context.Context, driver, dsn string, logger zerolog.Logger) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	const (
		pingTimeout    = 5 * time.Second
		maxWait        = 30 * time.Second
		initialBackoff = 500 * time.Millisecond
		maxBackoff     = 5 * time.Second
	)

	deadline := time.Now().Add(maxWait)
	backoff := initialBackoff
	var lastErr error

	for {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()

		if lastErr == nil {
			return db, nil
		}

		// Respect caller cancellation.
		if ctx.Err() != nil {
			break
		}
		if time.Now().After(deadline) {
			break
		}

		logger.Warn().Err(lastErr).Dur("retry_in", backoff).Msg("database not ready")
		select {
		case <-ctx.Done():
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}

	_ = db.Close()
	return nil, fmt.Errorf("ping database: %w", lastErr)
}
