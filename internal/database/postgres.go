// Package database provides PostgreSQL access for records and runtime settings.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/jonesrussell/north-cloud/harvester/internal/config"
	"github.com/jonesrussell/north-cloud/harvester/internal/logger"
	"github.com/jonesrussell/north-cloud/harvester/internal/retry"
)

const (
	// DefaultPingTimeout bounds the connection check.
	DefaultPingTimeout = 5 * time.Second

	connectAttempts     = 5
	connectInitialDelay = time.Second
)

// NewPostgresConnection opens a pooled connection and verifies it with a ping.
// Startup races with the database container are absorbed by a short retry.
func NewPostgresConnection(ctx context.Context, cfg config.DatabaseConfig, log logger.Logger) (*sqlx.DB, error) {
	var db *sqlx.DB

	err := retry.Retry(ctx, retry.Config{
		MaxAttempts:  connectAttempts,
		InitialDelay: connectInitialDelay,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			log.Warn("Database not ready, retrying",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.Error(err),
			)
		},
	}, func() error {
		conn, connErr := connect(ctx, cfg)
		if connErr != nil {
			return connErr
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Info("Connected to PostgreSQL",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Name),
		logger.Int("max_open_conns", cfg.MaxOpenConns),
	)

	return db, nil
}

func connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}

// Close closes the database if it is non-nil.
func Close(db *sqlx.DB) error {
	if db != nil {
		return db.Close()
	}
	return nil
}
