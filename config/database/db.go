package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"autogramhandoff/config"
	"autogramhandoff/pkg/logger"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const (
	connectAttempts = 5
	retryDelay      = 2 * time.Second
)

// Connect opens the configured database and pings it, retrying a few times on failure.
// sqlite3 connections are pinned to a single connection so ":memory:" databases are shared
// by every request.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Driver, err)
	}

	if cfg.Driver == "sqlite3" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	for i := 0; i < connectAttempts; i++ {
		if err = db.PingContext(ctx); err == nil {
			logger.Sugar.Infof("Connected to the %s database", cfg.Driver)
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in %s... (%v)", retryDelay, err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to %s database after %d attempts: %w", cfg.Driver, connectAttempts, err)
}

// Migrate applies a schema made of idempotent statements.
func Migrate(ctx context.Context, db *sql.DB, schema string) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		logger.Sugar.Errorf("Failed to apply schema: %v", err)
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
