// Package postgres opens a bun handle over pgdriver for the pgvector index.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
)

// Config holds connection parameters.
type Config struct {
	DSN string
	// Debug logs every query through bundebug.
	Debug bool
}

// Open connects to Postgres. The connection is lazy; use WaitForReady to block until it answers.
func Open(cfg Config) (*bun.DB, error) {
	if cfg.DSN == "" {
		return nil, errors.New("dsn is required")
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
	bdb := bun.NewDB(sqldb, pgdialect.New())
	if cfg.Debug {
		bdb.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return bdb, nil
}

// WaitForReady polls PingContext until Postgres answers or timeout expires.
func WaitForReady(ctx context.Context, bdb *bun.DB, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		if err := bdb.PingContext(ctx); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for postgres: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
