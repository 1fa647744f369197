package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id TEXT PRIMARY KEY,
	owner_id TEXT,
	game TEXT NOT NULL,
	revision BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	data JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_game ON listings(game, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id, created_at DESC);

CREATE TABLE IF NOT EXISTS orders (
	order_id TEXT PRIMARY KEY,
	checkout_code TEXT NOT NULL UNIQUE,
	account_id TEXT NOT NULL,
	account_type TEXT NOT NULL,
	category_name TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	unit_price BIGINT NOT NULL,
	total_price BIGINT NOT NULL,
	email TEXT NOT NULL,
	game TEXT NOT NULL,
	server TEXT NOT NULL,
	display_image TEXT NOT NULL,
	user_id TEXT,
	status TEXT NOT NULL,
	qr_code_url TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	paid_at TIMESTAMPTZ,
	paid_amount BIGINT,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status_expires ON orders(status, expires_at);
CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at DESC);
`

// OpenPostgres connects a pgx pool and creates the schema.
func OpenPostgres(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL dsn: %w", err)
	}

	// Connection pool settings for high traffic
	cfg.MaxConns = 25
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 5 * time.Minute
	cfg.MaxConnIdleTime = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info("postgres store initialized", zap.Int32("max_conns", cfg.MaxConns))
	return pool, nil
}

func isPgDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func optionalText(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
