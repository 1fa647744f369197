package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// Dialect captures what differs between the database/sql backends: driver
// name, DDL and how a unique-key violation is reported.
type Dialect struct {
	Name        string
	Driver      string
	schema      []string
	isDuplicate func(error) bool
	singleConn  bool
}

// SQLite is the embedded default backend.
var SQLite = Dialect{
	Name:   "sqlite",
	Driver: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id TEXT PRIMARY KEY,
			owner_id TEXT,
			game TEXT NOT NULL,
			revision INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL,
			data TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_game ON listings(game, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_listings_owner ON listings(owner_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			checkout_code TEXT NOT NULL UNIQUE,
			account_id TEXT NOT NULL,
			account_type TEXT NOT NULL,
			category_name TEXT NOT NULL,
			quantity INTEGER NOT NULL,
			unit_price INTEGER NOT NULL,
			total_price INTEGER NOT NULL,
			email TEXT NOT NULL,
			game TEXT NOT NULL,
			server TEXT NOT NULL,
			display_image TEXT NOT NULL,
			user_id TEXT,
			status TEXT NOT NULL,
			qr_code_url TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL,
			paid_at INTEGER,
			paid_amount INTEGER,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_expires ON orders(status, expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_status_created ON orders(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id, created_at)`,
	},
	isDuplicate: func(err error) bool {
		return strings.Contains(err.Error(), "UNIQUE constraint failed")
	},
	singleConn: true,
}

// MySQL stores listings and orders in InnoDB tables.
var MySQL = Dialect{
	Name:   "mysql",
	Driver: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS listings (
			id VARCHAR(64) NOT NULL PRIMARY KEY,
			owner_id VARCHAR(128) NULL,
			game VARCHAR(128) NOT NULL,
			revision BIGINT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			data LONGTEXT NOT NULL,
			KEY idx_listings_game (game, created_at),
			KEY idx_listings_owner (owner_id, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS orders (
			order_id VARCHAR(32) NOT NULL PRIMARY KEY,
			checkout_code VARCHAR(32) NOT NULL,
			account_id VARCHAR(64) NOT NULL,
			account_type VARCHAR(255) NOT NULL,
			category_name VARCHAR(255) NOT NULL,
			quantity INT NOT NULL,
			unit_price BIGINT NOT NULL,
			total_price BIGINT NOT NULL,
			email VARCHAR(320) NOT NULL,
			game VARCHAR(128) NOT NULL,
			server VARCHAR(128) NOT NULL,
			display_image TEXT NOT NULL,
			user_id VARCHAR(128) NULL,
			status VARCHAR(16) NOT NULL,
			qr_code_url TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL,
			paid_at BIGINT NULL,
			paid_amount BIGINT NULL,
			updated_at BIGINT NOT NULL,
			UNIQUE KEY uq_orders_checkout_code (checkout_code),
			KEY idx_orders_status_expires (status, expires_at),
			KEY idx_orders_status_created (status, created_at),
			KEY idx_orders_user (user_id, created_at)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
	isDuplicate: func(err error) bool {
		var myErr *mysql.MySQLError
		return errors.As(err, &myErr) && myErr.Number == 1062
	},
}

// OpenSQL opens a database/sql pool for the dialect and creates the schema.
func OpenSQL(ctx context.Context, d Dialect, dsn string, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(d.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", d.Name, err)
	}

	if d.singleConn {
		// SQLite only supports 1 writer
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.Name, err)
	}

	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create %s schema: %w", d.Name, err)
		}
	}

	logger.Info("sql store initialized", zap.String("dialect", d.Name))
	return db, nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
