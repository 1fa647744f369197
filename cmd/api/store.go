package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"atstore-api/internal/config"
	"atstore-api/internal/repository"
)

// store is the selected persistence backend.
type store struct {
	listings repository.ListingRepository
	orders   repository.OrderRepository
}

func (s *store) Ping(ctx context.Context) error {
	if err := s.listings.Ping(ctx); err != nil {
		return err
	}
	return s.orders.Ping(ctx)
}

// Close releases the backend. The order repository owns the shared
// connection; the listing repository's Close is safe to call as well.
func (s *store) Close() error {
	_ = s.listings.Close()
	return s.orders.Close()
}

// openStore connects to the backend named by cfg.Type.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*store, error) {
	switch cfg.Type {
	case "mongodb", "mongo":
		db, err := repository.OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, logger)
		if err != nil {
			return nil, err
		}
		return &store{
			listings: repository.NewMongoListingRepository(db),
			orders:   repository.NewMongoOrderRepository(db),
		}, nil

	case "postgres", "postgresql":
		pool, err := repository.OpenPostgres(ctx, cfg.PostgresDSN(), logger)
		if err != nil {
			return nil, err
		}
		return &store{
			listings: repository.NewPostgresListingRepository(pool),
			orders:   repository.NewPostgresOrderRepository(pool),
		}, nil

	case "mysql":
		db, err := repository.OpenSQL(ctx, repository.MySQL, cfg.MySQLDSN(), logger)
		if err != nil {
			return nil, err
		}
		return &store{
			listings: repository.NewSQLListingRepository(db, repository.MySQL),
			orders:   repository.NewSQLOrderRepository(db, repository.MySQL),
		}, nil

	case "sqlite", "":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
		db, err := repository.OpenSQL(ctx, repository.SQLite, cfg.SQLiteDSN(), logger)
		if err != nil {
			return nil, err
		}
		return &store{
			listings: repository.NewSQLListingRepository(db, repository.SQLite),
			orders:   repository.NewSQLOrderRepository(db, repository.SQLite),
		}, nil

	case "memory":
		return &store{
			listings: repository.NewMemoryListingRepository(),
			orders:   repository.NewMemoryOrderRepository(),
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_TYPE %q", cfg.Type)
}
