// Package store picks the persistence driver from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/jainyash0614/stock-price/internal/config"
	"github.com/jainyash0614/stock-price/internal/db"
	"github.com/jainyash0614/stock-price/internal/leaderboard"
	"github.com/jainyash0614/stock-price/internal/market"
	"github.com/jainyash0614/stock-price/internal/store/postgres"
	"github.com/jainyash0614/stock-price/internal/store/sqlite"
)

// Store is everything the worker, the API and the leaderboard job need.
type Store interface {
	market.Store
	leaderboard.Store

	InstrumentBySymbol(ctx context.Context, symbol string) (market.Instrument, error)
	PriceHistory(ctx context.Context, instrumentID int64, limit int) ([]market.PricePoint, error)
	ResetMarket(ctx context.Context, keep []market.Seed) error
	Close() error
}

var (
	_ Store = (*postgres.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
)

func Open(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.Storage {
	case config.StorageSQLite:
		s, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoragePostgres, "":
		pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
		if err != nil {
			return nil, err
		}
		s := postgres.New(pool)
		if err := s.Migrate(ctx); err != nil {
			pool.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage)
	}
}
