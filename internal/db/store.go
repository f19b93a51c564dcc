package db

import (
	"context"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
)

// Store bundles the configured repository with its readiness check.
type Store struct {
	Driver     string
	Repository appointment.Repository
	Ping       func(ctx context.Context) error
	Close      func()
}

// OpenStore connects and migrates the backend named by cfg.StoreDriver.
func OpenStore(ctx context.Context, cfg config.Config) (*Store, error) {
	switch cfg.StoreDriver {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pool, err := ConnectPostgres(pgCtx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := MigratePostgres(pgCtx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Store{
			Driver:     cfg.StoreDriver,
			Repository: appointment.NewPgRepository(pool),
			Ping:       pool.Ping,
			Close:      pool.Close,
		}, nil

	case config.StoreSQLite:
		conn, err := OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return &Store{
			Driver:     cfg.StoreDriver,
			Repository: appointment.NewSQLiteRepository(conn),
			Ping:       conn.PingContext,
			Close:      func() { _ = conn.Close() },
		}, nil

	default:
		return &Store{
			Driver:     config.StoreMemory,
			Repository: appointment.NewMemoryRepository(),
			Ping:       func(context.Context) error { return nil },
			Close:      func() {},
		}, nil
	}
}
