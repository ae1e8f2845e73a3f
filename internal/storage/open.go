package storage

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/story-analytics/pkg/sqlite"
)

// Open connects to the configured backend. procs is nil for sqlite, which
// has no delegated procedures. The returned close func releases the pool.
func Open(ctx context.Context, cfg *config.Config) (store *SQLStore, procs *PGProcedures, closeFn func() error, err error) {
	switch cfg.Store.Driver {
	case config.DriverSQLite:
		client, err := sqlite.Open(cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}
		return NewSQLStore(client.DB, SQLite), nil, client.Close, nil
	case config.DriverPostgres:
		client, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, nil, err
		}
		return NewSQLStore(client.DB, Postgres), NewPGProcedures(client.DB), client.Close, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
