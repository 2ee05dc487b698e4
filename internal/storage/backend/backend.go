// Package backend opens the store set selected by an experiment's storage
// section: in memory, PostgreSQL (with optional ClickHouse trajectories) or
// a SQLite file.
package backend

import (
	"context"
	"fmt"
	"log"
	"os"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
	chstore "meshnet-sim/internal/storage/clickhouse"
	"meshnet-sim/internal/storage/memory"
	"meshnet-sim/internal/storage/migrations"
	pgstore "meshnet-sim/internal/storage/postgres"
	"meshnet-sim/internal/storage/sqlite"
)

// Environment fallbacks for empty connection settings.
const (
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickHouseDSN = "CLICKHOUSE_DSN"
	EnvSQLitePath    = "SQLITE_PATH"
)

// DefaultSQLitePath is used when neither the config nor the environment names a file.
const DefaultSQLitePath = "meshnet-sim.db"

// Stores is one open store set.
type Stores struct {
	Backend   string
	Runs      storage.RunSummaryStore
	Timesteps storage.TimestepStore // nil when trajectories are not kept
	Sweeps    storage.SweepRecordStore
	Stats     storage.GroupStatsStore
	Progress  storage.ExperimentProgressStore

	closers []func()
}

// Close releases every connection.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Open connects to the configured backend and applies migrations.
// Trajectories go to ClickHouse whenever a ClickHouse DSN is known, else to
// memory on the memory backend if store_timesteps is set.
func Open(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	withEnv(&cfg)

	var (
		s   *Stores
		err error
	)
	switch cfg.Backend {
	case config.BackendMemory, "":
		s = openMemory(cfg)
	case config.BackendPostgres:
		s, err = openPostgres(ctx, cfg)
	case config.BackendSQLite:
		s, err = openSQLite(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown storage backend %q", domain.ErrInvalidConfig, cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	if cfg.ClickHouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.Timesteps = chstore.NewTimestepStore(conn)
	}
	return s, nil
}

func withEnv(cfg *config.StorageConfig) {
	if cfg.PostgresDSN == "" {
		cfg.PostgresDSN = os.Getenv(EnvPostgresDSN)
	}
	if cfg.ClickHouseDSN == "" {
		cfg.ClickHouseDSN = os.Getenv(EnvClickHouseDSN)
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = os.Getenv(EnvSQLitePath)
	}
	if cfg.SQLitePath == "" {
		cfg.SQLitePath = DefaultSQLitePath
	}
}

func openMemory(cfg config.StorageConfig) *Stores {
	s := &Stores{
		Backend:  config.BackendMemory,
		Runs:     memory.NewRunSummaryStore(),
		Sweeps:   memory.NewSweepRecordStore(),
		Stats:    memory.NewGroupStatsStore(),
		Progress: memory.NewProgressStore(),
	}
	if cfg.StoreTimesteps {
		s.Timesteps = memory.NewTimestepStore()
	}
	return s
}

func openPostgres(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("%w: postgres backend needs postgres_dsn or %s", domain.ErrInvalidConfig, EnvPostgresDSN)
	}
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrations: %w", err)
	}
	return &Stores{
		Backend:  config.BackendPostgres,
		Runs:     pgstore.NewRunSummaryStore(pool),
		Sweeps:   pgstore.NewSweepRecordStore(pool),
		Stats:    pgstore.NewGroupStatsStore(pool),
		Progress: pgstore.NewProgressStore(pool),
		closers:  []func(){pool.Close},
	}, nil
}

func openSQLite(ctx context.Context, cfg config.StorageConfig) (*Stores, error) {
	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := migrations.RunSQLiteMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite migrations: %w", err)
	}
	if cfg.StoreTimesteps && cfg.ClickHouseDSN == "" {
		log.Printf("[backend] sqlite keeps summaries only; set %s to store trajectories", EnvClickHouseDSN)
	}
	return &Stores{
		Backend:  config.BackendSQLite,
		Runs:     sqlite.NewRunSummaryStore(db),
		Sweeps:   sqlite.NewSweepRecordStore(db),
		Stats:    sqlite.NewGroupStatsStore(db),
		Progress: sqlite.NewProgressStore(db),
		closers:  []func(){func() { db.Close() }},
	}, nil
}
