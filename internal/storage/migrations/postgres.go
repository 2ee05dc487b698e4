package migrations

import (
	"context"

	"meshnet-sim/internal/storage/postgres"
)

// RunPostgresMigrations applies the run, sweep, statistics and progress
// schemas. pgx runs a whole file as one multi-statement query.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	return apply(ctx, PostgresFS, "postgres", func(ctx context.Context, sql string) error {
		_, err := pool.Exec(ctx, sql)
		return err
	})
}
