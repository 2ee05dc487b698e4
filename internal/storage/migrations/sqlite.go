package migrations

import (
	"context"

	"meshnet-sim/internal/storage/sqlite"
)

// RunSQLiteMigrations applies the single-file schema. The modernc driver
// executes every statement of a file in one call.
func RunSQLiteMigrations(ctx context.Context, db *sqlite.DB) error {
	return apply(ctx, SQLiteFS, "sqlite", func(ctx context.Context, sql string) error {
		_, err := db.ExecContext(ctx, sql)
		return err
	})
}
