package migrations

import (
	"context"
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/storage/sqlite"
)

func TestSQLFiles(t *testing.T) {
	tests := []struct {
		dir  string
		fsys fs.FS
	}{
		{"postgres", PostgresFS},
		{"clickhouse", ClickhouseFS},
		{"sqlite", SQLiteFS},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			files, err := sqlFiles(tt.fsys, tt.dir)
			require.NoError(t, err)
			assert.NotEmpty(t, files)
			assert.IsIncreasing(t, files)
		})
	}
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements(`
-- header
CREATE TABLE a (x Int32);

-- second
CREATE TABLE b (y String)
ENGINE = MergeTree();
`)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x Int32)", stmts[0])
	assert.Contains(t, stmts[1], "ENGINE = MergeTree()")
}

func TestValidateNoSemicolonInStrings(t *testing.T) {
	assert.NoError(t, validateNoSemicolonInStrings("SELECT 'a''b'; SELECT 1;"))
	assert.Error(t, validateNoSemicolonInStrings("SELECT 'a;b'"))
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/sim")
	require.NoError(t, err)
	assert.Equal(t, "sim", db)

	_, err = databaseFromDSN("clickhouse://localhost:9000")
	assert.Error(t, err)
}

func TestRunSQLiteMigrations_Idempotent(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	require.NoError(t, RunSQLiteMigrations(ctx, db))
	require.NoError(t, RunSQLiteMigrations(ctx, db))

	var n int
	require.NoError(t, db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (
			'run_summaries', 'sweep_records', 'group_stats',
			'experiment_progress', 'experiment_completed_runs')`))
	assert.Equal(t, 5, n)
}
