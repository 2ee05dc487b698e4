package postgres

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// migrationsDir is relative to this package. The migrations package imports
// this one, so tests read the schema files instead of the embedded FS.
var migrationsDir = filepath.Join("..", "migrations", "postgres")

// tables are emptied between tests.
var tables = []string{
	"experiment_completed_runs",
	"experiment_progress",
	"group_stats",
	"sweep_records",
	"run_summaries",
}

// One container serves every test in the package.
var shared struct {
	once      sync.Once
	container *postgres.PostgresContainer
	pool      *Pool
	err       error
}

func TestMain(m *testing.M) {
	code := m.Run()
	if shared.pool != nil {
		shared.pool.Close()
	}
	if shared.container != nil {
		_ = shared.container.Terminate(context.Background())
	}
	os.Exit(code)
}

// setupTestDB returns a pool on a migrated database with empty tables.
// The returned cleanup only empties the tables; the container lives until
// TestMain returns.
func setupTestDB(t *testing.T) (*Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	shared.once.Do(func() {
		shared.container, shared.pool, shared.err = startPostgres(ctx)
	})
	require.NoError(t, shared.err, "failed to start postgres")

	truncate(t, ctx, shared.pool)
	return shared.pool, func() { truncate(t, ctx, shared.pool) }
}

func startPostgres(ctx context.Context) (*postgres.PostgresContainer, *Pool, error) {
	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("meshnet"),
		postgres.WithUsername("sim"),
		postgres.WithPassword("sim"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, nil, err
	}
	pool, err := NewPool(ctx, dsn)
	if err != nil {
		return container, nil, err
	}
	if err := applySchema(ctx, pool); err != nil {
		return container, pool, err
	}
	return container, pool, nil
}

// applySchema runs every migration file in name order.
func applySchema(ctx context.Context, pool *Pool) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		sql, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return err
		}
	}
	return nil
}

func truncate(t *testing.T, ctx context.Context, pool *Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, "TRUNCATE "+strings.Join(tables, ", "))
	require.NoError(t, err, "truncate tables")
}
