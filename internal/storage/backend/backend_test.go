package backend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

func clearEnv(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	t.Setenv(EnvClickHouseDSN, "")
	t.Setenv(EnvSQLitePath, "")
}

func TestOpen_Memory(t *testing.T) {
	clearEnv(t)

	s, err := Open(context.Background(), config.StorageConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, config.BackendMemory, s.Backend)
	assert.Nil(t, s.Timesteps)

	s, err = Open(context.Background(), config.StorageConfig{Backend: config.BackendMemory, StoreTimesteps: true})
	require.NoError(t, err)
	defer s.Close()
	assert.NotNil(t, s.Timesteps)
}

func TestOpen_SQLite(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sim.db")

	s, err := Open(ctx, config.StorageConfig{Backend: config.BackendSQLite, SQLitePath: path})
	require.NoError(t, err)

	sum := &domain.RunSummary{ExperimentID: "exp", RunID: "r1", Scenario: "bull", Controller: domain.ControllerPID, Seed: 1}
	require.NoError(t, s.Runs.Insert(ctx, sum))
	s.Close()

	// Reopen: migrations are idempotent and data persists.
	s, err = Open(ctx, config.StorageConfig{Backend: config.BackendSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Runs.GetByID(ctx, "exp", "r1")
	require.NoError(t, err)
	assert.Equal(t, "bull", got.Scenario)
	assert.ErrorIs(t, s.Runs.Insert(ctx, sum), storage.ErrDuplicateKey)
}

func TestOpen_SQLitePathFromEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "env.db")
	t.Setenv(EnvSQLitePath, path)

	cfg := config.StorageConfig{Backend: config.BackendSQLite}
	withEnv(&cfg)
	assert.Equal(t, path, cfg.SQLitePath)
}

func TestOpen_Errors(t *testing.T) {
	clearEnv(t)
	ctx := context.Background()

	_, err := Open(ctx, config.StorageConfig{Backend: "redis"})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)

	_, err = Open(ctx, config.StorageConfig{Backend: config.BackendPostgres})
	assert.ErrorIs(t, err, domain.ErrInvalidConfig)
}
