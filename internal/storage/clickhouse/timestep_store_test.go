package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

func makeRecords(runID string, from, to int) []*domain.TimestepRecord {
	var out []*domain.TimestepRecord
	for t := from; t <= to; t++ {
		out = append(out, &domain.TimestepRecord{
			RunID:       runID,
			Scenario:    "bull",
			Controller:  domain.ControllerPID,
			Seed:        42,
			Timestep:    t,
			Nodes:       2000 + t,
			Emission:    109589,
			Burn:        1500,
			DailyFee:    500,
			Price:       0.1,
			TotalSupply: 1e9 + float64(t)*108089,
			Circulating: 2e8,
			Treasury:    1.5e8,
			BME:         1500.0 / 109589,
			Integral:    0.5,
		})
	}
	return out
}

func TestTimestepStore_InsertAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTimestepStore(conn)

	recs := makeRecords("run-a", 0, 9)
	// Insert out of order; reads come back sorted.
	recs[0], recs[9] = recs[9], recs[0]
	require.NoError(t, store.InsertBulk(ctx, recs))
	require.NoError(t, store.InsertBulk(ctx, makeRecords("run-b", 0, 2)))

	got, err := store.GetByRunID(ctx, "run-a")
	require.NoError(t, err)
	require.Len(t, got, 10)
	for i, r := range got {
		assert.Equal(t, i, r.Timestep)
		assert.Equal(t, 2000+i, r.Nodes)
		assert.Equal(t, domain.ControllerPID, r.Controller)
	}

	rng, err := store.GetByRange(ctx, "run-a", 3, 5)
	require.NoError(t, err)
	require.Len(t, rng, 3)
	assert.Equal(t, 3, rng[0].Timestep)
	assert.Equal(t, 5, rng[2].Timestep)

	empty, err := store.GetByRunID(ctx, "run-missing")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTimestepStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewTimestepStore(conn)

	require.NoError(t, store.InsertBulk(ctx, makeRecords("run-a", 0, 4)))

	err := store.InsertBulk(ctx, makeRecords("run-a", 4, 6))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	batch := append(makeRecords("run-c", 0, 1), makeRecords("run-c", 1, 1)...)
	assert.ErrorIs(t, store.InsertBulk(ctx, batch), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-a")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestParseDSN(t *testing.T) {
	opts, err := parseDSN("clickhouse://user:pw@db.local/sim")
	require.NoError(t, err)
	assert.Equal(t, []string{"db.local:9000"}, opts.Addr)
	assert.Equal(t, "user", opts.Auth.Username)
	assert.Equal(t, "pw", opts.Auth.Password)
	assert.Equal(t, "sim", opts.Auth.Database)

	_, err = parseDSN("postgres://x/y")
	assert.Error(t, err)
}

func TestParseDSN_Options(t *testing.T) {
	opts, err := parseDSN("clickhouse://db.local:9440/sim")
	require.NoError(t, err)
	assert.Equal(t, []string{"db.local:9440"}, opts.Addr)
	require.NotNil(t, opts.Compression)
	assert.Equal(t, clickhouse.CompressionLZ4, opts.Compression.Method)
	assert.Equal(t, defaultMaxOpenConns, opts.MaxOpenConns)

	opts, err = parseDSN("clickhouse://db.local/sim?compress=none&max_open_conns=2&dial_timeout=3s")
	require.NoError(t, err)
	assert.Nil(t, opts.Compression)
	assert.Equal(t, 2, opts.MaxOpenConns)
	assert.Equal(t, 3*time.Second, opts.DialTimeout)

	for _, bad := range []string{
		"clickhouse://db.local/sim?compress=gzip",
		"clickhouse://db.local/sim?max_open_conns=0",
		"clickhouse://db.local/sim?dial_timeout=soon",
	} {
		_, err := parseDSN(bad)
		assert.Error(t, err, bad)
	}
}
