package clickhouse

import (
	"context"
	"fmt"
	"time"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// TimestepStore implements storage.TimestepStore using ClickHouse.
type TimestepStore struct {
	conn *Conn
}

// NewTimestepStore creates a new TimestepStore.
func NewTimestepStore(conn *Conn) *TimestepStore {
	return &TimestepStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TimestepStore = (*TimestepStore)(nil)

const selectTimestepSQL = `
	SELECT run_id, scenario, controller, seed, timestep,
	       nodes, emission, burn, daily_fee, price,
	       total_supply, circulating, treasury, slashed, slashed_total,
	       subsidy, fraud_captured_pct, bme, integral
	FROM timestep_records`

// InsertBulk adds multiple records. Fails entire batch on duplicate (run_id, timestep).
func (s *TimestepStore) InsertBulk(ctx context.Context, records []*domain.TimestepRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_timesteps", start, err) }(time.Now())

	type key struct {
		runID    string
		timestep int
	}
	seen := make(map[key]struct{}, len(records))
	runs := make(map[string]struct{})
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		k := key{r.RunID, r.Timestep}
		if _, exists := seen[k]; exists {
			return storage.ErrDuplicateKey
		}
		seen[k] = struct{}{}
		runs[r.RunID] = struct{}{}
	}

	// MergeTree does not enforce keys, so check the stored timesteps per run.
	for runID := range runs {
		existing, err := s.timesteps(ctx, runID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, ts := range existing {
			if _, dup := seen[key{runID, ts}]; dup {
				return storage.ErrDuplicateKey
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO timestep_records (
			run_id, scenario, controller, seed, timestep,
			nodes, emission, burn, daily_fee, price,
			total_supply, circulating, treasury, slashed, slashed_total,
			subsidy, fraud_captured_pct, bme, integral
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range records {
		err = batch.Append(
			r.RunID, r.Scenario, string(r.Controller), r.Seed, int32(r.Timestep),
			int64(r.Nodes), r.Emission, r.Burn, r.DailyFee, r.Price,
			r.TotalSupply, r.Circulating, r.Treasury, r.Slashed, r.SlashedTotal,
			r.Subsidy, r.FraudCapturedPct, r.BME, r.Integral,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by timestep ASC.
func (s *TimestepStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TimestepRecord, error) {
	return s.query(ctx, selectTimestepSQL+`
		WHERE run_id = ?
		ORDER BY timestep ASC`, runID)
}

// GetByRange retrieves records of a run within [start, end] (inclusive).
func (s *TimestepStore) GetByRange(ctx context.Context, runID string, start, end int) ([]*domain.TimestepRecord, error) {
	return s.query(ctx, selectTimestepSQL+`
		WHERE run_id = ? AND timestep >= ? AND timestep <= ?
		ORDER BY timestep ASC`, runID, int32(start), int32(end))
}

func (s *TimestepStore) query(ctx context.Context, query string, args ...any) ([]*domain.TimestepRecord, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query timesteps: %w", err)
	}
	defer rows.Close()

	var out []*domain.TimestepRecord
	for rows.Next() {
		var (
			r          domain.TimestepRecord
			controller string
			timestep   int32
			nodes      int64
		)
		err := rows.Scan(
			&r.RunID, &r.Scenario, &controller, &r.Seed, &timestep,
			&nodes, &r.Emission, &r.Burn, &r.DailyFee, &r.Price,
			&r.TotalSupply, &r.Circulating, &r.Treasury, &r.Slashed, &r.SlashedTotal,
			&r.Subsidy, &r.FraudCapturedPct, &r.BME, &r.Integral,
		)
		if err != nil {
			return nil, fmt.Errorf("scan timestep: %w", err)
		}
		r.Controller = domain.ControllerKind(controller)
		r.Timestep = int(timestep)
		r.Nodes = int(nodes)
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *TimestepStore) timesteps(ctx context.Context, runID string) ([]int, error) {
	rows, err := s.conn.Query(ctx, `SELECT timestep FROM timestep_records WHERE run_id = ?`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var ts int32
		if err := rows.Scan(&ts); err != nil {
			return nil, err
		}
		out = append(out, int(ts))
	}
	return out, rows.Err()
}
