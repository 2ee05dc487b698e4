package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

var sweepColumns = []string{
	"sweep_id", "point", "scenario", "seed", "run_id", "axis_values",
	"final_nodes", "deviation", "mean_abs_deviation", "total_emission",
	"total_slashed", "final_circulating", "final_treasury", "final_price",
	"floor_steps", "ceiling_steps", "adjustments", "emission_std",
	"shock_response_days",
}

var insertSweepSQL = fmt.Sprintf("INSERT INTO sweep_records (%s) VALUES (%s)",
	strings.Join(sweepColumns, ", "), placeholders(len(sweepColumns)))

// SweepRecordStore implements storage.SweepRecordStore using PostgreSQL.
// Axis values are stored as JSONB.
type SweepRecordStore struct {
	pool *Pool
}

// NewSweepRecordStore creates a new SweepRecordStore.
func NewSweepRecordStore(pool *Pool) *SweepRecordStore {
	return &SweepRecordStore{pool: pool}
}

// Compile-time interface check.
var _ storage.SweepRecordStore = (*SweepRecordStore)(nil)

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *SweepRecordStore) InsertBulk(ctx context.Context, records []*domain.SweepRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_sweep_records", start, err) }(time.Now())

	batch := &pgx.Batch{}
	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		values := r.Values
		if values == nil {
			values = map[string]float64{}
		}
		batch.Queue(insertSweepSQL,
			r.SweepID, r.Point, r.Scenario, r.Seed, r.RunID, values,
			r.FinalNodes, r.Deviation, r.MeanAbsDeviation, r.TotalEmission,
			r.TotalSlashed, r.FinalCirculating, r.FinalTreasury, r.FinalPrice,
			r.FloorSteps, r.CeilingSteps, r.Adjustments, r.EmissionStd,
			r.ShockResponseDays,
		)
	}

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for range records {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return writeErr("sweep record", err)
			}
		}
		if err := br.Close(); err != nil {
			return fmt.Errorf("close batch: %w", err)
		}
		return nil
	})
}

// GetBySweepID retrieves all rows of a sweep, ordered by point, scenario, seed ASC.
func (s *SweepRecordStore) GetBySweepID(ctx context.Context, sweepID string) ([]*domain.SweepRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM sweep_records
		WHERE sweep_id = $1
		ORDER BY point, scenario, seed`, strings.Join(sweepColumns, ", "))

	rows, err := s.pool.Query(ctx, query, sweepID)
	if err != nil {
		return nil, fmt.Errorf("query sweep records: %w", err)
	}
	defer rows.Close()

	var out []*domain.SweepRecord
	for rows.Next() {
		var r domain.SweepRecord
		err := rows.Scan(
			&r.SweepID, &r.Point, &r.Scenario, &r.Seed, &r.RunID, &r.Values,
			&r.FinalNodes, &r.Deviation, &r.MeanAbsDeviation, &r.TotalEmission,
			&r.TotalSlashed, &r.FinalCirculating, &r.FinalTreasury, &r.FinalPrice,
			&r.FloorSteps, &r.CeilingSteps, &r.Adjustments, &r.EmissionStd,
			&r.ShockResponseDays,
		)
		if err != nil {
			return nil, fmt.Errorf("scan sweep record: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}
