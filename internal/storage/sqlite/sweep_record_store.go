package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

type sweepRow struct {
	SweepID    string `db:"sweep_id"`
	Point      string `db:"point"`
	Scenario   string `db:"scenario"`
	Seed       int64  `db:"seed"`
	RecordJSON string `db:"record_json"`
}

// SweepRecordStore implements storage.SweepRecordStore using SQLite.
type SweepRecordStore struct {
	db *DB
}

// NewSweepRecordStore creates a new SweepRecordStore.
func NewSweepRecordStore(db *DB) *SweepRecordStore {
	return &SweepRecordStore{db: db}
}

var _ storage.SweepRecordStore = (*SweepRecordStore)(nil)

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *SweepRecordStore) InsertBulk(ctx context.Context, records []*domain.SweepRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_sweep_records", start, err) }(time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if r == nil {
			return storage.ErrInvalidInput
		}
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal sweep record: %w", err)
		}
		row := sweepRow{SweepID: r.SweepID, Point: r.Point, Scenario: r.Scenario, Seed: r.Seed, RecordJSON: string(b)}
		_, err = tx.NamedExecContext(ctx, `
			INSERT INTO sweep_records (sweep_id, point, scenario, seed, record_json)
			VALUES (:sweep_id, :point, :scenario, :seed, :record_json)`, row)
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert sweep record: %w", err)
		}
	}
	return tx.Commit()
}

// GetBySweepID retrieves all rows of a sweep, ordered by point, scenario, seed ASC.
func (s *SweepRecordStore) GetBySweepID(ctx context.Context, sweepID string) ([]*domain.SweepRecord, error) {
	var rows []sweepRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM sweep_records WHERE sweep_id = ?
		ORDER BY point, scenario, seed`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("select sweep records: %w", err)
	}

	out := make([]*domain.SweepRecord, 0, len(rows))
	for _, row := range rows {
		var r domain.SweepRecord
		if err := json.Unmarshal([]byte(row.RecordJSON), &r); err != nil {
			return nil, fmt.Errorf("unmarshal sweep record: %w", err)
		}
		out = append(out, &r)
	}
	return out, nil
}
