package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

type statsRow struct {
	ExperimentID string  `db:"experiment_id"`
	Scenario     string  `db:"scenario"`
	Controller   string  `db:"controller"`
	Metric       string  `db:"metric"`
	Samples      int     `db:"samples"`
	Mean         float64 `db:"mean"`
	Std          float64 `db:"std"`
	P5           float64 `db:"p5"`
	P50          float64 `db:"p50"`
	P95          float64 `db:"p95"`
	Min          float64 `db:"min"`
	Max          float64 `db:"max"`
	CV           float64 `db:"cv"`
}

func toStatsRow(g *domain.GroupStats) statsRow {
	return statsRow{
		ExperimentID: g.ExperimentID, Scenario: g.Scenario, Controller: string(g.Controller), Metric: g.Metric,
		Samples: g.Samples, Mean: g.Mean, Std: g.Std, P5: g.P5, P50: g.P50, P95: g.P95,
		Min: g.Min, Max: g.Max, CV: g.CV,
	}
}

func (r statsRow) stats() *domain.GroupStats {
	return &domain.GroupStats{
		ExperimentID: r.ExperimentID, Scenario: r.Scenario, Controller: domain.ControllerKind(r.Controller), Metric: r.Metric,
		Samples: r.Samples, Mean: r.Mean, Std: r.Std, P5: r.P5, P50: r.P50, P95: r.P95,
		Min: r.Min, Max: r.Max, CV: r.CV,
	}
}

// GroupStatsStore implements storage.GroupStatsStore using SQLite.
type GroupStatsStore struct {
	db *DB
}

// NewGroupStatsStore creates a new GroupStatsStore.
func NewGroupStatsStore(db *DB) *GroupStatsStore {
	return &GroupStatsStore{db: db}
}

var _ storage.GroupStatsStore = (*GroupStatsStore)(nil)

// InsertBulk adds multiple stats atomically. Fails entire batch on any duplicate.
func (s *GroupStatsStore) InsertBulk(ctx context.Context, stats []*domain.GroupStats) (err error) {
	if len(stats) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_group_stats", start, err) }(time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, g := range stats {
		if g == nil {
			return storage.ErrInvalidInput
		}
		_, err := tx.NamedExecContext(ctx, `
			INSERT INTO group_stats (
				experiment_id, scenario, controller, metric,
				samples, mean, std, p5, p50, p95, min, max, cv
			) VALUES (
				:experiment_id, :scenario, :controller, :metric,
				:samples, :mean, :std, :p5, :p50, :p95, :min, :max, :cv
			)`, toStatsRow(g))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert group stats: %w", err)
		}
	}
	return tx.Commit()
}

// GetByKey retrieves one row by its composite key.
func (s *GroupStatsStore) GetByKey(ctx context.Context, experimentID, scenario string, controller domain.ControllerKind, metric string) (*domain.GroupStats, error) {
	var row statsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM group_stats
		WHERE experiment_id = ? AND scenario = ? AND controller = ? AND metric = ?`,
		experimentID, scenario, string(controller), metric)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get group stats: %w", err)
	}
	return row.stats(), nil
}

// GetByExperiment retrieves all rows of an experiment, ordered by scenario, controller, metric ASC.
func (s *GroupStatsStore) GetByExperiment(ctx context.Context, experimentID string) ([]*domain.GroupStats, error) {
	var rows []statsRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM group_stats WHERE experiment_id = ?
		ORDER BY scenario, controller, metric`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("select group stats: %w", err)
	}
	out := make([]*domain.GroupStats, len(rows))
	for i, r := range rows {
		out[i] = r.stats()
	}
	return out, nil
}
