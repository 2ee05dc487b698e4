package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// GroupStatsStore implements storage.GroupStatsStore using PostgreSQL.
type GroupStatsStore struct {
	pool *Pool
}

// NewGroupStatsStore creates a new GroupStatsStore.
func NewGroupStatsStore(pool *Pool) *GroupStatsStore {
	return &GroupStatsStore{pool: pool}
}

// Compile-time interface check.
var _ storage.GroupStatsStore = (*GroupStatsStore)(nil)

const selectGroupStatsSQL = `
	SELECT experiment_id, scenario, controller, metric,
	       samples, mean, std, p5, p50, p95, min, max, cv
	FROM group_stats`

// InsertBulk adds multiple stats atomically. Fails entire batch on any duplicate.
func (s *GroupStatsStore) InsertBulk(ctx context.Context, stats []*domain.GroupStats) (err error) {
	if len(stats) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_group_stats", start, err) }(time.Now())

	query := `
		INSERT INTO group_stats (
			experiment_id, scenario, controller, metric,
			samples, mean, std, p5, p50, p95, min, max, cv
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, g := range stats {
			if g == nil {
				return storage.ErrInvalidInput
			}
			_, err := tx.Exec(ctx, query,
				g.ExperimentID, g.Scenario, string(g.Controller), g.Metric,
				g.Samples, g.Mean, g.Std, g.P5, g.P50, g.P95, g.Min, g.Max, g.CV,
			)
			if err != nil {
				return writeErr("group stats "+g.Metric, err)
			}
		}
		return nil
	})
}

// GetByKey retrieves one row by its composite key. Returns ErrNotFound if not exists.
func (s *GroupStatsStore) GetByKey(ctx context.Context, experimentID, scenario string, controller domain.ControllerKind, metric string) (*domain.GroupStats, error) {
	row := s.pool.QueryRow(ctx, selectGroupStatsSQL+`
		WHERE experiment_id = $1 AND scenario = $2 AND controller = $3 AND metric = $4`,
		experimentID, scenario, string(controller), metric)
	g, err := scanGroupStats(row)
	if err != nil {
		return nil, readErr("group stats", err)
	}
	return g, nil
}

// GetByExperiment retrieves all rows of an experiment, ordered by scenario, controller, metric ASC.
func (s *GroupStatsStore) GetByExperiment(ctx context.Context, experimentID string) ([]*domain.GroupStats, error) {
	rows, err := s.pool.Query(ctx, selectGroupStatsSQL+`
		WHERE experiment_id = $1
		ORDER BY scenario, controller, metric`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("query group stats: %w", err)
	}
	defer rows.Close()

	var out []*domain.GroupStats
	for rows.Next() {
		g, err := scanGroupStats(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group stats: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGroupStats(row pgx.Row) (*domain.GroupStats, error) {
	var g domain.GroupStats
	var controller string
	err := row.Scan(
		&g.ExperimentID, &g.Scenario, &controller, &g.Metric,
		&g.Samples, &g.Mean, &g.Std, &g.P5, &g.P50, &g.P95, &g.Min, &g.Max, &g.CV,
	)
	if err != nil {
		return nil, err
	}
	g.Controller = domain.ControllerKind(controller)
	return &g, nil
}
