package postgres

import (
	"context"
	"fmt"

	"meshnet-sim/internal/storage"
)

// ProgressStore is a PostgreSQL implementation of storage.ExperimentProgressStore.
// Uses two tables:
//   - experiment_progress: one row per experiment with the last phase
//   - experiment_completed_runs: set of persisted run IDs per experiment
type ProgressStore struct {
	pool *Pool
}

// NewProgressStore creates a new PostgreSQL progress store.
func NewProgressStore(pool *Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

var _ storage.ExperimentProgressStore = (*ProgressStore)(nil)

// GetProgress returns the last saved progress of an experiment.
func (s *ProgressStore) GetProgress(ctx context.Context, experimentID string) (*storage.ExperimentProgress, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT experiment_id, phase, completed_runs
		FROM experiment_progress
		WHERE experiment_id = $1
	`, experimentID)

	var p storage.ExperimentProgress
	if err := row.Scan(&p.ExperimentID, &p.Phase, &p.CompletedRuns); err != nil {
		return nil, readErr("progress", err)
	}
	return &p, nil
}

// SetProgress saves the progress of an experiment.
// Uses upsert to handle initial insert and subsequent updates.
func (s *ProgressStore) SetProgress(ctx context.Context, p *storage.ExperimentProgress) error {
	if p == nil || p.ExperimentID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO experiment_progress (experiment_id, phase, completed_runs, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (experiment_id) DO UPDATE
		SET phase = EXCLUDED.phase,
		    completed_runs = EXCLUDED.completed_runs,
		    updated_at = NOW()
	`, p.ExperimentID, p.Phase, p.CompletedRuns)
	if err != nil {
		return fmt.Errorf("set progress: %w", err)
	}
	return nil
}

// IsRunCompleted checks if a run of the experiment has been persisted.
func (s *ProgressStore) IsRunCompleted(ctx context.Context, experimentID, runID string) (bool, error) {
	if experimentID == "" || runID == "" {
		return false, storage.ErrInvalidInput
	}

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM experiment_completed_runs WHERE experiment_id = $1 AND run_id = $2)
	`, experimentID, runID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check completed run: %w", err)
	}
	return exists, nil
}

// MarkRunCompleted records that a run has been persisted.
func (s *ProgressStore) MarkRunCompleted(ctx context.Context, experimentID, runID string) error {
	if experimentID == "" || runID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO experiment_completed_runs (experiment_id, run_id, completed_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (experiment_id, run_id) DO NOTHING
	`, experimentID, runID)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return nil
}

// LoadCompletedRuns returns all completed run IDs of an experiment, sorted.
func (s *ProgressStore) LoadCompletedRuns(ctx context.Context, experimentID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT run_id FROM experiment_completed_runs
		WHERE experiment_id = $1
		ORDER BY run_id
	`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load completed runs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
