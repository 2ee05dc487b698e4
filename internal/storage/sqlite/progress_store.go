package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"meshnet-sim/internal/storage"
)

// ProgressStore implements storage.ExperimentProgressStore using SQLite.
type ProgressStore struct {
	db *DB
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(db *DB) *ProgressStore {
	return &ProgressStore{db: db}
}

var _ storage.ExperimentProgressStore = (*ProgressStore)(nil)

// GetProgress returns the last saved progress of an experiment.
func (s *ProgressStore) GetProgress(ctx context.Context, experimentID string) (*storage.ExperimentProgress, error) {
	var row struct {
		ExperimentID  string `db:"experiment_id"`
		Phase         string `db:"phase"`
		CompletedRuns int    `db:"completed_runs"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT experiment_id, phase, completed_runs
		FROM experiment_progress WHERE experiment_id = ?`, experimentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	return &storage.ExperimentProgress{
		ExperimentID:  row.ExperimentID,
		Phase:         row.Phase,
		CompletedRuns: row.CompletedRuns,
	}, nil
}

// SetProgress saves the progress of an experiment, replacing any previous value.
func (s *ProgressStore) SetProgress(ctx context.Context, p *storage.ExperimentProgress) error {
	if p == nil || p.ExperimentID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_progress (experiment_id, phase, completed_runs, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (experiment_id) DO UPDATE
		SET phase = excluded.phase,
		    completed_runs = excluded.completed_runs,
		    updated_at = excluded.updated_at`,
		p.ExperimentID, p.Phase, p.CompletedRuns, time.Now().UnixMilli())
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
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM experiment_completed_runs
		WHERE experiment_id = ? AND run_id = ?`, experimentID, runID)
	if err != nil {
		return false, fmt.Errorf("check completed run: %w", err)
	}
	return n > 0, nil
}

// MarkRunCompleted records that a run has been persisted.
func (s *ProgressStore) MarkRunCompleted(ctx context.Context, experimentID, runID string) error {
	if experimentID == "" || runID == "" {
		return storage.ErrInvalidInput
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO experiment_completed_runs (experiment_id, run_id)
		VALUES (?, ?)
		ON CONFLICT (experiment_id, run_id) DO NOTHING`, experimentID, runID)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return nil
}

// LoadCompletedRuns returns all completed run IDs of an experiment, sorted.
func (s *ProgressStore) LoadCompletedRuns(ctx context.Context, experimentID string) ([]string, error) {
	ids := []string{}
	err := s.db.SelectContext(ctx, &ids, `
		SELECT run_id FROM experiment_completed_runs
		WHERE experiment_id = ? ORDER BY run_id`, experimentID)
	if err != nil {
		return nil, fmt.Errorf("load completed runs: %w", err)
	}
	return ids, nil
}
