package storage

import "context"

// ExperimentProgress is the last recorded phase of an experiment.
type ExperimentProgress struct {
	ExperimentID  string
	Phase         string // last completed orchestrator phase
	CompletedRuns int
}

// ExperimentProgressStore persists orchestrator state so an interrupted
// experiment resumes without re-running or duplicating finished runs.
type ExperimentProgressStore interface {
	// GetProgress returns the last saved progress of an experiment.
	// Returns ErrNotFound if no progress has been saved yet.
	GetProgress(ctx context.Context, experimentID string) (*ExperimentProgress, error)

	// SetProgress saves the progress of an experiment, replacing any previous value.
	SetProgress(ctx context.Context, progress *ExperimentProgress) error

	// IsRunCompleted checks if a run of the experiment has been persisted.
	IsRunCompleted(ctx context.Context, experimentID, runID string) (bool, error)

	// MarkRunCompleted records that a run has been persisted.
	MarkRunCompleted(ctx context.Context, experimentID, runID string) error

	// LoadCompletedRuns returns all completed run IDs of an experiment, sorted.
	LoadCompletedRuns(ctx context.Context, experimentID string) ([]string, error)
}
