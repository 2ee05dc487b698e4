package storage

import (
	"context"

	"meshnet-sim/internal/domain"
)

// RunSummaryStore provides access to run_summaries storage.
type RunSummaryStore interface {
	// Insert adds a new summary. Returns ErrDuplicateKey if (experiment_id, run_id) exists.
	Insert(ctx context.Context, s *domain.RunSummary) error

	// InsertBulk adds multiple summaries atomically. Fails entire batch on any duplicate.
	InsertBulk(ctx context.Context, summaries []*domain.RunSummary) error

	// GetByID retrieves a summary by its key. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, experimentID, runID string) (*domain.RunSummary, error)

	// GetByExperiment retrieves all summaries of an experiment,
	// ordered by scenario, controller, seed, run_id ASC.
	GetByExperiment(ctx context.Context, experimentID string) ([]*domain.RunSummary, error)

	// GetByGroup retrieves the summaries of one (scenario, controller) group, ordered by seed ASC.
	GetByGroup(ctx context.Context, experimentID, scenario string, controller domain.ControllerKind) ([]*domain.RunSummary, error)
}

// TimestepStore provides access to timestep_records storage.
type TimestepStore interface {
	// InsertBulk adds multiple records. Fails entire batch on duplicate (run_id, timestep).
	InsertBulk(ctx context.Context, records []*domain.TimestepRecord) error

	// GetByRunID retrieves all records of a run, ordered by timestep ASC.
	GetByRunID(ctx context.Context, runID string) ([]*domain.TimestepRecord, error)

	// GetByRange retrieves records of a run within [start, end] (inclusive).
	GetByRange(ctx context.Context, runID string, start, end int) ([]*domain.TimestepRecord, error)
}

// SweepRecordStore provides access to sweep_records storage.
type SweepRecordStore interface {
	// InsertBulk adds multiple rows atomically.
	// Fails entire batch on duplicate (sweep_id, point, scenario, seed).
	InsertBulk(ctx context.Context, records []*domain.SweepRecord) error

	// GetBySweepID retrieves all rows of a sweep, ordered by point, scenario, seed ASC.
	GetBySweepID(ctx context.Context, sweepID string) ([]*domain.SweepRecord, error)
}

// GroupStatsStore provides access to group_stats storage.
type GroupStatsStore interface {
	// InsertBulk adds multiple stats atomically.
	// Fails entire batch on duplicate (experiment_id, scenario, controller, metric).
	InsertBulk(ctx context.Context, stats []*domain.GroupStats) error

	// GetByKey retrieves one row by its composite key. Returns ErrNotFound if not exists.
	GetByKey(ctx context.Context, experimentID, scenario string, controller domain.ControllerKind, metric string) (*domain.GroupStats, error)

	// GetByExperiment retrieves all rows of an experiment,
	// ordered by scenario, controller, metric ASC.
	GetByExperiment(ctx context.Context, experimentID string) ([]*domain.GroupStats, error)
}
