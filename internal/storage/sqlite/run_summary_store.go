package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// summaryRow holds the indexed key columns; the rest of the summary is JSON.
type summaryRow struct {
	ExperimentID string `db:"experiment_id"`
	RunID        string `db:"run_id"`
	Scenario     string `db:"scenario"`
	Controller   string `db:"controller"`
	Seed         int64  `db:"seed"`
	SummaryJSON  string `db:"summary_json"`
}

func toSummaryRow(s *domain.RunSummary) (summaryRow, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return summaryRow{}, fmt.Errorf("marshal run summary: %w", err)
	}
	return summaryRow{
		ExperimentID: s.ExperimentID,
		RunID:        s.RunID,
		Scenario:     s.Scenario,
		Controller:   string(s.Controller),
		Seed:         s.Seed,
		SummaryJSON:  string(b),
	}, nil
}

func (r summaryRow) summary() (*domain.RunSummary, error) {
	var s domain.RunSummary
	if err := json.Unmarshal([]byte(r.SummaryJSON), &s); err != nil {
		return nil, fmt.Errorf("unmarshal run summary %s: %w", r.RunID, err)
	}
	return &s, nil
}

const insertSummarySQL = `
	INSERT INTO run_summaries (experiment_id, run_id, scenario, controller, seed, summary_json)
	VALUES (:experiment_id, :run_id, :scenario, :controller, :seed, :summary_json)`

// RunSummaryStore implements storage.RunSummaryStore using SQLite.
type RunSummaryStore struct {
	db *DB
}

// NewRunSummaryStore creates a new RunSummaryStore.
func NewRunSummaryStore(db *DB) *RunSummaryStore {
	return &RunSummaryStore{db: db}
}

var _ storage.RunSummaryStore = (*RunSummaryStore)(nil)

// Insert adds a new summary. Returns ErrDuplicateKey if (experiment_id, run_id) exists.
func (s *RunSummaryStore) Insert(ctx context.Context, sum *domain.RunSummary) error {
	if sum == nil {
		return storage.ErrInvalidInput
	}
	return s.InsertBulk(ctx, []*domain.RunSummary{sum})
}

// InsertBulk adds multiple summaries atomically. Fails entire batch on any duplicate.
func (s *RunSummaryStore) InsertBulk(ctx context.Context, summaries []*domain.RunSummary) (err error) {
	if len(summaries) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_run_summaries", start, err) }(time.Now())

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, sum := range summaries {
		if sum == nil {
			return storage.ErrInvalidInput
		}
		row, err := toSummaryRow(sum)
		if err != nil {
			return err
		}
		if _, err := tx.NamedExecContext(ctx, insertSummarySQL, row); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert run summary: %w", err)
		}
	}
	return tx.Commit()
}

// GetByID retrieves a summary by its key. Returns ErrNotFound if not exists.
func (s *RunSummaryStore) GetByID(ctx context.Context, experimentID, runID string) (*domain.RunSummary, error) {
	var row summaryRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM run_summaries WHERE experiment_id = ? AND run_id = ?`, experimentID, runID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get run summary: %w", err)
	}
	return row.summary()
}

// GetByExperiment retrieves all summaries of an experiment.
func (s *RunSummaryStore) GetByExperiment(ctx context.Context, experimentID string) ([]*domain.RunSummary, error) {
	return s.selectSummaries(ctx, `
		SELECT * FROM run_summaries WHERE experiment_id = ?
		ORDER BY scenario, controller, seed, run_id`, experimentID)
}

// GetByGroup retrieves the summaries of one (scenario, controller) group, ordered by seed ASC.
func (s *RunSummaryStore) GetByGroup(ctx context.Context, experimentID, scenario string, controller domain.ControllerKind) ([]*domain.RunSummary, error) {
	return s.selectSummaries(ctx, `
		SELECT * FROM run_summaries
		WHERE experiment_id = ? AND scenario = ? AND controller = ?
		ORDER BY seed, run_id`, experimentID, scenario, string(controller))
}

func (s *RunSummaryStore) selectSummaries(ctx context.Context, query string, args ...any) ([]*domain.RunSummary, error) {
	var rows []summaryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select run summaries: %w", err)
	}
	out := make([]*domain.RunSummary, 0, len(rows))
	for _, r := range rows {
		sum, err := r.summary()
		if err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}
