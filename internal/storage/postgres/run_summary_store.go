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

// summaryColumns is the column order shared by inserts and scans.
var summaryColumns = []string{
	"experiment_id", "run_id", "short_id", "scenario", "controller", "seed",
	"param_key", "config_json", "horizon",
	"final_nodes", "deviation", "mean_abs_deviation", "min_nodes", "max_nodes",
	"total_emission", "total_burned", "total_slashed", "total_subsidy",
	"final_total_supply", "final_circulating", "final_treasury", "final_price",
	"fraud_captured_pct",
	"max_bme", "final_bme", "s2r_benchmark",
	"floor_steps", "ceiling_steps", "adjustments", "emission_std",
	"final_integral", "shock_response_days",
	"governance_gini", "governance_top1", "whale_capture_share",
}

var (
	insertSummarySQL = fmt.Sprintf("INSERT INTO run_summaries (%s) VALUES (%s)",
		strings.Join(summaryColumns, ", "), placeholders(len(summaryColumns)))
	selectSummarySQL = fmt.Sprintf("SELECT %s FROM run_summaries", strings.Join(summaryColumns, ", "))
)

func summaryArgs(s *domain.RunSummary) []any {
	return []any{
		s.ExperimentID, s.RunID, s.ShortID, s.Scenario, string(s.Controller), s.Seed,
		s.ParamKey, s.ConfigJSON, s.Horizon,
		s.FinalNodes, s.Deviation, s.MeanAbsDeviation, s.MinNodes, s.MaxNodes,
		s.TotalEmission, s.TotalBurned, s.TotalSlashed, s.TotalSubsidy,
		s.FinalTotalSupply, s.FinalCirculating, s.FinalTreasury, s.FinalPrice,
		s.FraudCapturedPct,
		s.MaxBME, s.FinalBME, s.S2RBenchmark,
		s.FloorSteps, s.CeilingSteps, s.Adjustments, s.EmissionStd,
		s.FinalIntegral, s.ShockResponseDays,
		s.GovernanceGini, s.GovernanceTop1, s.WhaleCaptureShare,
	}
}

func scanSummary(row pgx.Row) (*domain.RunSummary, error) {
	var s domain.RunSummary
	var controller string
	err := row.Scan(
		&s.ExperimentID, &s.RunID, &s.ShortID, &s.Scenario, &controller, &s.Seed,
		&s.ParamKey, &s.ConfigJSON, &s.Horizon,
		&s.FinalNodes, &s.Deviation, &s.MeanAbsDeviation, &s.MinNodes, &s.MaxNodes,
		&s.TotalEmission, &s.TotalBurned, &s.TotalSlashed, &s.TotalSubsidy,
		&s.FinalTotalSupply, &s.FinalCirculating, &s.FinalTreasury, &s.FinalPrice,
		&s.FraudCapturedPct,
		&s.MaxBME, &s.FinalBME, &s.S2RBenchmark,
		&s.FloorSteps, &s.CeilingSteps, &s.Adjustments, &s.EmissionStd,
		&s.FinalIntegral, &s.ShockResponseDays,
		&s.GovernanceGini, &s.GovernanceTop1, &s.WhaleCaptureShare,
	)
	if err != nil {
		return nil, err
	}
	s.Controller = domain.ControllerKind(controller)
	return &s, nil
}

// RunSummaryStore implements storage.RunSummaryStore using PostgreSQL.
type RunSummaryStore struct {
	pool *Pool
}

// NewRunSummaryStore creates a new RunSummaryStore.
func NewRunSummaryStore(pool *Pool) *RunSummaryStore {
	return &RunSummaryStore{pool: pool}
}

// Compile-time interface check.
var _ storage.RunSummaryStore = (*RunSummaryStore)(nil)

// Insert adds a new summary. Returns ErrDuplicateKey if (experiment_id, run_id) exists.
func (s *RunSummaryStore) Insert(ctx context.Context, sum *domain.RunSummary) (err error) {
	if sum == nil {
		return storage.ErrInvalidInput
	}
	defer func(start time.Time) { observe("insert_run_summary", start, err) }(time.Now())

	if _, err := s.pool.Exec(ctx, insertSummarySQL, summaryArgs(sum)...); err != nil {
		return writeErr("run summary", err)
	}
	return nil
}

// InsertBulk adds multiple summaries atomically. Fails entire batch on any duplicate.
func (s *RunSummaryStore) InsertBulk(ctx context.Context, summaries []*domain.RunSummary) (err error) {
	if len(summaries) == 0 {
		return nil
	}
	defer func(start time.Time) { observe("insert_run_summaries", start, err) }(time.Now())

	return s.pool.inTx(ctx, func(tx pgx.Tx) error {
		for _, sum := range summaries {
			if sum == nil {
				return storage.ErrInvalidInput
			}
			if _, err := tx.Exec(ctx, insertSummarySQL, summaryArgs(sum)...); err != nil {
				return writeErr("run summary "+sum.RunID, err)
			}
		}
		return nil
	})
}

// GetByID retrieves a summary by its key. Returns ErrNotFound if not exists.
func (s *RunSummaryStore) GetByID(ctx context.Context, experimentID, runID string) (*domain.RunSummary, error) {
	row := s.pool.QueryRow(ctx, selectSummarySQL+" WHERE experiment_id = $1 AND run_id = $2", experimentID, runID)
	sum, err := scanSummary(row)
	if err != nil {
		return nil, readErr("run summary", err)
	}
	return sum, nil
}

// GetByExperiment retrieves all summaries of an experiment.
func (s *RunSummaryStore) GetByExperiment(ctx context.Context, experimentID string) ([]*domain.RunSummary, error) {
	return s.query(ctx, selectSummarySQL+`
		WHERE experiment_id = $1
		ORDER BY scenario, controller, seed, run_id`, experimentID)
}

// GetByGroup retrieves the summaries of one (scenario, controller) group, ordered by seed ASC.
func (s *RunSummaryStore) GetByGroup(ctx context.Context, experimentID, scenario string, controller domain.ControllerKind) ([]*domain.RunSummary, error) {
	return s.query(ctx, selectSummarySQL+`
		WHERE experiment_id = $1 AND scenario = $2 AND controller = $3
		ORDER BY seed, run_id`, experimentID, scenario, string(controller))
}

func (s *RunSummaryStore) query(ctx context.Context, sql string, args ...any) ([]*domain.RunSummary, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query run summaries: %w", err)
	}
	defer rows.Close()

	var out []*domain.RunSummary
	for rows.Next() {
		sum, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
