package verification

import (
	"context"
	"errors"
	"fmt"

	"meshnet-sim/internal/simulation"
	"meshnet-sim/internal/storage"
)

// ErrRunNotFound is returned when the run ID doesn't exist.
var ErrRunNotFound = errors.New("run not found")

// ReplayVerifier implements Verifier by re-running stored configurations.
type ReplayVerifier struct {
	runStore      storage.RunSummaryStore
	timestepStore storage.TimestepStore // optional
	runner        *simulation.Runner
}

// ReplayVerifierOptions contains configuration for creating a ReplayVerifier.
type ReplayVerifierOptions struct {
	RunStore      storage.RunSummaryStore
	TimestepStore storage.TimestepStore // nil compares summaries only
}

// NewReplayVerifier creates a new ReplayVerifier.
func NewReplayVerifier(opts ReplayVerifierOptions) *ReplayVerifier {
	return &ReplayVerifier{
		runStore:      opts.RunStore,
		timestepStore: opts.TimestepStore,
		runner:        simulation.NewRunner(simulation.RunnerOptions{SummaryOnly: opts.TimestepStore == nil}),
	}
}

// VerifyRun replays a stored run from its serialized configuration.
func (v *ReplayVerifier) VerifyRun(ctx context.Context, experimentID, runID string) (*VerificationResult, error) {
	stored, err := v.runStore.GetByID(ctx, experimentID, runID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrRunNotFound
		}
		return nil, err
	}

	cfg, err := simulation.ParseConfigJSON(stored.ConfigJSON)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}
	replayed, err := v.runner.Run(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	result := &VerificationResult{RunID: runID}
	result.Divergences = CompareSummaries(stored, replayed.Summary)

	if v.timestepStore != nil {
		records, err := v.timestepStore.GetByRunID(ctx, runID)
		if err != nil {
			return nil, err
		}
		// Runs persisted without trajectories have nothing to compare.
		if len(records) > 0 {
			if len(records) != len(replayed.Records) {
				result.Divergences = append(result.Divergences,
					FieldDivergence{-1, "record_count", len(records), len(replayed.Records)})
			}
			for i, rec := range records {
				if i >= len(replayed.Records) {
					break
				}
				result.Divergences = append(result.Divergences, CompareTimestepRecords(rec, replayed.Records[i])...)
			}
			result.TimestepsChecked = len(records)
		}
	}

	result.Match = len(result.Divergences) == 0
	return result, nil
}

// VerifyAll verifies every stored run of an experiment.
func (v *ReplayVerifier) VerifyAll(ctx context.Context, experimentID string) (*VerificationReport, error) {
	summaries, err := v.runStore.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}

	report := &VerificationReport{
		TotalRuns: len(summaries),
		Results:   make([]VerificationResult, 0, len(summaries)),
	}
	for _, s := range summaries {
		result, err := v.VerifyRun(ctx, experimentID, s.RunID)
		if err != nil {
			return nil, err
		}
		report.Results = append(report.Results, *result)
		if result.Match {
			report.MatchedRuns++
		} else {
			report.DivergentRuns++
		}
	}
	return report, nil
}
