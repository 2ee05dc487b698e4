// Command replay re-runs stored runs from their serialized configuration and
// reports any field that differs from what was stored.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/simulation"
	"meshnet-sim/internal/storage"
	"meshnet-sim/internal/storage/backend"
	"meshnet-sim/internal/storage/memory"
	"meshnet-sim/internal/verification"
)

// selfCheckExperiment keys the single run stored by --self-check.
const selfCheckExperiment = "self-check"

func main() {
	// Parse flags
	experimentID := flag.String("experiment", "", "Experiment ID of the stored runs")
	runID := flag.String("run-id", "", "Run ID or base58 short ID (empty verifies every run)")
	backendName := flag.String("backend", config.BackendPostgres, "Storage backend (postgres, sqlite)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv(backend.EnvPostgresDSN), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv(backend.EnvClickHouseDSN), "ClickHouse connection string (compares trajectories)")
	sqlitePath := flag.String("sqlite-path", os.Getenv(backend.EnvSQLitePath), "SQLite database file")
	selfCheck := flag.Bool("self-check", false, "Run once in memory, then replay and compare every timestep")
	scenario := flag.String("scenario", domain.ScenarioBull, "Scenario for --self-check")
	controller := flag.String("controller", string(domain.ControllerPID), "Policy for --self-check")
	seed := flag.Int64("seed", 1000, "Seed for --self-check")
	horizon := flag.Int("horizon", domain.DefaultHorizon, "Days for --self-check")
	outputJSON := flag.Bool("json", false, "Output as JSON")
	flag.Parse()

	logger := log.New(os.Stderr, "[replay] ", log.LstdFlags)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		runStore      storage.RunSummaryStore
		timestepStore storage.TimestepStore
	)
	if *selfCheck {
		runs, steps, id, err := seedSelfCheck(ctx, *scenario, domain.ControllerKind(*controller), *seed, *horizon)
		if err != nil {
			logger.Fatalf("self-check run: %v", err)
		}
		runStore, timestepStore = runs, steps
		*experimentID, *runID = selfCheckExperiment, id
	} else {
		if *experimentID == "" {
			logger.Fatal("--experiment is required (or use --self-check)")
		}
		stores, err := backend.Open(ctx, config.StorageConfig{
			Backend:       *backendName,
			PostgresDSN:   *postgresDSN,
			ClickHouseDSN: *clickhouseDSN,
			SQLitePath:    *sqlitePath,
		})
		if err != nil {
			logger.Fatalf("open %s storage: %v", *backendName, err)
		}
		defer stores.Close()
		runStore, timestepStore = stores.Runs, stores.Timesteps
	}

	verifier := verification.NewReplayVerifier(verification.ReplayVerifierOptions{
		RunStore:      runStore,
		TimestepStore: timestepStore,
	})

	var report *verification.VerificationReport
	if *runID != "" {
		id, err := resolveRunID(ctx, runStore, *experimentID, *runID)
		if err != nil {
			logger.Fatal(err)
		}
		res, err := verifier.VerifyRun(ctx, *experimentID, id)
		if err != nil {
			logger.Fatalf("verify %s: %v", id, err)
		}
		report = &verification.VerificationReport{TotalRuns: 1, Results: []verification.VerificationResult{*res}}
		if res.Match {
			report.MatchedRuns = 1
		} else {
			report.DivergentRuns = 1
		}
	} else {
		logger.Printf("Verifying every run of %s", *experimentID)
		var err error
		if report, err = verifier.VerifyAll(ctx, *experimentID); err != nil {
			logger.Fatalf("verify: %v", err)
		}
	}

	if *outputJSON {
		output, _ := json.MarshalIndent(report, "", "  ")
		fmt.Println(string(output))
	} else {
		printReport(report)
	}
	if report.DivergentRuns > 0 {
		os.Exit(1)
	}
}

// seedSelfCheck simulates one run into fresh memory stores and returns its run ID.
func seedSelfCheck(ctx context.Context, scenario string, kind domain.ControllerKind, seed int64, horizon int) (*memory.RunSummaryStore, *memory.TimestepStore, string, error) {
	sc, err := domain.ScenarioByName(scenario)
	if err != nil {
		return nil, nil, "", err
	}
	cfg := domain.DefaultRunConfig(sc, kind, seed)
	cfg.Horizon = horizon

	res, err := simulation.NewRunner(simulation.RunnerOptions{}).Run(ctx, cfg)
	if err != nil {
		return nil, nil, "", err
	}
	runs, steps := memory.NewRunSummaryStore(), memory.NewTimestepStore()
	res.Summary.ExperimentID = selfCheckExperiment
	if err := runs.Insert(ctx, res.Summary); err != nil {
		return nil, nil, "", err
	}
	if err := steps.InsertBulk(ctx, res.Records); err != nil {
		return nil, nil, "", err
	}
	return runs, steps, res.Summary.RunID, nil
}

// resolveRunID accepts a full run ID or a unique short-ID / prefix match.
func resolveRunID(ctx context.Context, store storage.RunSummaryStore, experimentID, id string) (string, error) {
	if _, err := store.GetByID(ctx, experimentID, id); err == nil {
		return id, nil
	}
	summaries, err := store.GetByExperiment(ctx, experimentID)
	if err != nil {
		return "", err
	}
	var matches []string
	for _, s := range summaries {
		if s.ShortID == id || strings.HasPrefix(s.RunID, id) {
			matches = append(matches, s.RunID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("run %s not found in experiment %s", id, experimentID)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("run %s is ambiguous: %d matches", id, len(matches))
	}
}

func printReport(r *verification.VerificationReport) {
	fmt.Printf("\n=== Replay Verification ===\n")
	fmt.Printf("Runs verified:  %d\n", r.TotalRuns)
	fmt.Printf("Matched:        %d\n", r.MatchedRuns)
	fmt.Printf("Divergent:      %d\n", r.DivergentRuns)
	for _, res := range r.Results {
		status := "MATCH"
		if !res.Match {
			status = "DIVERGED"
		}
		fmt.Printf("\n%s  %s  (%d timesteps compared)\n", status, res.RunID, res.TimestepsChecked)
		for i, d := range res.Divergences {
			if i == 10 {
				fmt.Printf("  ... %d more\n", len(res.Divergences)-i)
				break
			}
			fmt.Printf("  t=%d %s: stored %v, replayed %v\n", d.Timestep, d.Field, d.Expected, d.Actual)
		}
	}
}
