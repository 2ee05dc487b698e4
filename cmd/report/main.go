// Command report renders the report of a stored experiment without
// re-running it.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/decision"
	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/orchestrator"
	"meshnet-sim/internal/reporting"
	"meshnet-sim/internal/storage"
	"meshnet-sim/internal/storage/backend"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/experiment.yaml", "Experiment YAML (experiment ID, sweeps, storage)")
	experimentID := flag.String("experiment", "", "Experiment ID override")
	backendName := flag.String("backend", "", "Storage backend override (postgres, sqlite)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv(backend.EnvPostgresDSN), "PostgreSQL connection string")
	sqlitePath := flag.String("sqlite-path", os.Getenv(backend.EnvSQLitePath), "SQLite database file")
	outputDir := flag.String("output-dir", "", "Output directory override")
	fixedClock := flag.Bool("fixed-clock", false, "Stamp the report with a fixed time for byte-identical output")
	flag.Parse()

	logger := log.New(os.Stderr, "[report] ", log.LstdFlags)
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *experimentID != "" {
		cfg.ExperimentID = *experimentID
	}
	if *backendName != "" {
		cfg.Storage.Backend = *backendName
	}
	if *postgresDSN != "" {
		cfg.Storage.PostgresDSN = *postgresDSN
	}
	if *sqlitePath != "" {
		cfg.Storage.SQLitePath = *sqlitePath
	}
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}
	if cfg.Storage.Backend == config.BackendMemory {
		logger.Fatal("the memory backend keeps nothing between processes; use --backend postgres or sqlite")
	}

	stores, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer stores.Close()

	stats, err := loadOrComputeStats(ctx, stores, cfg.ExperimentID)
	if err != nil {
		logger.Fatalf("group statistics: %v", err)
	}

	refs, err := orchestrator.SweepRefs(cfg)
	if err != nil {
		logger.Fatal(err)
	}

	gen := reporting.NewGenerator(stores.Runs, stores.Stats, stores.Sweeps)
	if *fixedClock {
		fixedTime := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
		gen = gen.WithClock(func() time.Time { return fixedTime })
	}
	report, err := gen.Generate(ctx, cfg.ExperimentID, refs)
	if err != nil {
		logger.Fatalf("generate: %v", err)
	}

	evaluator := decision.NewEvaluator()
	claims, err := orchestrator.VarianceClaims(evaluator, stats, cfg.Scenarios)
	if err != nil {
		logger.Fatal(err)
	}
	for _, s := range report.Sweeps {
		for _, rc := range s.Ranks {
			claims = append(claims, evaluator.EvaluateOrdering(rc))
		}
	}
	report.Claims = claims

	if err := os.MkdirAll(cfg.Report.OutputDir, 0755); err != nil {
		logger.Fatalf("create output dir: %v", err)
	}
	reportPath := filepath.Join(cfg.Report.OutputDir, "REPORT.md")
	if err := os.WriteFile(reportPath, []byte(reporting.RenderMarkdown(report)), 0644); err != nil {
		logger.Fatalf("write report: %v", err)
	}
	statsPath := filepath.Join(cfg.Report.OutputDir, "GROUP_STATS.csv")
	if err := os.WriteFile(statsPath, []byte(reporting.RenderCSV(report.Stats)), 0644); err != nil {
		logger.Fatalf("write stats: %v", err)
	}

	fmt.Printf("Report for %s generated (%d runs, %d claims):\n", cfg.ExperimentID, report.RunCount, len(claims))
	fmt.Printf("  - %s\n", reportPath)
	fmt.Printf("  - %s\n", statsPath)
}

// loadOrComputeStats returns stored group statistics, aggregating and
// storing them first if the experiment has runs but no statistics yet.
func loadOrComputeStats(ctx context.Context, stores *backend.Stores, experimentID string) ([]*domain.GroupStats, error) {
	stats, err := stores.Stats.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if len(stats) > 0 {
		return stats, nil
	}
	stats, err = metrics.NewAggregator(stores.Runs, stores.Stats).ComputeAndStore(ctx, experimentID)
	if errors.Is(err, metrics.ErrNoSamples) {
		return nil, fmt.Errorf("experiment %s has no stored runs", experimentID)
	}
	if errors.Is(err, storage.ErrDuplicateKey) {
		return stores.Stats.GetByExperiment(ctx, experimentID)
	}
	return stats, err
}
