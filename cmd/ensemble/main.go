// Command ensemble runs an experiment file end to end and writes its report.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/observability"
	"meshnet-sim/internal/orchestrator"
	"meshnet-sim/internal/storage/backend"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "configs/experiment.yaml", "Experiment YAML file")
	backendName := flag.String("backend", "", "Storage backend override (memory, postgres, sqlite)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv(backend.EnvPostgresDSN), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv(backend.EnvClickHouseDSN), "ClickHouse connection string for trajectories")
	sqlitePath := flag.String("sqlite-path", os.Getenv(backend.EnvSQLitePath), "SQLite database file")
	outputDir := flag.String("output-dir", "", "Output directory override")
	workers := flag.Int("workers", 0, "Parallel runs (0 uses the config value)")
	metricsAddr := flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while running")
	verbose := flag.Bool("verbose", true, "Log phase progress")
	flag.Parse()

	logger := log.New(os.Stderr, "[ensemble] ", log.LstdFlags)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	applyStorageFlags(&cfg.Storage, *backendName, *postgresDSN, *clickhouseDSN, *sqlitePath)
	if *outputDir != "" {
		cfg.Report.OutputDir = *outputDir
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *metricsAddr != "" {
		go func() {
			logger.Printf("Serving metrics on %s/metrics", *metricsAddr)
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("metrics server: %v", err)
			}
		}()
	}

	stores, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("open %s storage: %v", cfg.Storage.Backend, err)
	}
	defer stores.Close()

	orch := orchestrator.New(orchestrator.Options{
		Config:        cfg,
		RunStore:      stores.Runs,
		TimestepStore: stores.Timesteps,
		SweepStore:    stores.Sweeps,
		StatsStore:    stores.Stats,
		ProgressStore: stores.Progress,
		Workers:       *workers,
		Verbose:       *verbose,
		Logger:        logger,
	})

	start := time.Now()
	result, err := orch.Run(ctx)
	if err != nil {
		logger.Fatalf("experiment %s: %v", cfg.ExperimentID, err)
	}

	files, err := writeArtifacts(cfg.Report.OutputDir, result)
	if err != nil {
		logger.Fatalf("write artifacts: %v", err)
	}

	fmt.Printf("Experiment %s finished in %v (%d runs executed, %d resumed)\n",
		result.ExperimentID, time.Since(start).Round(time.Millisecond), result.RunsExecuted, result.RunsSkipped)
	for _, f := range files {
		fmt.Printf("  - %s\n", f)
	}
}

// applyStorageFlags overrides the file's storage section with non-empty flags.
func applyStorageFlags(s *config.StorageConfig, backendName, postgresDSN, clickhouseDSN, sqlitePath string) {
	if backendName != "" {
		s.Backend = backendName
	}
	if postgresDSN != "" {
		s.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		s.ClickHouseDSN = clickhouseDSN
	}
	if sqlitePath != "" {
		s.SQLitePath = sqlitePath
	}
}

// writeArtifacts writes the report, claims and CSVs and returns their paths.
func writeArtifacts(dir string, result *orchestrator.RunResult) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	contents := map[string]string{
		"REPORT.md":       result.ReportMarkdown,
		"CLAIMS.md":       result.ClaimsMarkdown,
		"GROUP_STATS.csv": result.StatsCSV,
	}
	for name, csv := range result.SweepCSV {
		contents["SWEEP_"+name+".csv"] = csv
	}

	names := make([]string, 0, len(contents))
	for name := range contents {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(contents[name]), 0644); err != nil {
			return nil, fmt.Errorf("write %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
