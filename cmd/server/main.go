// Command server exposes the simulator over HTTP:
//   - POST /runs queues a run, GET /runs/{id} reports it
//   - GET /runs/{id}/stream follows its trajectory over a websocket
//   - GET /scenarios, /health and /metrics
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"meshnet-sim/internal/config"
	"meshnet-sim/internal/storage/backend"
)

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "Experiment YAML supplying run defaults (optional)")
	backendName := flag.String("backend", config.BackendMemory, "Storage backend (memory, postgres, sqlite)")
	postgresDSN := flag.String("postgres-dsn", os.Getenv(backend.EnvPostgresDSN), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv(backend.EnvClickHouseDSN), "ClickHouse connection string for trajectories")
	sqlitePath := flag.String("sqlite-path", os.Getenv(backend.EnvSQLitePath), "SQLite database file")
	maxConcurrent := flag.Int("max-concurrent", 4, "Runs executed at the same time")
	origins := flag.String("origins", "*", "Comma-separated allowed CORS origins")
	verbose := flag.Bool("verbose", false, "Log every job")
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags)

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}
	cfg.Storage.Backend = *backendName
	cfg.Storage.PostgresDSN = *postgresDSN
	cfg.Storage.ClickHouseDSN = *clickhouseDSN
	cfg.Storage.SQLitePath = *sqlitePath
	cfg.Storage.StoreTimesteps = *clickhouseDSN != ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stores, err := backend.Open(ctx, cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to open %s storage: %v", *backendName, err)
	}
	defer stores.Close()

	srv := NewServer(ctx, Options{
		Config:         cfg,
		RunStore:       stores.Runs,
		TimestepStore:  stores.Timesteps,
		MaxConcurrent:  *maxConcurrent,
		AllowedOrigins: splitList(*origins),
		Logger:         logger,
		Verbose:        *verbose,
	})
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Channel to signal completion
	done := make(chan struct{})

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown: %v", err)
		}

		// Wait for second signal for immediate shutdown
		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	logger.Printf("Listening on %s (%s storage)", *addr, stores.Backend)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("Server error: %v", err)
	}
	srv.Wait()
	close(done)

	logger.Println("Shutdown complete")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadEnvFile loads KEY=VALUE lines from .env without overriding the environment.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
