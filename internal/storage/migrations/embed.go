// Package migrations applies the embedded schema files of each backend.
// Files run in name order; every statement is idempotent so a migration
// set can be applied on each start.
package migrations

import "embed"

var (
	// PostgresFS holds run_summaries, sweep_records, group_stats and progress.
	//
	//go:embed postgres/*.sql
	PostgresFS embed.FS

	// ClickhouseFS holds timestep_records.
	//
	//go:embed clickhouse/*.sql
	ClickhouseFS embed.FS

	// SQLiteFS mirrors the Postgres tables for the single-file backend.
	//
	//go:embed sqlite/*.sql
	SQLiteFS embed.FS
)
