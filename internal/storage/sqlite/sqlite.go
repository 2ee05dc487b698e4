// Package sqlite is a single-file store for run summaries, sweep rows,
// group statistics and experiment progress,
// for machines without a Postgres server.
package sqlite

import (
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // SQLite driver

	"meshnet-sim/internal/observability"
)

// DB wraps a SQLite connection.
type DB struct {
	*sqlx.DB
}

// Open opens or creates a SQLite database at path. Use ":memory:" for a
// private in-memory database. Schema is applied by migrations.RunSQLiteMigrations.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Single writer; also keeps ":memory:" on one connection.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &DB{DB: conn}, nil
}

// isDuplicateKeyError reports a primary key or unique constraint failure.
func isDuplicateKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func observe(operation string, start time.Time, err error) {
	observability.RecordDBQuery("sqlite", operation, time.Since(start).Seconds(), err)
}
