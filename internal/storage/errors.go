package storage

import "errors"

// Run summaries, trajectories, sweep rows and group statistics are written
// once per key. Progress is the only record that is overwritten.
var (
	// ErrNotFound: no record for the requested experiment, run or group.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateKey: the key is already stored. Callers resuming an
	// experiment treat it as "already done".
	ErrDuplicateKey = errors.New("duplicate key: record already stored")

	// ErrInvalidInput: a record is missing its key fields.
	ErrInvalidInput = errors.New("invalid record")
)
