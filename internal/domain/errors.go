package domain

import "errors"

// ErrInvalidConfig is returned when a run, controller, or experiment
// configuration cannot produce a valid simulation.
var ErrInvalidConfig = errors.New("invalid configuration")
