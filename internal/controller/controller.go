// Package controller implements the emission policies: a PID loop on the
// active node count and a static exponential-decay baseline.
package controller

import (
	"fmt"

	"meshnet-sim/internal/domain"
)

// Controller produces the daily emission rate.
type Controller interface {
	// Evaluate returns the emission for timestep t given the active node count.
	Evaluate(activeNodes, t int) float64
	// Kind identifies the policy.
	Kind() domain.ControllerKind
}

// New builds the controller selected by cfg.Kind. Configuration errors are
// returned before any evaluation happens.
func New(cfg domain.ControllerConfig) (Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller config: %w", err)
	}
	switch cfg.Kind {
	case domain.ControllerPID:
		return NewPID(cfg), nil
	case domain.ControllerStatic:
		return NewStatic(cfg), nil
	}
	return nil, fmt.Errorf("%w: unknown controller kind %q", domain.ErrInvalidConfig, cfg.Kind)
}
