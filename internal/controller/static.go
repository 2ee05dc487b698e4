package controller

import (
	"math"

	"meshnet-sim/internal/domain"
)

// Static is the open-loop baseline: base * decay^(t/365). It ignores the
// node count and keeps no state beyond its parameters.
type Static struct {
	base  float64
	decay float64
}

// NewStatic creates the baseline policy. cfg must already be validated.
func NewStatic(cfg domain.ControllerConfig) *Static {
	return &Static{base: cfg.BaseEmission, decay: cfg.StaticDecay}
}

// Kind returns domain.ControllerStatic.
func (s *Static) Kind() domain.ControllerKind {
	return domain.ControllerStatic
}

// Evaluate returns the emission rate for timestep t.
func (s *Static) Evaluate(_ int, t int) float64 {
	return s.base * math.Pow(s.decay, float64(t)/365)
}
