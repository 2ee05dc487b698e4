package domain

import (
	"fmt"
	"math"
)

// ControllerKind selects the emission policy.
type ControllerKind string

// Controller kinds.
const (
	ControllerPID    ControllerKind = "pid"
	ControllerStatic ControllerKind = "static"
)

// ControllerConfig holds emission policy parameters. Immutable per run.
// Gains are fractions of base emission per unit of normalized error.
type ControllerConfig struct {
	Kind          ControllerKind `yaml:"kind" json:"kind"`
	TargetNodes   int            `yaml:"target_nodes" json:"target_nodes"`     // N*
	BaseEmission  float64        `yaml:"base_emission" json:"base_emission"`   // tokens/day
	Kp            float64        `yaml:"kp" json:"kp"`                         // proportional gain
	Ki            float64        `yaml:"ki" json:"ki"`                         // integral gain
	Kd            float64        `yaml:"kd" json:"kd"`                         // derivative gain
	CadenceDays   int            `yaml:"cadence_days" json:"cadence_days"`     // PID evaluation period
	IntegralClamp float64        `yaml:"integral_clamp" json:"integral_clamp"` // |I| bound
	FloorMult     float64        `yaml:"floor_mult" json:"floor_mult"`         // output floor x base
	CeilingMult   float64        `yaml:"ceiling_mult" json:"ceiling_mult"`     // output ceiling x base
	StaticDecay   float64        `yaml:"static_decay" json:"static_decay"`     // static policy yearly decay
}

// IntegralUnclamped disables the anti-windup clamp while staying finite so
// the config still serializes.
const IntegralUnclamped = math.MaxFloat64

// DefaultControllerConfig returns the reference PID configuration.
func DefaultControllerConfig() ControllerConfig {
	return ControllerConfig{
		Kind:          ControllerPID,
		TargetNodes:   10_000,
		BaseEmission:  109_589,
		Kp:            0.8,
		Ki:            0.15,
		Kd:            0.2,
		CadenceDays:   14,
		IntegralClamp: 5.0,
		FloorMult:     0.25,
		CeilingMult:   3.0,
		StaticDecay:   0.95,
	}
}

// WithKind returns a copy of c using the given policy.
func (c ControllerConfig) WithKind(kind ControllerKind) ControllerConfig {
	c.Kind = kind
	return c
}

// Floor returns the absolute emission floor in tokens/day.
func (c ControllerConfig) Floor() float64 {
	return c.FloorMult * c.BaseEmission
}

// Ceiling returns the absolute emission ceiling in tokens/day.
func (c ControllerConfig) Ceiling() float64 {
	return c.CeilingMult * c.BaseEmission
}

// Validate rejects degenerate controller configurations.
func (c ControllerConfig) Validate() error {
	if c.TargetNodes <= 0 {
		return fmt.Errorf("%w: target node count must be positive, got %d", ErrInvalidConfig, c.TargetNodes)
	}
	if c.BaseEmission <= 0 {
		return fmt.Errorf("%w: base emission must be positive", ErrInvalidConfig)
	}
	switch c.Kind {
	case ControllerPID:
		if c.Kp < 0 || c.Ki < 0 || c.Kd < 0 {
			return fmt.Errorf("%w: gains must be non-negative (kp=%.3f ki=%.3f kd=%.3f)", ErrInvalidConfig, c.Kp, c.Ki, c.Kd)
		}
		if c.Kp == 0 && c.Ki == 0 && c.Kd == 0 {
			return fmt.Errorf("%w: all gains are zero", ErrInvalidConfig)
		}
		if anyNaN(c.Kp, c.Ki, c.Kd) {
			return fmt.Errorf("%w: gain is NaN", ErrInvalidConfig)
		}
		if c.CadenceDays <= 0 {
			return fmt.Errorf("%w: cadence must be positive, got %d", ErrInvalidConfig, c.CadenceDays)
		}
		if !(c.IntegralClamp > 0) || math.IsInf(c.IntegralClamp, 0) {
			return fmt.Errorf("%w: integral clamp must be positive and finite", ErrInvalidConfig)
		}
		if c.FloorMult < 0 || c.CeilingMult <= 0 || c.FloorMult > c.CeilingMult {
			return fmt.Errorf("%w: bounds must satisfy 0 <= floor (%.2f) <= ceiling (%.2f)", ErrInvalidConfig, c.FloorMult, c.CeilingMult)
		}
		if math.IsInf(c.CeilingMult, 0) {
			return fmt.Errorf("%w: ceiling must be finite", ErrInvalidConfig)
		}
	case ControllerStatic:
		if c.StaticDecay <= 0 || c.StaticDecay > 1 {
			return fmt.Errorf("%w: static decay must be in (0, 1], got %.3f", ErrInvalidConfig, c.StaticDecay)
		}
	default:
		return fmt.Errorf("%w: unknown controller kind %q", ErrInvalidConfig, c.Kind)
	}
	return nil
}

func anyNaN(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}
