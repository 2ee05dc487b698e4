package controller

import (
	"math"

	"meshnet-sim/internal/domain"
)

// PID is the closed-loop emission controller.
//
// Error is normalized, e = (N* - N) / N*, so gains are scale-free. The
// integral is clamped to [-IntegralClamp, +IntegralClamp] before the output
// is computed. The derivative is the difference between consecutive
// evaluations, not consecutive timesteps. Between evaluations the last
// output is held.
type PID struct {
	cfg domain.ControllerConfig

	integral    float64
	prevError   float64
	output      float64
	evaluations int
	adjustments int
}

// NewPID creates a PID controller. cfg must already be validated.
func NewPID(cfg domain.ControllerConfig) *PID {
	return &PID{
		cfg:    cfg,
		output: cfg.BaseEmission,
	}
}

// Kind returns domain.ControllerPID.
func (p *PID) Kind() domain.ControllerKind {
	return domain.ControllerPID
}

// Evaluate returns the emission rate for timestep t.
func (p *PID) Evaluate(activeNodes, t int) float64 {
	if t%p.cfg.CadenceDays != 0 {
		return p.output
	}

	target := float64(p.cfg.TargetNodes)
	e := (target - float64(activeNodes)) / target

	p.integral = clamp(p.integral+e, -p.cfg.IntegralClamp, p.cfg.IntegralClamp)
	d := e - p.prevError
	p.prevError = e

	raw := p.cfg.BaseEmission * (1 + p.cfg.Kp*e + p.cfg.Ki*p.integral + p.cfg.Kd*d)
	p.evaluations++
	if math.IsNaN(raw) {
		return p.output
	}

	next := clamp(raw, p.cfg.Floor(), p.cfg.Ceiling())
	if next != p.output {
		p.adjustments++
	}
	p.output = next
	return p.output
}

// Integral returns the current normalized integral accumulator.
func (p *PID) Integral() float64 {
	return p.integral
}

// PrevError returns the normalized error of the last evaluation.
func (p *PID) PrevError() float64 {
	return p.prevError
}

// Evaluations returns how many cadence evaluations have run.
func (p *PID) Evaluations() int {
	return p.evaluations
}

// Adjustments returns how many evaluations changed the output.
func (p *PID) Adjustments() int {
	return p.adjustments
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
