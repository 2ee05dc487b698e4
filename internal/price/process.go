// Package price implements the Ornstein-Uhlenbeck log-price process anchored
// to a fee-derived fundamental value.
package price

import (
	"math"

	"meshnet-sim/internal/domain"
)

// Numerical floors. These are guards, not model parameters.
const (
	minCirculating = 1.0   // denominator floor for the fundamental
	minLogInput    = 0.001 // log() input floor
)

// Process parameters. Kappa and Sigma are calibrated constants.
type Process struct {
	Kappa       float64 // annual mean-reversion speed
	Sigma       float64 // daily log volatility
	ScaleFactor float64 // fundamental scale
	Floor       float64 // fundamental lower clamp
	Ceiling     float64 // fundamental upper clamp
	MinPrice    float64 // price is floored here after exponentiation
}

// NewProcess builds the process from calibration constants.
func NewProcess(cal domain.Calibration) *Process {
	return &Process{
		Kappa:       cal.OUKappa,
		Sigma:       cal.OUSigma,
		ScaleFactor: 1000,
		Floor:       0.01,
		Ceiling:     10.0,
		MinPrice:    0.001,
	}
}

// Fundamental is the annualized-fee value per circulating token, clamped.
func (p *Process) Fundamental(dailyFee, circulating float64) float64 {
	f := dailyFee * 365 / math.Max(circulating, minCirculating) * p.ScaleFactor
	return math.Max(p.Floor, math.Min(p.Ceiling, f))
}

// Step advances the price one day. dW is a standard normal draw.
func (p *Process) Step(price, dailyFee, circulating, drift, dW float64) float64 {
	logP := math.Log(math.Max(price, minLogInput))
	logF := math.Log(math.Max(p.Fundamental(dailyFee, circulating), minLogInput))

	next := logP + p.Kappa/365*(logF-logP) + p.Sigma*dW + drift
	return math.Max(p.MinPrice, math.Exp(next))
}
