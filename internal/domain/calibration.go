package domain

import "fmt"

// Calibration holds externally sourced constants. They are supplied once and
// never recomputed by the simulator.
type Calibration struct {
	OUKappa float64 `yaml:"ou_kappa" json:"ou_kappa"` // annual mean-reversion speed
	OUSigma float64 `yaml:"ou_sigma" json:"ou_sigma"` // daily log-price volatility

	// Logistic S2R (burn-mint) benchmark curve: L / (1 + exp(-k (month - t0))).
	S2RL  float64 `yaml:"s2r_logistic_l" json:"s2r_logistic_l"`
	S2RK  float64 `yaml:"s2r_logistic_k" json:"s2r_logistic_k"`
	S2RT0 float64 `yaml:"s2r_logistic_t0" json:"s2r_logistic_t0"`

	// Governance concentration benchmarks from comparable networks.
	BenchmarkGini      float64 `yaml:"benchmark_gini" json:"benchmark_gini"`
	BenchmarkTop1Share float64 `yaml:"benchmark_top1_share" json:"benchmark_top1_share"`

	Source string `yaml:"source" json:"source"` // provenance note
}

// DefaultCalibration returns the constants used when no file is supplied.
func DefaultCalibration() Calibration {
	return Calibration{
		OUKappa:            2.8,
		OUSigma:            0.049,
		S2RL:               1.5,
		S2RK:               0.7,
		S2RT0:              28.0,
		BenchmarkGini:      0.85,
		BenchmarkTop1Share: 0.30,
		Source:             "built-in defaults",
	}
}

// Validate checks calibration values are usable.
func (c Calibration) Validate() error {
	if c.OUKappa < 0 {
		return fmt.Errorf("%w: ou_kappa must be non-negative", ErrInvalidConfig)
	}
	if c.OUSigma < 0 {
		return fmt.Errorf("%w: ou_sigma must be non-negative", ErrInvalidConfig)
	}
	if c.S2RL <= 0 || c.S2RK <= 0 {
		return fmt.Errorf("%w: S2R logistic L and k must be positive", ErrInvalidConfig)
	}
	return nil
}
