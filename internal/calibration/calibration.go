// Package calibration loads the externally sourced model constants. They
// are read once and never recomputed.
package calibration

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"meshnet-sim/internal/domain"
)

// ErrMissingField is returned when a required constant is absent.
var ErrMissingField = errors.New("missing calibration field")

// file mirrors domain.Calibration with pointers so absent keys are detectable.
type file struct {
	Source             string   `yaml:"source"`
	OUKappa            *float64 `yaml:"ou_kappa"`
	OUSigma            *float64 `yaml:"ou_sigma"`
	S2RL               *float64 `yaml:"s2r_logistic_l"`
	S2RK               *float64 `yaml:"s2r_logistic_k"`
	S2RT0              *float64 `yaml:"s2r_logistic_t0"`
	BenchmarkGini      *float64 `yaml:"benchmark_gini"`
	BenchmarkTop1Share *float64 `yaml:"benchmark_top1_share"`
}

// Load reads and validates a calibration file.
func Load(path string) (domain.Calibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.Calibration{}, fmt.Errorf("read calibration: %w", err)
	}
	cal, err := Parse(raw)
	if err != nil {
		return domain.Calibration{}, fmt.Errorf("calibration %s: %w", path, err)
	}
	if cal.Source == "" {
		cal.Source = path
	}
	return cal, nil
}

// Parse decodes calibration YAML. Every numeric constant is required.
func Parse(raw []byte) (domain.Calibration, error) {
	var f file
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return domain.Calibration{}, fmt.Errorf("parse calibration: %w", err)
	}

	cal := domain.Calibration{Source: f.Source}
	fields := []struct {
		name string
		src  *float64
		dst  *float64
	}{
		{"ou_kappa", f.OUKappa, &cal.OUKappa},
		{"ou_sigma", f.OUSigma, &cal.OUSigma},
		{"s2r_logistic_l", f.S2RL, &cal.S2RL},
		{"s2r_logistic_k", f.S2RK, &cal.S2RK},
		{"s2r_logistic_t0", f.S2RT0, &cal.S2RT0},
		{"benchmark_gini", f.BenchmarkGini, &cal.BenchmarkGini},
		{"benchmark_top1_share", f.BenchmarkTop1Share, &cal.BenchmarkTop1Share},
	}
	for _, fld := range fields {
		if fld.src == nil {
			return domain.Calibration{}, fmt.Errorf("%w: %s", ErrMissingField, fld.name)
		}
		*fld.dst = *fld.src
	}

	if err := cal.Validate(); err != nil {
		return domain.Calibration{}, err
	}
	return cal, nil
}
