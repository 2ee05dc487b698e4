package decision

import (
	"errors"
	"fmt"

	"meshnet-sim/internal/domain"
)

// ErrMissingGroup is returned when the statistics lack a required
// (scenario, controller, metric) row.
var ErrMissingGroup = errors.New("missing group statistics")

// Builder constructs claim inputs from stored group statistics.
type Builder struct {
	index map[statKey]*domain.GroupStats
}

type statKey struct {
	scenario   string
	controller domain.ControllerKind
	metric     string
}

// NewBuilder indexes the statistics of one experiment.
func NewBuilder(stats []*domain.GroupStats) *Builder {
	idx := make(map[statKey]*domain.GroupStats, len(stats))
	for _, s := range stats {
		idx[statKey{s.Scenario, s.Controller, s.Metric}] = s
	}
	return &Builder{index: idx}
}

func (b *Builder) get(scenario string, kind domain.ControllerKind, metric string) (*domain.GroupStats, error) {
	s, ok := b.index[statKey{scenario, kind, metric}]
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s %s", ErrMissingGroup, scenario, kind, metric)
	}
	return s, nil
}

// HasScenario reports whether both policies were run for scenario.
func (b *Builder) HasScenario(scenario string) bool {
	_, errPID := b.get(scenario, domain.ControllerPID, domain.MetricFinalNodes)
	_, errStatic := b.get(scenario, domain.ControllerStatic, domain.MetricFinalNodes)
	return errPID == nil && errStatic == nil
}

// BuildVariance reads terminal node count dispersion for both policies.
func (b *Builder) BuildVariance(scenario string) (*VarianceInput, error) {
	pid, err := b.get(scenario, domain.ControllerPID, domain.MetricFinalNodes)
	if err != nil {
		return nil, err
	}
	static, err := b.get(scenario, domain.ControllerStatic, domain.MetricFinalNodes)
	if err != nil {
		return nil, err
	}
	return &VarianceInput{
		Scenario:   scenario,
		Seeds:      min(pid.Samples, static.Samples),
		PIDCV:      pid.CV,
		StaticCV:   static.CV,
		PIDMean:    pid.Mean,
		StaticMean: static.Mean,
	}, nil
}

// BuildWindup reads mean deviation and total emission for both policies.
func (b *Builder) BuildWindup(scenario string) (*WindupInput, error) {
	dev, err := b.get(scenario, domain.ControllerPID, domain.MetricDeviation)
	if err != nil {
		return nil, err
	}
	pidE, err := b.get(scenario, domain.ControllerPID, domain.MetricTotalEmission)
	if err != nil {
		return nil, err
	}
	staticE, err := b.get(scenario, domain.ControllerStatic, domain.MetricTotalEmission)
	if err != nil {
		return nil, err
	}
	return &WindupInput{
		Scenario:       scenario,
		PIDDeviation:   dev.Mean,
		PIDEmission:    pidE.Mean,
		StaticEmission: staticE.Mean,
	}, nil
}
