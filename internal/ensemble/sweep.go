package ensemble

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/idhash"
	"meshnet-sim/internal/metrics"
	"meshnet-sim/internal/observability"
)

// Sweep axis names.
const (
	AxisKp            = "kp"
	AxisKi            = "ki"
	AxisKd            = "kd"
	AxisSlashDowntime = "slash_downtime"
	AxisSlashFraud    = "slash_fraud"
	AxisCadence       = "cadence"
	AxisCatchRate     = "catch_rate"
)

// AxisNames lists the recognized sweep axes.
var AxisNames = []string{AxisKp, AxisKi, AxisKd, AxisSlashDowntime, AxisSlashFraud, AxisCadence, AxisCatchRate}

// Axis is one swept parameter.
type Axis struct {
	Name   string    `yaml:"name" json:"name"`
	Values []float64 `yaml:"values" json:"values"`
}

// ApplyAxis sets the named parameter on cfg.
func ApplyAxis(cfg *domain.RunConfig, name string, v float64) error {
	switch name {
	case AxisKp:
		cfg.Controller.Kp = v
	case AxisKi:
		cfg.Controller.Ki = v
	case AxisKd:
		cfg.Controller.Kd = v
	case AxisCadence:
		if v != float64(int(v)) {
			return fmt.Errorf("%w: cadence must be a whole number of days, got %v", domain.ErrInvalidConfig, v)
		}
		cfg.Controller.CadenceDays = int(v)
	case AxisSlashDowntime:
		cfg.Economy.SlashDowntime = v
	case AxisSlashFraud:
		cfg.Economy.SlashFraud = v
	case AxisCatchRate:
		cfg.Economy.CatchRate = v
	default:
		return fmt.Errorf("%w: unknown sweep axis %q", domain.ErrInvalidConfig, name)
	}
	return nil
}

// SweepSpec describes a sensitivity sweep: the Cartesian product of all
// axis values x scenarios x seeds, on top of Base.
type SweepSpec struct {
	Experiment string
	Axes       []Axis
	Scenarios  []domain.ScenarioConfig
	Seeds      []int64
	Base       domain.RunConfig
	Threshold  float64 // rank stability threshold; 0 uses metrics.DefaultStabilityThreshold
}

// ID returns the deterministic sweep ID.
func (s SweepSpec) ID() string {
	names := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		names[i] = a.Name
	}
	return idhash.ComputeSweepID(s.Experiment, strings.Join(names, ","), s.Base.Fingerprint())
}

// points enumerates every combination of axis values in axis order.
func (s SweepSpec) points() []map[string]float64 {
	points := []map[string]float64{{}}
	for _, axis := range s.Axes {
		next := make([]map[string]float64, 0, len(points)*len(axis.Values))
		for _, p := range points {
			for _, v := range axis.Values {
				q := make(map[string]float64, len(p)+1)
				for k, x := range p {
					q[k] = x
				}
				q[axis.Name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// pointLabel renders values in axis order, e.g. "ki=0.1,kd=0.2".
func (s SweepSpec) pointLabel(values map[string]float64) string {
	parts := make([]string, len(s.Axes))
	for i, a := range s.Axes {
		parts[i] = fmt.Sprintf("%s=%g", a.Name, values[a.Name])
	}
	return strings.Join(parts, ",")
}

// Validate expands the sweep and checks every run it would execute, so a
// bad axis fails before any simulation starts.
func (s SweepSpec) Validate() error {
	_, err := s.validJobs()
	return err
}

func (s SweepSpec) validJobs() ([]Job, error) {
	jobs, err := s.Jobs()
	if err != nil {
		return nil, err
	}
	if len(s.Axes) == 1 {
		distinct := make(map[float64]struct{}, len(s.Axes[0].Values))
		for _, v := range s.Axes[0].Values {
			distinct[v] = struct{}{}
		}
		if len(distinct) < 2 {
			return nil, fmt.Errorf("%w: axis %s needs at least two distinct values to rank",
				domain.ErrInvalidConfig, s.Axes[0].Name)
		}
	}
	for _, j := range jobs {
		if err := j.Config.Validate(); err != nil {
			return nil, fmt.Errorf("sweep point %s: %w", j.Point, err)
		}
	}
	return jobs, nil
}

// Jobs expands the sweep into runs.
func (s SweepSpec) Jobs() ([]Job, error) {
	if len(s.Axes) == 0 || len(s.Scenarios) == 0 || len(s.Seeds) == 0 {
		return nil, ErrNoRuns
	}
	for _, a := range s.Axes {
		if len(a.Values) == 0 {
			return nil, fmt.Errorf("%w: axis %s has no values", ErrNoRuns, a.Name)
		}
	}

	var jobs []Job
	for _, values := range s.points() {
		label := s.pointLabel(values)
		for _, sc := range s.Scenarios {
			for _, seed := range s.Seeds {
				cfg := s.Base
				cfg.Scenario = sc
				cfg.Seed = seed
				for _, a := range s.Axes {
					if err := ApplyAxis(&cfg, a.Name, values[a.Name]); err != nil {
						return nil, err
					}
				}
				jobs = append(jobs, Job{Config: cfg, Point: label, Values: values})
			}
		}
	}
	return jobs, nil
}

// SweepResult holds sweep rows and, for single-axis sweeps, the rank
// consistency of the axis values per scenario (score = terminal N).
type SweepResult struct {
	SweepID string
	Records []*domain.SweepRecord
	Ranks   []*metrics.RankConsistency
}

// Sweep runs a sensitivity sweep.
func (h *Harness) Sweep(ctx context.Context, spec SweepSpec) (*SweepResult, error) {
	jobs, err := spec.validJobs()
	if err != nil {
		return nil, err
	}
	runs, err := h.Run(ctx, jobs)
	if err != nil {
		return nil, err
	}

	id := spec.ID()
	out := &SweepResult{SweepID: id, Records: make([]*domain.SweepRecord, len(runs))}
	for i, r := range runs {
		out.Records[i] = domain.NewSweepRecord(id, jobs[i].Point, jobs[i].Values, r.Summary)
	}
	observability.RecordSweepPoints(len(out.Records))

	if len(spec.Axes) == 1 {
		threshold := spec.Threshold
		if threshold <= 0 {
			threshold = metrics.DefaultStabilityThreshold
		}
		out.Ranks, err = RankByScenario(spec.Axes[0].Name, out.Records, threshold)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RankByScenario computes rank consistency of one axis for every scenario
// in records, ordered by scenario name.
func RankByScenario(axis string, records []*domain.SweepRecord, threshold float64) ([]*metrics.RankConsistency, error) {
	byScenario := make(map[string][]metrics.Observation)
	for _, r := range records {
		v, ok := r.Values[axis]
		if !ok {
			continue
		}
		byScenario[r.Scenario] = append(byScenario[r.Scenario], metrics.Observation{
			Seed:  r.Seed,
			Value: v,
			Score: float64(r.FinalNodes),
		})
	}
	scenarios := make([]string, 0, len(byScenario))
	for s := range byScenario {
		scenarios = append(scenarios, s)
	}
	sort.Strings(scenarios)

	out := make([]*metrics.RankConsistency, 0, len(scenarios))
	for _, s := range scenarios {
		rc, err := metrics.ComputeRankConsistency(axis+"@"+s, byScenario[s], threshold)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}
