package metrics

import (
	"context"
	"fmt"
	"sort"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// GroupKey identifies one (scenario, controller) ensemble group.
type GroupKey struct {
	Scenario   string
	Controller domain.ControllerKind
}

func (k GroupKey) String() string {
	return fmt.Sprintf("%s/%s", k.Scenario, k.Controller)
}

// GroupSummaries partitions summaries by (scenario, controller). Keys are
// returned sorted; summaries within a group keep input order.
func GroupSummaries(summaries []*domain.RunSummary) ([]GroupKey, map[GroupKey][]*domain.RunSummary) {
	groups := make(map[GroupKey][]*domain.RunSummary)
	for _, s := range summaries {
		k := GroupKey{Scenario: s.Scenario, Controller: s.Controller}
		groups[k] = append(groups[k], s)
	}
	keys := make([]GroupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Scenario != keys[j].Scenario {
			return keys[i].Scenario < keys[j].Scenario
		}
		return keys[i].Controller < keys[j].Controller
	})
	return keys, groups
}

// ComputeGroupStats computes one GroupStats row per (group, metric) in
// domain.GroupMetrics order. Groups are sorted by scenario, controller.
func ComputeGroupStats(experimentID string, summaries []*domain.RunSummary) ([]*domain.GroupStats, error) {
	if len(summaries) == 0 {
		return nil, ErrNoSamples
	}
	keys, groups := GroupSummaries(summaries)

	out := make([]*domain.GroupStats, 0, len(keys)*len(domain.GroupMetrics))
	for _, k := range keys {
		for _, metric := range domain.GroupMetrics {
			values := make([]float64, 0, len(groups[k]))
			for _, s := range groups[k] {
				v, ok := s.MetricValue(metric)
				if !ok {
					return nil, fmt.Errorf("unknown metric %q", metric)
				}
				values = append(values, v)
			}
			d, err := Describe(values)
			if err != nil {
				return nil, fmt.Errorf("group %s metric %s: %w", k, metric, err)
			}
			out = append(out, &domain.GroupStats{
				ExperimentID: experimentID,
				Scenario:     k.Scenario,
				Controller:   k.Controller,
				Metric:       metric,
				Samples:      d.Samples,
				Mean:         d.Mean,
				Std:          d.Std,
				P5:           d.P5,
				P50:          d.P50,
				P95:          d.P95,
				Min:          d.Min,
				Max:          d.Max,
				CV:           d.CV,
			})
		}
	}
	return out, nil
}

// Aggregator computes group statistics from stored run summaries.
type Aggregator struct {
	runStore   storage.RunSummaryStore
	statsStore storage.GroupStatsStore
}

// NewAggregator creates a new metrics aggregator.
func NewAggregator(runStore storage.RunSummaryStore, statsStore storage.GroupStatsStore) *Aggregator {
	return &Aggregator{
		runStore:   runStore,
		statsStore: statsStore,
	}
}

// ComputeExperiment loads every summary of an experiment and computes its
// group statistics. Returns ErrNoSamples if the experiment has no runs.
func (a *Aggregator) ComputeExperiment(ctx context.Context, experimentID string) ([]*domain.GroupStats, error) {
	summaries, err := a.runStore.GetByExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrNoSamples
	}
	return ComputeGroupStats(experimentID, summaries)
}

// ComputeAndStore computes and persists group statistics.
// Returns storage.ErrDuplicateKey if they already exist (append-only).
func (a *Aggregator) ComputeAndStore(ctx context.Context, experimentID string) ([]*domain.GroupStats, error) {
	stats, err := a.ComputeExperiment(ctx, experimentID)
	if err != nil {
		return nil, err
	}
	if err := a.statsStore.InsertBulk(ctx, stats); err != nil {
		return nil, err
	}
	return stats, nil
}
