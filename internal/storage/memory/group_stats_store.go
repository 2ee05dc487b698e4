package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// GroupStatsStore is an in-memory implementation of storage.GroupStatsStore.
type GroupStatsStore struct {
	mu   sync.RWMutex
	data map[string]*domain.GroupStats // keyed by composite key
}

// NewGroupStatsStore creates a new in-memory group statistics store.
func NewGroupStatsStore() *GroupStatsStore {
	return &GroupStatsStore{
		data: make(map[string]*domain.GroupStats),
	}
}

// statsKey generates a unique key for a stats row.
func statsKey(experimentID, scenario string, controller domain.ControllerKind, metric string) string {
	return fmt.Sprintf("%s|%s|%s|%s", experimentID, scenario, controller, metric)
}

// InsertBulk adds multiple stats atomically. Fails entire batch on any duplicate.
func (s *GroupStatsStore) InsertBulk(_ context.Context, stats []*domain.GroupStats) error {
	if len(stats) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(stats))

	for _, g := range stats {
		if g == nil || g.ExperimentID == "" || g.Scenario == "" || g.Controller == "" || g.Metric == "" {
			return storage.ErrInvalidInput
		}
		key := statsKey(g.ExperimentID, g.Scenario, g.Controller, g.Metric)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, g := range stats {
		c := *g
		s.data[statsKey(g.ExperimentID, g.Scenario, g.Controller, g.Metric)] = &c
	}
	return nil
}

// GetByKey retrieves one row by its composite key. Returns ErrNotFound if not exists.
func (s *GroupStatsStore) GetByKey(_ context.Context, experimentID, scenario string, controller domain.ControllerKind, metric string) (*domain.GroupStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, exists := s.data[statsKey(experimentID, scenario, controller, metric)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := *g
	return &c, nil
}

// GetByExperiment retrieves all rows of an experiment.
func (s *GroupStatsStore) GetByExperiment(_ context.Context, experimentID string) ([]*domain.GroupStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.GroupStats
	for _, g := range s.data {
		if g.ExperimentID == experimentID {
			c := *g
			result = append(result, &c)
		}
	}

	// Sort by scenario, controller, metric
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Scenario != b.Scenario {
			return a.Scenario < b.Scenario
		}
		if a.Controller != b.Controller {
			return a.Controller < b.Controller
		}
		return a.Metric < b.Metric
	})
	return result, nil
}

var _ storage.GroupStatsStore = (*GroupStatsStore)(nil)
