package memory

import (
	"context"
	"sort"
	"sync"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// RunSummaryStore is an in-memory implementation of storage.RunSummaryStore.
type RunSummaryStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RunSummary // keyed by experiment|run
}

// NewRunSummaryStore creates a new in-memory run summary store.
func NewRunSummaryStore() *RunSummaryStore {
	return &RunSummaryStore{
		data: make(map[string]*domain.RunSummary),
	}
}

func summaryKey(experimentID, runID string) string {
	return experimentID + "|" + runID
}

func validSummary(s *domain.RunSummary) bool {
	return s != nil && s.ExperimentID != "" && s.RunID != ""
}

// Insert adds a new summary. Returns ErrDuplicateKey if the key exists.
func (s *RunSummaryStore) Insert(_ context.Context, rs *domain.RunSummary) error {
	if !validSummary(rs) {
		return storage.ErrInvalidInput
	}
	key := summaryKey(rs.ExperimentID, rs.RunID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}
	c := *rs
	s.data[key] = &c
	return nil
}

// InsertBulk adds multiple summaries atomically. Fails entire batch on any duplicate.
func (s *RunSummaryStore) InsertBulk(_ context.Context, summaries []*domain.RunSummary) error {
	if len(summaries) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(summaries))
	for _, rs := range summaries {
		if !validSummary(rs) {
			return storage.ErrInvalidInput
		}
		key := summaryKey(rs.ExperimentID, rs.RunID)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, rs := range summaries {
		c := *rs
		s.data[summaryKey(rs.ExperimentID, rs.RunID)] = &c
	}
	return nil
}

// GetByID retrieves a summary by its key. Returns ErrNotFound if not exists.
func (s *RunSummaryStore) GetByID(_ context.Context, experimentID, runID string) (*domain.RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rs, exists := s.data[summaryKey(experimentID, runID)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	c := *rs
	return &c, nil
}

// GetByExperiment retrieves all summaries of an experiment.
func (s *RunSummaryStore) GetByExperiment(_ context.Context, experimentID string) ([]*domain.RunSummary, error) {
	return s.filter(func(rs *domain.RunSummary) bool {
		return rs.ExperimentID == experimentID
	}), nil
}

// GetByGroup retrieves the summaries of one (scenario, controller) group.
func (s *RunSummaryStore) GetByGroup(_ context.Context, experimentID, scenario string, controller domain.ControllerKind) ([]*domain.RunSummary, error) {
	return s.filter(func(rs *domain.RunSummary) bool {
		return rs.ExperimentID == experimentID && rs.Scenario == scenario && rs.Controller == controller
	}), nil
}

func (s *RunSummaryStore) filter(keep func(*domain.RunSummary) bool) []*domain.RunSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RunSummary
	for _, rs := range s.data {
		if keep(rs) {
			c := *rs
			result = append(result, &c)
		}
	}

	// Sort by scenario, controller, seed, run_id
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Scenario != b.Scenario {
			return a.Scenario < b.Scenario
		}
		if a.Controller != b.Controller {
			return a.Controller < b.Controller
		}
		if a.Seed != b.Seed {
			return a.Seed < b.Seed
		}
		return a.RunID < b.RunID
	})
	return result
}

var _ storage.RunSummaryStore = (*RunSummaryStore)(nil)
