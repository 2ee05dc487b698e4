package memory

import (
	"context"
	"sort"
	"sync"

	"meshnet-sim/internal/storage"
)

// ProgressStore is an in-memory implementation of storage.ExperimentProgressStore.
type ProgressStore struct {
	mu        sync.RWMutex
	progress  map[string]*storage.ExperimentProgress
	completed map[string]map[string]bool // experiment -> run -> done
}

// NewProgressStore creates a new in-memory experiment progress store.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		progress:  make(map[string]*storage.ExperimentProgress),
		completed: make(map[string]map[string]bool),
	}
}

// GetProgress returns the last saved progress of an experiment.
func (s *ProgressStore) GetProgress(_ context.Context, experimentID string) (*storage.ExperimentProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.progress[experimentID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	c := *p
	return &c, nil
}

// SetProgress saves the progress of an experiment.
func (s *ProgressStore) SetProgress(_ context.Context, progress *storage.ExperimentProgress) error {
	if progress == nil || progress.ExperimentID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := *progress
	s.progress[progress.ExperimentID] = &c
	return nil
}

// IsRunCompleted checks if a run has been persisted.
func (s *ProgressStore) IsRunCompleted(_ context.Context, experimentID, runID string) (bool, error) {
	if experimentID == "" || runID == "" {
		return false, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.completed[experimentID][runID], nil
}

// MarkRunCompleted records that a run has been persisted.
func (s *ProgressStore) MarkRunCompleted(_ context.Context, experimentID, runID string) error {
	if experimentID == "" || runID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, ok := s.completed[experimentID]
	if !ok {
		runs = make(map[string]bool)
		s.completed[experimentID] = runs
	}
	runs[runID] = true
	return nil
}

// LoadCompletedRuns returns all completed run IDs of an experiment.
func (s *ProgressStore) LoadCompletedRuns(_ context.Context, experimentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]string, 0, len(s.completed[experimentID]))
	for id := range s.completed[experimentID] {
		runs = append(runs, id)
	}
	sort.Strings(runs)
	return runs, nil
}

var _ storage.ExperimentProgressStore = (*ProgressStore)(nil)
