package memory

import (
	"context"
	"math"
	"sort"
	"sync"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// TimestepStore is an in-memory implementation of storage.TimestepStore.
type TimestepStore struct {
	mu   sync.RWMutex
	data map[string]map[int]*domain.TimestepRecord // run_id -> timestep -> record
}

// NewTimestepStore creates a new in-memory timestep store.
func NewTimestepStore() *TimestepStore {
	return &TimestepStore{
		data: make(map[string]map[int]*domain.TimestepRecord),
	}
}

// InsertBulk adds multiple records atomically. Fails entire batch on
// duplicate (run_id, timestep).
func (s *TimestepStore) InsertBulk(_ context.Context, records []*domain.TimestepRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	type key struct {
		run string
		t   int
	}
	batchKeys := make(map[key]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.RunID == "" || r.Timestep < 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.RunID][r.Timestep]; exists {
			return storage.ErrDuplicateKey
		}
		k := key{r.RunID, r.Timestep}
		if _, exists := batchKeys[k]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[k] = struct{}{}
	}

	for _, r := range records {
		run, ok := s.data[r.RunID]
		if !ok {
			run = make(map[int]*domain.TimestepRecord)
			s.data[r.RunID] = run
		}
		c := *r
		run[r.Timestep] = &c
	}
	return nil
}

// GetByRunID retrieves all records of a run, ordered by timestep ASC.
func (s *TimestepStore) GetByRunID(ctx context.Context, runID string) ([]*domain.TimestepRecord, error) {
	return s.GetByRange(ctx, runID, 0, math.MaxInt)
}

// GetByRange retrieves records of a run within [start, end].
func (s *TimestepStore) GetByRange(_ context.Context, runID string, start, end int) ([]*domain.TimestepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.TimestepRecord
	for t, r := range s.data[runID] {
		if t >= start && t <= end {
			c := *r
			result = append(result, &c)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestep < result[j].Timestep
	})
	return result, nil
}

var _ storage.TimestepStore = (*TimestepStore)(nil)
