package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"meshnet-sim/internal/domain"
	"meshnet-sim/internal/storage"
)

// SweepRecordStore is an in-memory implementation of storage.SweepRecordStore.
type SweepRecordStore struct {
	mu   sync.RWMutex
	data map[string]*domain.SweepRecord
}

// NewSweepRecordStore creates a new in-memory sweep record store.
func NewSweepRecordStore() *SweepRecordStore {
	return &SweepRecordStore{
		data: make(map[string]*domain.SweepRecord),
	}
}

func sweepKey(r *domain.SweepRecord) string {
	return fmt.Sprintf("%s|%s|%s|%d", r.SweepID, r.Point, r.Scenario, r.Seed)
}

// copySweepRecord copies r including its values map.
func copySweepRecord(r *domain.SweepRecord) *domain.SweepRecord {
	c := *r
	c.Values = make(map[string]float64, len(r.Values))
	for k, v := range r.Values {
		c.Values[k] = v
	}
	return &c
}

// InsertBulk adds multiple rows atomically. Fails entire batch on any duplicate.
func (s *SweepRecordStore) InsertBulk(_ context.Context, records []*domain.SweepRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(records))
	for _, r := range records {
		if r == nil || r.SweepID == "" || r.Point == "" || r.Scenario == "" {
			return storage.ErrInvalidInput
		}
		key := sweepKey(r)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range records {
		s.data[sweepKey(r)] = copySweepRecord(r)
	}
	return nil
}

// GetBySweepID retrieves all rows of a sweep, ordered by point, scenario, seed.
func (s *SweepRecordStore) GetBySweepID(_ context.Context, sweepID string) ([]*domain.SweepRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SweepRecord
	for _, r := range s.data {
		if r.SweepID == sweepID {
			result = append(result, copySweepRecord(r))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.Point != b.Point {
			return a.Point < b.Point
		}
		if a.Scenario != b.Scenario {
			return a.Scenario < b.Scenario
		}
		return a.Seed < b.Seed
	})
	return result, nil
}

var _ storage.SweepRecordStore = (*SweepRecordStore)(nil)
