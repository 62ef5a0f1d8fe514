package planstore

import (
	"context"
	"sync"
)

type planKey struct{ experiment, truck string }

// MemoryStore keeps everything in process.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[planKey]PlanRecord
	parts map[string][]PartitionSummary
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{plans: make(map[planKey]PlanRecord), parts: make(map[string][]PartitionSummary)}
}

func (s *MemoryStore) SavePlan(_ context.Context, rec PlanRecord) error {
	s.mu.Lock()
	s.plans[planKey{rec.ExperimentID, rec.TruckID}] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) LoadPlan(_ context.Context, experimentID, truckID string) (PlanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.plans[planKey{experimentID, truckID}]
	if !ok {
		return PlanRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) SavePartitions(_ context.Context, parts []PartitionSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range parts {
		s.parts[p.ExperimentID] = append(s.parts[p.ExperimentID], p)
	}
	return nil
}

func (s *MemoryStore) ListPartitions(_ context.Context, experimentID string) ([]PartitionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]PartitionSummary(nil), s.parts[experimentID]...), nil
}

func (s *MemoryStore) Delete(_ context.Context, experimentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.plans {
		if k.experiment == experimentID {
			delete(s.plans, k)
		}
	}
	delete(s.parts, experimentID)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
