package planstore

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"sync"
)

// entry is one line of the JSONL file.
type entry struct {
	Kind      string            `json:"kind"`
	Plan      *PlanRecord       `json:"plan,omitempty"`
	Partition *PartitionSummary `json:"partition,omitempty"`
	Deleted   string            `json:"deleted,omitempty"`
}

// JSONLStore appends every write to a JSON lines file. Reads replay the file
// so the last write for a key wins.
type JSONLStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONLStore creates the file if it does not exist.
func NewJSONLStore(path string) (*JSONLStore, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	if cerr := f.Close(); cerr != nil {
		return nil, cerr
	}
	return &JSONLStore{path: path}, nil
}

func (s *JSONLStore) append(entries ...entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	enc := json.NewEncoder(f)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONLStore) replay(fn func(entry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var e entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		fn(e)
	}
	return scanner.Err()
}

func (s *JSONLStore) SavePlan(_ context.Context, rec PlanRecord) error {
	return s.append(entry{Kind: "plan", Plan: &rec})
}

func (s *JSONLStore) LoadPlan(_ context.Context, experimentID, truckID string) (PlanRecord, error) {
	var found *PlanRecord
	err := s.replay(func(e entry) {
		switch {
		case e.Kind == "delete" && e.Deleted == experimentID:
			found = nil
		case e.Kind == "plan" && e.Plan != nil && e.Plan.ExperimentID == experimentID && e.Plan.TruckID == truckID:
			found = e.Plan
		}
	})
	if err != nil {
		return PlanRecord{}, err
	}
	if found == nil {
		return PlanRecord{}, ErrNotFound
	}
	return *found, nil
}

func (s *JSONLStore) SavePartitions(_ context.Context, parts []PartitionSummary) error {
	entries := make([]entry, len(parts))
	for i := range parts {
		entries[i] = entry{Kind: "partition", Partition: &parts[i]}
	}
	return s.append(entries...)
}

func (s *JSONLStore) ListPartitions(_ context.Context, experimentID string) ([]PartitionSummary, error) {
	var out []PartitionSummary
	err := s.replay(func(e entry) {
		switch {
		case e.Kind == "delete" && e.Deleted == experimentID:
			out = nil
		case e.Kind == "partition" && e.Partition != nil && e.Partition.ExperimentID == experimentID:
			out = append(out, *e.Partition)
		}
	})
	return out, err
}

// Delete appends a tombstone for the experiment.
func (s *JSONLStore) Delete(_ context.Context, experimentID string) error {
	return s.append(entry{Kind: "delete", Deleted: experimentID})
}

func (s *JSONLStore) Close() error { return nil }
