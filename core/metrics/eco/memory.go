package eco

import (
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[time.Time]*Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[time.Time]*Record{}}
}

func (s *MemoryStore) Add(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	days := s.data[r.TruckID]
	if days == nil {
		days = map[time.Time]*Record{}
		s.data[r.TruckID] = days
	}
	d := Day(r.Date)
	rec := days[d]
	if rec == nil {
		rec = &Record{TruckID: r.TruckID, Date: d}
		days[d] = rec
	}
	rec.DistanceKm += r.DistanceKm
	rec.CO2Kg += r.CO2Kg
	rec.Pickups += r.Pickups
	return nil
}

// Query returns records between start and end inclusive, oldest first.
func (s *MemoryStore) Query(truckID string, start, end time.Time) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	start, end = Day(start), Day(end)
	var res []Record
	for d, r := range s.data[truckID] {
		if d.Before(start) || d.After(end) {
			continue
		}
		res = append(res, *r)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Date.Before(res[j].Date) })
	return res, nil
}
