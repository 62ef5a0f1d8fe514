// Package vehiclestatus keeps the latest known state of every truck. The
// memory store is fed as a metrics sink and read by the status API.
package vehiclestatus

import (
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/metrics"
)

// LastPlan summarizes the most recent plan assigned to a truck.
type LastPlan struct {
	Steps     int       `json:"steps"`
	Bookings  int       `json:"bookings"`
	Replayed  bool      `json:"replayed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Status captures the current known state of a truck.
type Status struct {
	TruckID        string       `json:"truck_id"`
	FleetID        string       `json:"fleet_id,omitempty"`
	ExperimentID   string       `json:"experiment_id"`
	CurrentStatus  string       `json:"current_status"`
	Position       geo.Position `json:"position"`
	DistanceMeters float64      `json:"distance_meters"`
	CO2Kg          float64      `json:"co2_kg"`
	Cargo          int          `json:"cargo"`
	Queue          int          `json:"queue"`
	Delivered      int          `json:"delivered"`
	LastPlan       *LastPlan    `json:"last_plan,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

type Filter struct {
	FleetID string
	Status  string
}

type Store interface {
	List(Filter) []Status
	Get(truckID string) (Status, bool)
}

// MemoryStore implements Store, metrics.MetricsSink and metrics.PlanRecorder.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]Status
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]Status{}}
}

func (s *MemoryStore) RecordVehicleState(ev metrics.VehicleStateEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[ev.TruckID]
	st.TruckID = ev.TruckID
	st.ExperimentID = ev.ExperimentID
	if ev.FleetID != "" {
		st.FleetID = ev.FleetID
	}
	st.CurrentStatus = ev.Status
	st.Position = ev.Position
	st.DistanceMeters = ev.DistanceMeters
	st.CO2Kg = ev.CO2Kg
	st.Cargo = ev.Cargo
	st.Queue = ev.Queue
	st.Delivered = ev.Delivered
	st.UpdatedAt = ev.Time
	s.data[ev.TruckID] = st
	return nil
}

func (s *MemoryStore) RecordPlan(ev metrics.PlanEvent) error {
	if ev.TruckID == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.data[ev.TruckID]
	st.TruckID = ev.TruckID
	st.ExperimentID = ev.ExperimentID
	if ev.FleetID != "" {
		st.FleetID = ev.FleetID
	}
	st.LastPlan = &LastPlan{Steps: ev.Steps, Bookings: ev.Bookings, Replayed: ev.Replayed, Timestamp: ev.Time}
	s.data[ev.TruckID] = st
	return nil
}

func (s *MemoryStore) Get(truckID string) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.data[truckID]
	return st, ok
}

// List returns the matching trucks sorted by id.
func (s *MemoryStore) List(f Filter) []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]Status, 0, len(s.data))
	for _, st := range s.data {
		if f.FleetID != "" && st.FleetID != f.FleetID {
			continue
		}
		if f.Status != "" && st.CurrentStatus != f.Status {
			continue
		}
		res = append(res, st)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].TruckID < res[j].TruckID })
	return res
}
