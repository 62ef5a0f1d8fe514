package metrics

import (
	"time"

	"github.com/kilianp07/fleetsim/core/geo"
)

// CompartmentFill is the load of one compartment.
type CompartmentFill struct {
	Index          int
	FillLiters     float64
	FillKg         float64
	CapacityLiters float64
}

// Ratio returns the volume fill ratio, 0 for unlimited compartments.
func (c CompartmentFill) Ratio() float64 {
	if c.CapacityLiters <= 0 {
		return 0
	}
	return c.FillLiters / c.CapacityLiters
}

// VehicleStateEvent is a snapshot of a truck.
type VehicleStateEvent struct {
	ExperimentID   string
	FleetID        string
	TruckID        string
	Status         string
	Position       geo.Position
	DistanceMeters float64
	CO2Kg          float64
	Cargo          int
	Queue          int
	Delivered      int
	Compartments   []CompartmentFill
	Time           time.Time
}

// MetricsSink records truck state.
type MetricsSink interface {
	RecordVehicleState(ev VehicleStateEvent) error
}

// BookingEvent is a booking lifecycle transition.
type BookingEvent struct {
	ExperimentID string
	BookingID    string
	TruckID      string
	Status       string
	Time         time.Time
}

// BookingRecorder records booking transitions.
type BookingRecorder interface {
	RecordBooking(ev BookingEvent) error
}

// PlanEvent is a computed truck plan.
type PlanEvent struct {
	ExperimentID string
	FleetID      string
	TruckID      string
	Steps        int
	Bookings     int
	Replayed     bool
	Time         time.Time
}

// PlanRecorder records computed plans.
type PlanRecorder interface {
	RecordPlan(ev PlanEvent) error
}

// DispatchErrorEvent is a failed truck or fleet plan.
type DispatchErrorEvent struct {
	ExperimentID string
	FleetID      string
	TruckID      string
	Message      string
	Time         time.Time
}

// DispatchErrorRecorder records planning failures.
type DispatchErrorRecorder interface {
	RecordDispatchError(ev DispatchErrorEvent) error
}

// PartitionEvent describes one clustering run.
type PartitionEvent struct {
	ExperimentID string
	TruckID      string
	Partitions   int
	Bookings     int
	Time         time.Time
}

// PartitionRecorder records clustering runs.
type PartitionRecorder interface {
	RecordPartitions(ev PartitionEvent) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordVehicleState(VehicleStateEvent) error   { return nil }
func (NopSink) RecordBooking(BookingEvent) error             { return nil }
func (NopSink) RecordPlan(PlanEvent) error                   { return nil }
func (NopSink) RecordDispatchError(DispatchErrorEvent) error { return nil }
func (NopSink) RecordPartitions(PartitionEvent) error        { return nil }
