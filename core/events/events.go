package events

import (
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/geo"
)

// Kind names an event type. It is used as MQTT topic segment and metric
// label.
type Kind string

const (
	KindVehicleMoved         Kind = "vehicleMoved"
	KindVehicleStatusChanged Kind = "vehicleStatus"
	KindCargoChanged         Kind = "cargo"
	KindBookingStatusChanged Kind = "bookingStatus"
	KindDispatchError        Kind = "dispatchError"
	KindPartitionsComputed   Kind = "partitions"
	KindPlanComputed         Kind = "plan"
)

// Event is implemented by every simulation event.
type Event interface {
	Kind() Kind
	// Subject is the id of the truck or booking the event is about.
	Subject() string
	Experiment() string
}

// Publisher accepts events. eventbus.Bus[Event] implements it.
type Publisher interface {
	Publish(Event)
}

// Meta carries the fields common to every event.
type Meta struct {
	ExperimentID string    `json:"experimentId"`
	FleetID      string    `json:"fleetId,omitempty"`
	At           time.Time `json:"at"`
}

func (m Meta) Experiment() string { return m.ExperimentID }

type VehicleMoved struct {
	Meta
	TruckID        string       `json:"truckId"`
	Position       geo.Position `json:"position"`
	Status         string       `json:"status"`
	DistanceMeters float64      `json:"distanceMeters"`
	CO2Kg          float64      `json:"co2Kg"`
}

func (VehicleMoved) Kind() Kind        { return KindVehicleMoved }
func (e VehicleMoved) Subject() string { return e.TruckID }

type VehicleStatusChanged struct {
	Meta
	TruckID string `json:"truckId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

func (VehicleStatusChanged) Kind() Kind        { return KindVehicleStatusChanged }
func (e VehicleStatusChanged) Subject() string { return e.TruckID }

type CargoChanged struct {
	Meta
	TruckID      string                 `json:"truckId"`
	Cargo        int                    `json:"cargo"`
	Queue        int                    `json:"queue"`
	Delivered    int                    `json:"delivered"`
	Compartments []capacity.Compartment `json:"compartments"`
}

func (CargoChanged) Kind() Kind        { return KindCargoChanged }
func (e CargoChanged) Subject() string { return e.TruckID }

type BookingStatusChanged struct {
	Meta
	BookingID string `json:"bookingId"`
	TruckID   string `json:"truckId,omitempty"`
	Status    string `json:"status"`
}

func (BookingStatusChanged) Kind() Kind        { return KindBookingStatusChanged }
func (e BookingStatusChanged) Subject() string { return e.BookingID }

// DispatchError reports a per-truck planning failure. The rest of the fleet
// keeps running.
type DispatchError struct {
	Meta
	TruckID string `json:"truckId"`
	Message string `json:"message"`
}

func (DispatchError) Kind() Kind        { return KindDispatchError }
func (e DispatchError) Subject() string { return e.TruckID }

type PartitionsComputed struct {
	Meta
	TruckID    string `json:"truckId,omitempty"`
	Partitions int    `json:"partitions"`
	Bookings   int    `json:"bookings"`
}

func (PartitionsComputed) Kind() Kind        { return KindPartitionsComputed }
func (e PartitionsComputed) Subject() string { return e.TruckID }

type PlanComputed struct {
	Meta
	TruckID  string `json:"truckId"`
	Steps    int    `json:"steps"`
	Bookings int    `json:"bookings"`
	Replayed bool   `json:"replayed,omitempty"`
}

func (PlanComputed) Kind() Kind        { return KindPlanComputed }
func (e PlanComputed) Subject() string { return e.TruckID }

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}
