package model

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetsim/core/geo"
)

// ErrAlreadyAssigned is returned when a booking is assigned twice.
var ErrAlreadyAssigned = errors.New("booking already assigned")

// BookingStatus is the lifecycle state of a booking.
type BookingStatus int

const (
	BookingNew BookingStatus = iota
	BookingQueued
	BookingAssigned
	BookingPickedUp
	BookingDelivered
	BookingUnreachable
)

func (s BookingStatus) String() string {
	switch s {
	case BookingNew:
		return "new"
	case BookingQueued:
		return "queued"
	case BookingAssigned:
		return "assigned"
	case BookingPickedUp:
		return "pickedUp"
	case BookingDelivered:
		return "delivered"
	case BookingUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("BookingStatus(%d)", int(s))
	}
}

// StatusEvent is one entry of a booking's append-only status history.
type StatusEvent struct {
	Status  BookingStatus `json:"status"`
	TruckID string        `json:"truck_id,omitempty"`
	Time    time.Time     `json:"time"`
}

// Load is the estimated volume and weight of a booking.
type Load struct {
	VolumeLiters int      `json:"volume_liters"`
	WeightKg     *float64 `json:"weight_kg,omitempty"`
}

// RouteRecord carries the service type code of an imported route row.
type RouteRecord struct {
	Tjtyp string `json:"Tjtyp,omitempty" yaml:"Tjtyp,omitempty"`
}

// OriginalData holds the raw import metadata of a booking.
type OriginalData struct {
	OriginalTjtyp       string       `json:"originalTjtyp,omitempty" yaml:"originalTjtyp,omitempty"`
	OriginalRouteRecord *RouteRecord `json:"originalRouteRecord,omitempty" yaml:"originalRouteRecord,omitempty"`
}

// Booking is a pickup request. The exported fields are set at ingestion and
// treated as immutable afterwards; lifecycle state is guarded by mu.
type Booking struct {
	ID             string        `json:"id"`
	Fleet          string        `json:"fleet,omitempty"`
	PostalCode     string        `json:"postalCode,omitempty"`
	Pickup         geo.Position  `json:"pickup"`
	Destination    *geo.Position `json:"destination,omitempty"`
	RecyclingType  string        `json:"recyclingType,omitempty"`
	OriginalData   *OriginalData `json:"originalData,omitempty"`
	OriginalRecord *RouteRecord  `json:"originalRecord,omitempty"`
	Tjtyp          string        `json:"Tjtyp,omitempty"`
	// Multiplier is the number of physical containers grouped in this booking.
	Multiplier int   `json:"multiplier,omitempty"`
	Load       *Load `json:"load,omitempty"`

	mu          sync.Mutex
	status      BookingStatus
	truckID     string
	compartment int
	events      []StatusEvent
	queuedAt    time.Time
	assignedAt  time.Time
	pickedUpAt  time.Time
	deliveredAt time.Time
}

// EnsureID assigns a random identifier when the booking has none.
func (b *Booking) EnsureID() {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
}

// ServiceTypeCode resolves the originating service type code. Explicit
// import metadata wins over the route record which wins over the bare field.
func (b *Booking) ServiceTypeCode() string {
	if b.OriginalData != nil {
		if b.OriginalData.OriginalTjtyp != "" {
			return b.OriginalData.OriginalTjtyp
		}
		if r := b.OriginalData.OriginalRouteRecord; r != nil && r.Tjtyp != "" {
			return r.Tjtyp
		}
	}
	if b.OriginalRecord != nil && b.OriginalRecord.Tjtyp != "" {
		return b.OriginalRecord.Tjtyp
	}
	return b.Tjtyp
}

// GroupMultiplier returns the grouped booking multiplier, at least 1.
func (b *Booking) GroupMultiplier() int {
	if b.Multiplier < 1 {
		return 1
	}
	return b.Multiplier
}

// DeliveryPosition returns the drop-off position or the pickup position when
// the booking has no explicit destination.
func (b *Booking) DeliveryPosition() geo.Position {
	if b.Destination != nil {
		return *b.Destination
	}
	return b.Pickup
}

// Queue marks the booking as waiting in the queue of truckID.
func (b *Booking) Queue(truckID string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truckID != "" && b.truckID != truckID {
		return fmt.Errorf("%w: held by %s", ErrAlreadyAssigned, b.truckID)
	}
	if b.status >= BookingAssigned {
		return fmt.Errorf("%w: status %s", ErrAlreadyAssigned, b.status)
	}
	b.truckID = truckID
	b.queuedAt = at
	b.appendLocked(BookingQueued, at)
	return nil
}

// Assign makes truckID the active owner of the booking. It fails when the
// booking is already assigned or queued for a different truck.
func (b *Booking) Assign(truckID string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status >= BookingAssigned && b.status != BookingUnreachable {
		return fmt.Errorf("%w: %s held by %s", ErrAlreadyAssigned, b.ID, b.truckID)
	}
	if b.truckID != "" && b.truckID != truckID {
		return fmt.Errorf("%w: %s queued on %s", ErrAlreadyAssigned, b.ID, b.truckID)
	}
	b.truckID = truckID
	b.assignedAt = at
	b.appendLocked(BookingAssigned, at)
	return nil
}

// Release drops a queued or assigned booking back to new.
func (b *Booking) Release(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == BookingPickedUp || b.status == BookingDelivered {
		return
	}
	b.truckID = ""
	b.appendLocked(BookingNew, at)
}

// MarkPickedUp records the pickup.
func (b *Booking) MarkPickedUp(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pickedUpAt = at
	b.appendLocked(BookingPickedUp, at)
}

// MarkDelivered records the drop-off.
func (b *Booking) MarkDelivered(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deliveredAt = at
	b.appendLocked(BookingDelivered, at)
}

// MarkUnreachable flags the booking so planners skip it.
func (b *Booking) MarkUnreachable(at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.appendLocked(BookingUnreachable, at)
}

func (b *Booking) appendLocked(s BookingStatus, at time.Time) {
	b.status = s
	b.events = append(b.events, StatusEvent{Status: s, TruckID: b.truckID, Time: at})
}

// Status returns the current lifecycle state.
func (b *Booking) Status() BookingStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// TruckID returns the truck currently holding the booking.
func (b *Booking) TruckID() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truckID
}

// Events returns a copy of the status history.
func (b *Booking) Events() []StatusEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]StatusEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Timestamps returns queued, assigned, picked up and delivered times.
func (b *Booking) Timestamps() (queued, assigned, pickedUp, delivered time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.queuedAt, b.assignedAt, b.pickedUpAt, b.deliveredAt
}

// SetCompartment records the compartment index holding the booking's load.
func (b *Booking) SetCompartment(idx int) {
	b.mu.Lock()
	b.compartment = idx
	b.mu.Unlock()
}

// Compartment returns the compartment index recorded at pickup, 0 if none.
func (b *Booking) Compartment() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compartment
}
