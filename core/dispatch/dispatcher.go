// Package dispatch buffers incoming bookings per fleet and hands them to
// trucks, either round-robin, through the routing solver or by replaying a
// stored plan.
package dispatch

import (
	"context"
	"fmt"

	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/vrp"
)

// Dispatcher types.
const (
	TypeStandard = "standard"
	TypeVroom    = "vroom"
	TypeReplay   = "replay"
)

// Vehicle is the truck surface used by dispatchers.
type Vehicle interface {
	vrp.Truck
	HandleBooking(b *model.Booking) error
	SetPlan(plan []model.Instruction)
}

// Dispatcher assigns a batch of bookings to vehicles and returns the
// bookings it handed out.
type Dispatcher interface {
	Name() string
	Dispatch(ctx context.Context, batch []*model.Booking) ([]*model.Booking, error)
}

// TruckError is a planning failure of a single truck.
type TruckError struct {
	TruckID string
	Err     error
}

func (e *TruckError) Error() string { return fmt.Sprintf("truck %s: %v", e.TruckID, e.Err) }
func (e *TruckError) Unwrap() error { return e.Err }
