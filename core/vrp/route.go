package vrp

import (
	"context"
	"time"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/settings"
)

// PlanSaver persists raw plans for replay.
type PlanSaver interface {
	SavePlan(ctx context.Context, rec planstore.PlanRecord) error
}

// RouteRequest asks for a plan covering bookings with a single truck.
type RouteRequest struct {
	ExperimentID string
	Truck        Truck
	Bookings     []*model.Booking
	Settings     *settings.Settings
	// Start overrides the truck position as route start.
	Start *geo.Position
	// Actions filters the returned instructions. Empty keeps every step
	// mapped to an action.
	Actions     []model.Action
	ShouldAbort func() bool
}

// BuildProblem converts bookings and a truck into solver vehicles and
// shipments with index-aligned capacity dimensions.
func BuildProblem(t Truck, bookings []*model.Booking, start *geo.Position, s *settings.Settings, now time.Time) ([]Vehicle, []Shipment) {
	v, dims := TruckToVehicle(t, 0, start, s, now)
	shipments := make([]Shipment, len(bookings))
	for i, b := range bookings {
		shipments[i] = BookingToShipment(b, i, dims, s, now)
	}
	return []Vehicle{v}, shipments
}

// FindBestRouteToPickupBookings plans bookings for one truck, stores the raw
// response under (experiment, truck) and returns the ordered instructions.
// Unassigned shipments are logged and left out.
func (p *Planner) FindBestRouteToPickupBookings(ctx context.Context, r RouteRequest) ([]model.Instruction, error) {
	s := r.Settings
	if s == nil {
		s = settings.Default()
	}
	vehicles, shipments := BuildProblem(r.Truck, r.Bookings, r.Start, s, p.now())
	res, err := p.Plan(ctx, PlanInput{Shipments: shipments, Vehicles: vehicles, ShouldAbort: r.ShouldAbort})
	if err != nil {
		return nil, err
	}
	if len(res.Unassigned) > 0 {
		p.log.Warnf("truck %s: %d steps left unassigned by the solver", r.Truck.ID(), len(res.Unassigned))
	}
	p.SavePlan(ctx, r.ExperimentID, r.Truck.ID(), res, r.Bookings)
	return Instructions(res, r.Bookings, r.Actions), nil
}

// SavePlan stores the raw response of a truck plan together with the
// booking ids indexed by shipment. Failures are logged only.
func (p *Planner) SavePlan(ctx context.Context, experimentID, truckID string, res *Response, bookings []*model.Booking) {
	if p.store == nil || experimentID == "" || res == nil {
		return
	}
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		if b != nil {
			ids[i] = b.ID
		}
	}
	rec := planstore.PlanRecord{
		ExperimentID: experimentID,
		TruckID:      truckID,
		Plan:         res.Raw,
		BookingIDs:   ids,
		CreatedAt:    time.Now(),
	}
	if err := p.store.SavePlan(ctx, rec); err != nil {
		p.log.Warnf("save plan for truck %s: %v", truckID, err)
	}
}

// Now returns the planner's current time.
func (p *Planner) Now() time.Time { return p.now() }

// Instructions maps the first route of res into plan instructions. Pickup
// and delivery steps resolve their booking through the shipment index; steps
// whose booking is unknown are skipped.
func Instructions(res *Response, bookings []*model.Booking, actions []model.Action) []model.Instruction {
	if res == nil || len(res.Routes) == 0 {
		return nil
	}
	keep := func(a model.Action) bool {
		if len(actions) == 0 {
			return true
		}
		for _, x := range actions {
			if x == a {
				return true
			}
		}
		return false
	}
	var out []model.Instruction
	for _, st := range res.Routes[0].Steps {
		var action model.Action
		switch st.Type {
		case StepStart:
			action = model.ActionStart
		case StepPickup:
			action = model.ActionPickup
		case StepDelivery:
			action = model.ActionDelivery
		case StepEnd:
			action = model.ActionEnd
		default:
			continue
		}
		if !keep(action) {
			continue
		}
		in := model.Instruction{Action: action, Arrival: st.Arrival, Departure: st.DepartureTime()}
		if action == model.ActionPickup || action == model.ActionDelivery {
			idx := ShipmentIndex(st.ID)
			if idx < 0 || idx >= len(bookings) || bookings[idx] == nil {
				continue
			}
			in.Booking = bookings[idx]
		}
		out = append(out, in)
	}
	return out
}
