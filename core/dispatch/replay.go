package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/vrp"
)

// PlanLoader reads stored truck plans.
type PlanLoader interface {
	LoadPlan(ctx context.Context, experimentID, truckID string) (planstore.PlanRecord, error)
}

// Replay hands out plans stored by an earlier experiment instead of calling
// the solver.
type Replay struct {
	experimentID string
	fleetID      string
	vehicles     []Vehicle
	loader       PlanLoader
	events       events.Publisher
	log          logger.Logger
}

// NewReplay returns a dispatcher replaying the plans of experimentID.
func NewReplay(experimentID, fleetID string, vehicles []Vehicle, loader PlanLoader, pub events.Publisher, log logger.Logger) *Replay {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Replay{
		experimentID: experimentID,
		fleetID:      fleetID,
		vehicles:     vehicles,
		loader:       loader,
		events:       pub,
		log:          log,
	}
}

func (r *Replay) Name() string { return TypeReplay }

// Dispatch resolves every stored plan against the bookings of batch. Plan
// steps referring to bookings outside the batch are skipped.
func (r *Replay) Dispatch(ctx context.Context, batch []*model.Booking) ([]*model.Booking, error) {
	byID := make(map[string]*model.Booking, len(batch))
	for _, b := range batch {
		if b.Status() == model.BookingNew {
			byID[b.ID] = b
		}
	}
	var out []*model.Booking
	for _, v := range r.vehicles {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rec, err := r.loader.LoadPlan(ctx, r.experimentID, v.ID())
		if errors.Is(err, planstore.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		res, err := vrp.Decode(rec.Plan)
		if err != nil {
			r.log.Warnf("stored plan for truck %s unreadable: %v", v.ID(), err)
			continue
		}
		bookings := make([]*model.Booking, len(rec.BookingIDs))
		n := 0
		for i, id := range rec.BookingIDs {
			if b, ok := byID[id]; ok {
				bookings[i] = b
				delete(byID, id)
				n++
			}
		}
		if n == 0 {
			continue
		}
		plan := vrp.Instructions(res, bookings, nil)
		v.SetPlan(plan)
		for _, b := range bookings {
			if b != nil && b.TruckID() == v.ID() {
				out = append(out, b)
			}
		}
		r.events.Publish(events.PlanComputed{
			Meta:     events.Meta{ExperimentID: r.experimentID, FleetID: r.fleetID, At: time.Now()},
			TruckID:  v.ID(),
			Steps:    len(plan),
			Bookings: n,
			Replayed: true,
		})
	}
	if len(byID) > 0 {
		r.log.Warnf("fleet %s: %d bookings not found in stored plans", r.fleetID, len(byID))
	}
	return out, nil
}
