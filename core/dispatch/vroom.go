package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kilianp07/fleetsim/core/clustering"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/settings"
	"github.com/kilianp07/fleetsim/core/vrp"
)

// VroomConfig wires an optimizing dispatcher.
type VroomConfig struct {
	ExperimentID string
	FleetID      string
	Settings     *settings.Settings
	Planner      *vrp.Planner
	Clusterer    *clustering.Clusterer
	Events       events.Publisher
	// ShouldAbort reports experiment cancellation.
	ShouldAbort func() bool
}

// Vroom assigns bookings to trucks with the routing solver, then plans the
// pickup order of every truck.
type Vroom struct {
	cfg      VroomConfig
	vehicles []Vehicle
	log      logger.Logger
}

// NewVroom returns an optimizing dispatcher over vehicles.
func NewVroom(cfg VroomConfig, vehicles []Vehicle, log logger.Logger) *Vroom {
	if cfg.Settings == nil {
		cfg.Settings = settings.Default()
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Clusterer == nil {
		cfg.Clusterer = clustering.New(cfg.Settings.Clustering, log, nil)
	}
	return &Vroom{cfg: cfg, vehicles: vehicles, log: log}
}

func (d *Vroom) Name() string { return TypeVroom }

func (d *Vroom) aborted() bool {
	return d.cfg.ShouldAbort != nil && d.cfg.ShouldAbort()
}

func (d *Vroom) meta() events.Meta {
	return events.Meta{ExperimentID: d.cfg.ExperimentID, FleetID: d.cfg.FleetID, At: d.cfg.Planner.Now()}
}

// Dispatch assigns the new bookings of batch and plans each loaded truck
// concurrently. A failed truck plan is reported as a DispatchError event
// and does not stop the others.
func (d *Vroom) Dispatch(ctx context.Context, batch []*model.Booking) ([]*model.Booking, error) {
	pending := make([]*model.Booking, 0, len(batch))
	for _, b := range batch {
		if b.Status() == model.BookingNew {
			pending = append(pending, b)
		}
	}
	if len(pending) == 0 || len(d.vehicles) == 0 {
		return nil, nil
	}
	assignments, err := d.assign(ctx, pending)
	if err != nil {
		return nil, err
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		out []*model.Booking
	)
	for idx, bookings := range assignments {
		v := d.vehicles[idx]
		wg.Add(1)
		go func(v Vehicle, bookings []*model.Booking) {
			defer wg.Done()
			plan, err := d.PlanTruck(ctx, v, bookings)
			if err != nil {
				if errors.Is(err, vrp.ErrPlanningCancelled) || ctx.Err() != nil {
					return
				}
				d.fail(&TruckError{TruckID: v.ID(), Err: err})
				return
			}
			v.SetPlan(plan)
			mu.Lock()
			for _, in := range plan {
				if in.Action == model.ActionPickup && in.Booking != nil && in.Booking.TruckID() == v.ID() {
					out = append(out, in.Booking)
				}
			}
			mu.Unlock()
		}(v, bookings)
	}
	wg.Wait()
	if d.aborted() {
		return out, vrp.ErrPlanningCancelled
	}
	return out, ctx.Err()
}

// limits returns the problem size bounds of this fleet, never above what
// the planner accepts.
func (d *Vroom) limits() vrp.Limits {
	s := d.cfg.Settings.Solver
	return d.cfg.Planner.Limits().Min(vrp.Limits{Jobs: s.MaxJobs, Shipments: s.MaxShipments, Vehicles: s.MaxVehicles})
}

func (d *Vroom) fail(err *TruckError) {
	dispatchErrors.WithLabelValues(d.cfg.FleetID, TypeVroom).Inc()
	d.log.Errorf("plan failed: %v", err)
	d.cfg.Events.Publish(events.DispatchError{Meta: d.meta(), TruckID: err.TruckID, Message: err.Error()})
}

// assign solves the fleet-wide assignment problem and returns the bookings
// of every vehicle index. Jobs beyond the solver limit are planned in
// successive requests.
func (d *Vroom) assign(ctx context.Context, bookings []*model.Booking) (map[int][]*model.Booking, error) {
	s := d.cfg.Settings
	lim := d.limits()
	now := d.cfg.Planner.Now()
	fleet := d.vehicles
	if len(fleet) > lim.Vehicles {
		fleet = fleet[:lim.Vehicles]
	}
	vehicles := make([]vrp.Vehicle, len(fleet))
	var dims []string
	for i, v := range fleet {
		var vd []string
		vehicles[i], vd = vrp.TruckToVehicle(v, i, nil, s, now)
		if i == 0 {
			dims = vd
		}
	}
	groups := GroupByPostalCode(bookings, s.Solver.PostalCodeThreshold)
	jobs, members := jobsFromGroups(groups, s.Solver.MaxClusterSize, dims, func(b *model.Booking, dims []string) []int {
		return vrp.Amount(b, dims, s)
	})

	out := make(map[int][]*model.Booking)
	for start := 0; start < len(jobs); start += lim.Jobs {
		end := min(len(jobs), start+lim.Jobs)
		chunk := make([]vrp.Job, end-start)
		copy(chunk, jobs[start:end])
		for i := range chunk {
			chunk[i].ID = i
		}
		res, err := d.cfg.Planner.Plan(ctx, vrp.PlanInput{Jobs: chunk, Vehicles: vehicles, ShouldAbort: d.cfg.ShouldAbort})
		if err != nil {
			return nil, fmt.Errorf("assign bookings: %w", err)
		}
		if len(res.Unassigned) > 0 {
			d.log.Warnf("fleet %s: %d jobs left unassigned", d.cfg.FleetID, len(res.Unassigned))
		}
		for idx, bs := range assignmentsFromRoutes(res, members[start:end]) {
			if idx >= 0 && idx < len(fleet) {
				out[idx] = append(out[idx], bs...)
			}
		}
	}
	return out, nil
}

// PlanTruck computes the ordered instructions of one truck. Batches above
// the shipment limit are partitioned spatially, split and solved piece by
// piece, then merged back into one route.
func (d *Vroom) PlanTruck(ctx context.Context, v Vehicle, bookings []*model.Booking) ([]model.Instruction, error) {
	s := d.cfg.Settings
	lim := d.limits()
	if len(bookings) <= lim.Shipments {
		plan, err := d.cfg.Planner.FindBestRouteToPickupBookings(ctx, vrp.RouteRequest{
			ExperimentID: d.cfg.ExperimentID,
			Truck:        v,
			Bookings:     bookings,
			Settings:     s,
			ShouldAbort:  d.cfg.ShouldAbort,
		})
		if err != nil {
			return nil, err
		}
		d.planned(v.ID(), plan, len(bookings))
		return plan, nil
	}

	parts := d.cfg.Clusterer.CreateSpatialChunks(ctx, bookings, d.cfg.ExperimentID, v.ID())
	d.cfg.Events.Publish(events.PartitionsComputed{
		Meta:       d.meta(),
		TruckID:    v.ID(),
		Partitions: len(parts),
		Bookings:   len(bookings),
	})
	var (
		subs  []SubResult
		start *geo.Position
	)
	for _, p := range parts {
		for _, chunk := range SimpleGeographicSplit(p.Bookings, lim.Shipments) {
			vehicles, shipments := vrp.BuildProblem(v, chunk, start, s, d.cfg.Planner.Now())
			res, err := d.cfg.Planner.Plan(ctx, vrp.PlanInput{Shipments: shipments, Vehicles: vehicles, ShouldAbort: d.cfg.ShouldAbort})
			if err != nil {
				return nil, fmt.Errorf("partition %s: %w", p.ID, err)
			}
			subs = append(subs, SubResult{Response: res, Bookings: chunk})
			if last, ok := lastPickup(res, chunk); ok {
				start = &last
			}
		}
	}
	res, all := CombineSubResults(subs)
	d.cfg.Planner.SavePlan(ctx, d.cfg.ExperimentID, v.ID(), res, all)
	plan := vrp.Instructions(res, all, nil)
	d.planned(v.ID(), plan, len(bookings))
	return plan, nil
}

func (d *Vroom) planned(truckID string, plan []model.Instruction, bookings int) {
	d.cfg.Events.Publish(events.PlanComputed{
		Meta:     d.meta(),
		TruckID:  truckID,
		Steps:    len(plan),
		Bookings: bookings,
	})
}

// lastPickup returns the pickup position of the last picked up booking of
// the first route.
func lastPickup(res *vrp.Response, bookings []*model.Booking) (geo.Position, bool) {
	if res == nil || len(res.Routes) == 0 {
		return geo.Position{}, false
	}
	steps := res.Routes[0].Steps
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Type != vrp.StepPickup {
			continue
		}
		idx := vrp.ShipmentIndex(steps[i].ID)
		if idx >= 0 && idx < len(bookings) {
			return bookings[idx].Pickup, true
		}
	}
	return geo.Position{}, false
}
