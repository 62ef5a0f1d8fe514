package vehicle

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/clock"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/routing"
	"github.com/kilianp07/fleetsim/infra/logger"
)

var depot = geo.Position{Lon: 18.0, Lat: 59.0}

// gateRouter blocks every route until the gate is opened.
type gateRouter struct {
	gate chan struct{}
}

func (g gateRouter) Route(ctx context.Context, from, to geo.Position) (routing.Route, error) {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return routing.Route{}, ctx.Err()
	}
	return routing.StraightLine{}.Route(ctx, from, to)
}

type flakyRouter struct {
	failures atomic.Int32
}

func (f *flakyRouter) Route(ctx context.Context, from, to geo.Position) (routing.Route, error) {
	if f.failures.Add(-1) >= 0 {
		return routing.Route{}, errors.New("osrm unavailable")
	}
	return routing.StraightLine{}.Route(ctx, from, to)
}

func newTestTruck(t *testing.T, cfg Config) (*Truck, *events.Recorder) {
	t.Helper()
	rec := &events.Recorder{}
	cfg.ID = "t1"
	cfg.FleetID = "f1"
	cfg.Start = depot
	cfg.Clock = clock.New(clock.Config{Multiplier: math.Inf(1)})
	cfg.Events = rec
	cfg.Logger = logger.NopLogger{}
	tr := New(cfg)
	t.Cleanup(tr.Stop)
	return tr, rec
}

func at(east float64) geo.Position { return geo.AddMeters(depot, east, 0) }

func booking(id string, p geo.Position) *model.Booking {
	return &model.Booking{ID: id, Pickup: p, RecyclingType: "HUSHSORT"}
}

func TestHandlePostStopParksAtStart(t *testing.T) {
	tr, rec := newTestTruck(t, Config{})
	tr.HandlePostStop()
	assert.Equal(t, StatusParked, tr.Status())
	require.Len(t, rec.OfKind(events.KindVehicleStatusChanged), 1)
	tr.Wait()
}

func TestHandleBookingQueuesWhileBusy(t *testing.T) {
	gate := make(chan struct{})
	tr, rec := newTestTruck(t, Config{Router: gateRouter{gate: gate}})
	b1, b2 := booking("b1", at(1000)), booking("b2", at(2000))

	require.NoError(t, tr.HandleBooking(b1))
	assert.Equal(t, StatusToPickup, tr.Status())
	assert.Equal(t, model.BookingAssigned, b1.Status())

	require.NoError(t, tr.HandleBooking(b2))
	assert.Equal(t, model.BookingQueued, b2.Status())
	assert.Len(t, tr.Queue(), 1)

	close(gate)
	tr.Wait()

	assert.Equal(t, StatusParked, tr.Status())
	assert.Equal(t, model.BookingDelivered, b1.Status())
	assert.Equal(t, model.BookingDelivered, b2.Status())
	assert.Len(t, tr.Delivered(), 2)
	assert.Empty(t, tr.Cargo())

	snap := tr.Snapshot()
	assert.InDelta(t, 4000, snap.DistanceMeters, 20)
	assert.InDelta(t, 4*DefaultCO2PerKm, snap.CO2Kg, 0.05)
	assert.True(t, geo.Distance(depot, snap.Position) < 1)
	assert.NotEmpty(t, rec.OfKind(events.KindVehicleMoved))

	statuses := rec.OfKind(events.KindVehicleStatusChanged)
	last := statuses[len(statuses)-1].(events.VehicleStatusChanged)
	assert.Equal(t, string(StatusParked), last.To)
}

func TestHandleBookingRejectsForeignBooking(t *testing.T) {
	tr, _ := newTestTruck(t, Config{Router: gateRouter{gate: make(chan struct{})}})
	b := booking("b1", at(500))
	require.NoError(t, b.Assign("other", time.Now()))
	assert.ErrorIs(t, tr.HandleBooking(b), model.ErrAlreadyAssigned)
}

func TestOpportunisticPickup(t *testing.T) {
	gate := make(chan struct{})
	tr, _ := newTestTruck(t, Config{Router: gateRouter{gate: gate}})
	b1, near, far := booking("b1", at(1000)), booking("near", at(1100)), booking("far", at(3000))
	require.NoError(t, tr.HandleBooking(b1))
	require.NoError(t, tr.HandleBooking(near))
	require.NoError(t, tr.HandleBooking(far))

	close(gate)
	tr.Wait()

	_, _, p1, _ := b1.Timestamps()
	_, _, pNear, _ := near.Timestamps()
	_, _, pFar, _ := far.Timestamps()
	assert.Equal(t, p1, pNear)
	assert.True(t, pFar.After(p1))
	assert.Len(t, tr.Delivered(), 3)
}

func TestDestinationLegAfterPickup(t *testing.T) {
	gate := make(chan struct{})
	tr, rec := newTestTruck(t, Config{Router: gateRouter{gate: gate}})
	dest := at(-1000)
	b := booking("b1", at(1000))
	b.Destination = &dest
	require.NoError(t, tr.HandleBooking(b))
	close(gate)
	tr.Wait()

	var seen []string
	for _, e := range rec.OfKind(events.KindVehicleStatusChanged) {
		seen = append(seen, e.(events.VehicleStatusChanged).To)
	}
	assert.Equal(t, []string{"toPickup", "toDelivery", "returning", "parked"}, seen)
	assert.Equal(t, model.BookingDelivered, b.Status())
}

func TestFullCompartmentForcesUnload(t *testing.T) {
	gate := make(chan struct{})
	tr, _ := newTestTruck(t, Config{
		Router:       gateRouter{gate: gate},
		Compartments: []capacity.Spec{{VolumeM3: 0.2, WasteTypes: []string{"HUSHSORT"}}},
	})
	b1, b2, b3 := booking("b1", at(1000)), booking("b2", at(2000)), booking("b3", at(3000))
	tr.SetPlan([]model.Instruction{
		{Action: model.ActionStart},
		{Action: model.ActionPickup, Booking: b1},
		{Action: model.ActionPickup, Booking: b2},
		{Action: model.ActionPickup, Booking: b3},
		{Action: model.ActionDelivery},
		{Action: model.ActionEnd},
	})
	assert.Equal(t, StatusToPickup, tr.Status())
	close(gate)
	tr.Wait()

	_, _, _, d1 := b1.Timestamps()
	_, _, _, d2 := b2.Timestamps()
	_, _, p3, d3 := b3.Timestamps()
	assert.Equal(t, d1, d2)
	assert.True(t, p3.After(d2))
	assert.True(t, d3.After(p3))
	assert.Equal(t, StatusParked, tr.Status())

	snap := tr.Snapshot()
	require.Len(t, snap.Compartments, 1)
	assert.Zero(t, snap.Compartments[0].FillLiters)
}

// legRouter records the target of every leg.
type legRouter struct {
	mu      sync.Mutex
	targets []geo.Position
}

func (r *legRouter) Route(ctx context.Context, from, to geo.Position) (routing.Route, error) {
	r.mu.Lock()
	r.targets = append(r.targets, to)
	r.mu.Unlock()
	return routing.StraightLine{}.Route(ctx, from, to)
}

func (r *legRouter) visited(p geo.Position) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, to := range r.targets {
		if to.Equal(p) {
			return true
		}
	}
	return false
}

func TestBulkDeliveryVisitsEveryDestination(t *testing.T) {
	router := &legRouter{}
	tr, _ := newTestTruck(t, Config{Router: router})
	d1, d2 := at(5000), at(-5000)
	b1, b2 := booking("b1", at(1000)), booking("b2", at(2000))
	b1.Destination = &d1
	b2.Destination = &d2
	tr.SetPlan([]model.Instruction{
		{Action: model.ActionStart},
		{Action: model.ActionPickup, Booking: b1},
		{Action: model.ActionPickup, Booking: b2},
		{Action: model.ActionDelivery},
		{Action: model.ActionEnd},
	})
	tr.Wait()

	assert.Equal(t, model.BookingDelivered, b1.Status())
	assert.Equal(t, model.BookingDelivered, b2.Status())
	assert.True(t, router.visited(d1))
	assert.True(t, router.visited(d2))
	_, _, _, del1 := b1.Timestamps()
	_, _, _, del2 := b2.Timestamps()
	assert.True(t, del2.After(del1))
	assert.Equal(t, StatusParked, tr.Status())
}

func TestPlanSkipsUnreachableBookings(t *testing.T) {
	gate := make(chan struct{})
	tr, _ := newTestTruck(t, Config{Router: gateRouter{gate: gate}})
	bad, good := booking("bad", at(1000)), booking("good", at(2000))
	bad.MarkUnreachable(tr.cfg.Clock.Now())
	tr.SetPlan([]model.Instruction{
		{Action: model.ActionPickup, Booking: bad},
		{Action: model.ActionPickup, Booking: good},
		{Action: model.ActionDelivery},
	})
	close(gate)
	tr.Wait()

	assert.Equal(t, model.BookingUnreachable, bad.Status())
	assert.Equal(t, model.BookingDelivered, good.Status())
	assert.Len(t, tr.Delivered(), 1)
}

func TestBuildSequentialPlanFromQueue(t *testing.T) {
	tr, _ := newTestTruck(t, Config{Router: gateRouter{gate: make(chan struct{})}})
	plan := tr.BuildSequentialPlanFromQueue()
	require.Len(t, plan, 3)
	assert.Equal(t, []model.Action{model.ActionStart, model.ActionDelivery, model.ActionEnd},
		[]model.Action{plan[0].Action, plan[1].Action, plan[2].Action})

	require.NoError(t, tr.HandleBooking(booking("b0", at(500))))
	require.NoError(t, tr.HandleBooking(booking("b1", at(1500))))
	require.NoError(t, tr.HandleBooking(booking("b2", at(2500))))
	plan = tr.BuildSequentialPlanFromQueue()
	require.Len(t, plan, 5)
	assert.Equal(t, model.ActionPickup, plan[1].Action)
	assert.Equal(t, "b1", plan[1].BookingID())
	assert.Equal(t, "b2", plan[2].BookingID())
	assert.Equal(t, model.ActionDelivery, plan[3].Action)
	assert.Nil(t, plan[3].Booking)
	assert.Equal(t, model.ActionEnd, plan[4].Action)
}

func TestCapacityDimensions(t *testing.T) {
	tr, _ := newTestTruck(t, Config{})
	names, values := tr.CapacityDimensions()
	assert.Equal(t, []string{capacity.DimCount}, names)
	assert.Equal(t, []int{DefaultParcelCapacity}, values)

	tr2, _ := newTestTruck(t, Config{Compartments: []capacity.Spec{{VolumeM3: 1, WeightLimit: 500}}})
	names, values = tr2.CapacityDimensions()
	assert.Equal(t, []string{capacity.DimVolume, capacity.DimWeight}, names)
	assert.Equal(t, []int{1000, 500}, values)
}

func TestNavigationRetriesRoutingFailures(t *testing.T) {
	router := &flakyRouter{}
	router.failures.Store(2)
	tr, _ := newTestTruck(t, Config{Router: router, RetryInterval: 1})
	b := booking("b1", at(800))
	require.NoError(t, tr.HandleBooking(b))
	tr.Wait()
	assert.Equal(t, model.BookingDelivered, b.Status())
	assert.Equal(t, StatusParked, tr.Status())
}
