package vrp

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/cache"
	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/settings"
	"github.com/kilianp07/fleetsim/infra/logger"
)

const solvedBody = `{"code":0,"routes":[{"vehicle":0,"steps":[
{"type":"start","location":[18,59],"arrival":0},
{"type":"pickup","id":2,"location":[18.01,59],"arrival":100,"service":60},
{"type":"pickup","id":0,"location":[18.02,59],"arrival":200,"service":60},
{"type":"delivery","id":3,"location":[18.1,59.1],"arrival":900,"service":60},
{"type":"delivery","id":1,"location":[18.1,59.1],"arrival":960,"service":60},
{"type":"end","location":[18,59],"arrival":1500}]}],"unassigned":[]}`

type fakeSolver struct {
	calls  atomic.Int32
	fail   int32
	onFail func()
}

func (f *fakeSolver) Solve(ctx context.Context, body []byte) ([]byte, error) {
	n := f.calls.Add(1)
	if n <= f.fail {
		if f.onFail != nil {
			f.onFail()
		}
		return nil, &StatusError{Code: 503, Body: "busy"}
	}
	return []byte(solvedBody), nil
}

type fakeTruck struct {
	pos  geo.Position
	dest *geo.Position
}

func (fakeTruck) ID() string                   { return "t1" }
func (f fakeTruck) Position() geo.Position     { return f.pos }
func (f fakeTruck) Destination() *geo.Position { return f.dest }
func (fakeTruck) CapacityDimensions() ([]string, []int) {
	return []string{capacity.DimVolume, capacity.DimCount}, []int{1000, 5}
}

func fastConfig() Config {
	return Config{Backoff: time.Millisecond, PollInterval: time.Millisecond, MaxAttempts: 3}
}

func vehicles() []Vehicle { return []Vehicle{{ID: 0}} }

func TestPlanValidation(t *testing.T) {
	s := &fakeSolver{}
	p := NewPlanner(Config{MaxShipments: 1}, s, nil, nil, logger.NopLogger{})

	_, err := p.Plan(context.Background(), PlanInput{})
	assert.ErrorIs(t, err, ErrNoVehicles)

	_, err = p.Plan(context.Background(), PlanInput{Vehicles: vehicles(), Shipments: make([]Shipment, 2)})
	assert.ErrorIs(t, err, ErrTooManyShipments)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestLimits(t *testing.T) {
	p := NewPlanner(Config{MaxShipments: 2}, &fakeSolver{}, nil, nil, logger.NopLogger{})
	assert.Equal(t, Limits{Jobs: 200, Shipments: 2, Vehicles: 200}, p.Limits())
	assert.Equal(t, Limits{Jobs: 50, Shipments: 2, Vehicles: 200}, p.Limits().Min(Limits{Jobs: 50, Shipments: 300}))
}

func TestPlanCacheIgnoresTimeWindows(t *testing.T) {
	s := &fakeSolver{}
	p := NewPlanner(fastConfig(), s, cache.NewMemory(), nil, logger.NopLogger{})

	mk := func(offset int64) PlanInput {
		tw := TimeWindow{offset, offset + 3600}
		return PlanInput{
			Vehicles: []Vehicle{{ID: 0, TimeWindow: &tw, Breaks: []Break{{ID: 1, TimeWindows: []TimeWindow{tw}, Service: 1800}}}},
			Shipments: []Shipment{{
				Pickup:   ShipmentStep{ID: 0, Location: Location{18, 59}, TimeWindows: []TimeWindow{tw}},
				Delivery: ShipmentStep{ID: 1, Location: Location{18.1, 59}, TimeWindows: []TimeWindow{tw}},
				Amount:   []int{140},
			}},
		}
	}
	first, err := p.Plan(context.Background(), mk(0))
	require.NoError(t, err)
	second, err := p.Plan(context.Background(), mk(7200))
	require.NoError(t, err)
	assert.Equal(t, int32(1), s.calls.Load())
	assert.Equal(t, first.Routes, second.Routes)

	in := mk(0)
	in.Shipments[0].Amount = []int{200}
	_, err = p.Plan(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.calls.Load())
}

func TestCacheKeyDoesNotMutateRequest(t *testing.T) {
	tw := TimeWindow{10, 20}
	req := Request{Vehicles: []Vehicle{{TimeWindow: &tw}}, Jobs: []Job{{TimeWindows: []TimeWindow{tw}}}}
	_, err := CacheKey(req)
	require.NoError(t, err)
	assert.Equal(t, TimeWindow{10, 20}, *req.Vehicles[0].TimeWindow)
	assert.Equal(t, TimeWindow{10, 20}, req.Jobs[0].TimeWindows[0])
}

func TestPlanCancelledBeforeFirstAttempt(t *testing.T) {
	s := &fakeSolver{}
	p := NewPlanner(fastConfig(), s, nil, nil, logger.NopLogger{})
	_, err := p.Plan(context.Background(), PlanInput{Vehicles: vehicles(), ShouldAbort: func() bool { return true }})
	assert.ErrorIs(t, err, ErrPlanningCancelled)
	assert.Equal(t, int32(0), s.calls.Load())
}

func TestPlanCancelledAfterFailedAttempt(t *testing.T) {
	var abort atomic.Bool
	s := &fakeSolver{fail: 10, onFail: func() { abort.Store(true) }}
	cfg := fastConfig()
	cfg.Backoff = 50 * time.Millisecond
	p := NewPlanner(cfg, s, nil, nil, logger.NopLogger{})

	_, err := p.Plan(context.Background(), PlanInput{Vehicles: vehicles(), ShouldAbort: abort.Load})
	assert.ErrorIs(t, err, ErrPlanningCancelled)
	var se *StatusError
	assert.False(t, errors.As(err, &se))
	assert.Equal(t, int32(1), s.calls.Load())
}

func TestPlanRetriesThenSucceeds(t *testing.T) {
	s := &fakeSolver{fail: 2}
	p := NewPlanner(fastConfig(), s, nil, nil, logger.NopLogger{})
	res, err := p.Plan(context.Background(), PlanInput{Vehicles: vehicles()})
	require.NoError(t, err)
	assert.Equal(t, int32(3), s.calls.Load())
	require.Len(t, res.Routes, 1)
	assert.NotEmpty(t, res.Raw)
}

func TestPlanExhaustsRetries(t *testing.T) {
	s := &fakeSolver{fail: 100}
	p := NewPlanner(fastConfig(), s, nil, nil, logger.NopLogger{})
	_, err := p.Plan(context.Background(), PlanInput{Vehicles: vehicles()})
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.Code)
	assert.Equal(t, int32(3), s.calls.Load())
}

func testNow() time.Time { return time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC) }

func TestBookingToShipment(t *testing.T) {
	s := settings.Default()
	s.ServiceTypes = map[string]settings.ServiceType{"KRL140": {VolumeLiters: 140, FillPercent: 80}}
	dest := geo.Position{Lon: 18.1, Lat: 59.1}
	b := &model.Booking{ID: "b", Pickup: geo.Position{Lon: 18, Lat: 59}, Destination: &dest, Tjtyp: "KRL140", Multiplier: 2}

	sh := BookingToShipment(b, 3, []string{capacity.DimVolume, capacity.DimWeight, capacity.DimCount}, s, testNow())
	assert.Equal(t, 6, sh.Pickup.ID)
	assert.Equal(t, 7, sh.Delivery.ID)
	assert.Equal(t, Location{18, 59}, sh.Pickup.Location)
	assert.Equal(t, Location{18.1, 59.1}, sh.Delivery.Location)
	assert.Equal(t, ServiceSeconds, sh.Pickup.Service)
	assert.Equal(t, []int{224, 0, 2}, sh.Amount)
	assert.Equal(t, []TimeWindow{{0, 10 * 3600}}, sh.Pickup.TimeWindows)
	assert.Equal(t, sh.Pickup.TimeWindows, sh.Delivery.TimeWindows)
}

func TestTruckToVehicle(t *testing.T) {
	s := settings.Default()
	s.Breaks = []settings.Break{
		{ID: 1, DesiredTime: "12:00", DurationMinutes: 30},
		{ID: 2, DesiredTime: "07:00", DurationMinutes: 30},
		{ID: 3, DesiredTime: "nope", DurationMinutes: 30},
		{ID: 4, DesiredTime: "13:00", DurationMinutes: 0},
	}
	truck := fakeTruck{pos: geo.Position{Lon: 18, Lat: 59}}
	override := geo.Position{Lon: 17, Lat: 58}

	v, dims := TruckToVehicle(truck, 2, &override, s, testNow())
	assert.Equal(t, 2, v.ID)
	assert.Equal(t, []string{capacity.DimVolume, capacity.DimCount}, dims)
	assert.Equal(t, []int{1000, 5}, v.Capacity)
	assert.Equal(t, Location{17, 58}, *v.Start)
	assert.Equal(t, Location{18, 59}, *v.End)
	assert.Equal(t, TimeWindow{0, 36000}, *v.TimeWindow)
	require.Len(t, v.Breaks, 1)
	assert.Equal(t, Break{ID: 1, TimeWindows: []TimeWindow{{14400, 16200}}, Service: 1800}, v.Breaks[0])
}

func TestFindBestRouteToPickupBookings(t *testing.T) {
	store := planstore.NewMemoryStore()
	p := NewPlanner(fastConfig(), &fakeSolver{}, nil, store, logger.NopLogger{}).WithClock(testNow)
	bookings := []*model.Booking{
		{ID: "a", Pickup: geo.Position{Lon: 18.02, Lat: 59}},
		{ID: "b", Pickup: geo.Position{Lon: 18.01, Lat: 59}},
	}
	req := RouteRequest{ExperimentID: "exp", Truck: fakeTruck{pos: geo.Position{Lon: 18, Lat: 59}}, Bookings: bookings}

	plan, err := p.FindBestRouteToPickupBookings(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, plan, 6)
	assert.Equal(t, model.ActionStart, plan[0].Action)
	assert.Nil(t, plan[0].Booking)
	assert.Equal(t, "b", plan[1].BookingID())
	assert.Equal(t, int64(160), plan[1].Departure)
	assert.Equal(t, "a", plan[2].BookingID())
	assert.Equal(t, "b", plan[3].BookingID())
	assert.Equal(t, model.ActionEnd, plan[5].Action)

	rec, err := store.LoadPlan(context.Background(), "exp", "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, rec.BookingIDs)
	assert.NotEmpty(t, rec.Plan)

	req.Actions = []model.Action{model.ActionPickup}
	plan, err = p.FindBestRouteToPickupBookings(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, plan, 2)
	assert.Equal(t, []string{"b", "a"}, []string{plan[0].BookingID(), plan[1].BookingID()})
}
