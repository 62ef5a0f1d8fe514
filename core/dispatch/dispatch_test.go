package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/settings"
	"github.com/kilianp07/fleetsim/core/vrp"
	"github.com/kilianp07/fleetsim/infra/logger"
)

var depot = geo.Position{Lon: 18.0, Lat: 59.0}

type fakeVehicle struct {
	id string

	mu      sync.Mutex
	handled []*model.Booking
	plan    []model.Instruction
}

func (v *fakeVehicle) ID() string                 { return v.id }
func (v *fakeVehicle) Position() geo.Position     { return depot }
func (v *fakeVehicle) Destination() *geo.Position { return nil }
func (v *fakeVehicle) CapacityDimensions() ([]string, []int) {
	return []string{capacity.DimCount}, []int{250}
}

func (v *fakeVehicle) HandleBooking(b *model.Booking) error {
	if err := b.Assign(v.id, time.Now()); err != nil {
		return err
	}
	v.mu.Lock()
	v.handled = append(v.handled, b)
	v.mu.Unlock()
	return nil
}

func (v *fakeVehicle) SetPlan(plan []model.Instruction) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, in := range plan {
		if in.Action == model.ActionPickup && in.Booking != nil {
			_ = in.Booking.Queue(v.id, time.Now())
		}
	}
	v.plan = plan
}

func (v *fakeVehicle) Plan() []model.Instruction {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.plan
}

func vehicles(ids ...string) ([]Vehicle, []*fakeVehicle) {
	out := make([]Vehicle, len(ids))
	fakes := make([]*fakeVehicle, len(ids))
	for i, id := range ids {
		fakes[i] = &fakeVehicle{id: id}
		out[i] = fakes[i]
	}
	return out, fakes
}

func bookingsAlong(n int) []*model.Booking {
	out := make([]*model.Booking, n)
	for i := range out {
		out[i] = &model.Booking{
			ID:     string(rune('a' + i)),
			Pickup: geo.AddMeters(depot, float64(i)*300, float64(i%3)*200),
		}
	}
	return out
}

// routeSolver spreads jobs round-robin over the vehicles and visits
// shipments in request order.
type routeSolver struct {
	mu            sync.Mutex
	failShipments bool
	requests      []vrp.Request
}

func (s *routeSolver) Solve(_ context.Context, body []byte) ([]byte, error) {
	var req vrp.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.requests = append(s.requests, req)
	fail := s.failShipments
	s.mu.Unlock()

	res := vrp.Response{}
	if len(req.Jobs) > 0 {
		routes := make([]vrp.Route, len(req.Vehicles))
		for i, v := range req.Vehicles {
			routes[i] = vrp.Route{Vehicle: v.ID, Steps: []vrp.Step{{Type: vrp.StepStart}}}
		}
		for i, j := range req.Jobs {
			r := &routes[i%len(routes)]
			r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepJob, ID: j.ID, Location: j.Location})
		}
		res.Routes = routes
		return json.Marshal(res)
	}
	if fail {
		return nil, &vrp.StatusError{Code: 400, Body: "infeasible"}
	}
	r := vrp.Route{Vehicle: req.Vehicles[0].ID, Steps: []vrp.Step{{Type: vrp.StepStart}}}
	for i, sh := range req.Shipments {
		r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepPickup, ID: sh.Pickup.ID, Location: sh.Pickup.Location, Arrival: int64(100 * (i + 1))})
	}
	for _, sh := range req.Shipments {
		r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepDelivery, ID: sh.Delivery.ID, Location: sh.Delivery.Location})
	}
	r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepEnd})
	res.Routes = []vrp.Route{r}
	return json.Marshal(res)
}

func newPlanner(s vrp.Solver, store vrp.PlanSaver) *vrp.Planner {
	cfg := vrp.Config{Backoff: time.Millisecond, PollInterval: time.Millisecond, MaxAttempts: 1}
	return vrp.NewPlanner(cfg, s, nil, store, logger.NopLogger{})
}

func TestStandardRoundRobin(t *testing.T) {
	vs, fakes := vehicles("v1", "v2", "v3")
	d := NewStandard(vs, logger.NopLogger{})
	batch := bookingsAlong(4)

	out, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, "v1", batch[3].TruckID())
	assert.Equal(t, batch[0].TruckID(), batch[3].TruckID())
	assert.Len(t, fakes[0].handled, 2)
	assert.Len(t, fakes[1].handled, 1)
	assert.Len(t, fakes[2].handled, 1)

	// rotation continues across batches
	next := &model.Booking{ID: "z", Pickup: depot}
	_, err = d.Dispatch(context.Background(), []*model.Booking{next})
	require.NoError(t, err)
	assert.Equal(t, "v2", next.TruckID())
}

func TestStandardSkipsHandledBookings(t *testing.T) {
	vs, _ := vehicles("v1")
	d := NewStandard(vs, logger.NopLogger{})
	b := &model.Booking{ID: "x", Pickup: depot}
	require.NoError(t, b.Assign("other", time.Now()))
	out, err := d.Dispatch(context.Background(), []*model.Booking{b})
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestSimpleGeographicSplit(t *testing.T) {
	batch := bookingsAlong(25)
	for _, size := range []int{1, 4, 7, 25, 100} {
		chunks := SimpleGeographicSplit(batch, size)
		seen := map[string]int{}
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), size)
			assert.NotEmpty(t, c)
			for _, b := range c {
				seen[b.ID]++
			}
		}
		assert.Len(t, seen, 25, "size %d", size)
		for id, n := range seen {
			assert.Equal(t, 1, n, "booking %s", id)
		}
	}
	assert.Nil(t, SimpleGeographicSplit(nil, 3))
}

func subResult(bookings []*model.Booking, end int64) SubResult {
	r := vrp.Route{Steps: []vrp.Step{{Type: vrp.StepStart}}}
	for i := range bookings {
		r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepPickup, ID: 2 * i, Arrival: int64(10 * (i + 1))})
	}
	for i := range bookings {
		r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepDelivery, ID: 2*i + 1, Arrival: end - 10})
	}
	r.Steps = append(r.Steps, vrp.Step{Type: vrp.StepEnd, Arrival: end})
	return SubResult{Response: &vrp.Response{Routes: []vrp.Route{r}}, Bookings: bookings}
}

func TestCombineSubResults(t *testing.T) {
	batch := bookingsAlong(5)
	res, all := CombineSubResults([]SubResult{
		subResult(batch[:2], 100),
		subResult(batch[2:], 300),
	})
	require.Len(t, all, 5)
	require.Len(t, res.Routes, 1)
	steps := res.Routes[0].Steps

	ids := map[string]bool{}
	var starts, ends int
	for _, st := range steps {
		switch st.Type {
		case vrp.StepStart:
			starts++
		case vrp.StepEnd:
			ends++
		default:
			key := st.Type + string(rune(st.ID))
			assert.False(t, ids[key], "duplicate step id %d", st.ID)
			ids[key] = true
		}
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.Equal(t, int64(400), steps[len(steps)-1].Arrival)
	assert.NotEmpty(t, res.Raw)

	plan := vrp.Instructions(res, all, []model.Action{model.ActionPickup})
	require.Len(t, plan, 5)
	for i, in := range plan {
		assert.Equal(t, batch[i].ID, in.BookingID())
	}
}

func TestGroupByPostalCode(t *testing.T) {
	batch := bookingsAlong(6)
	codes := []string{"111", "222", "111", "", "222", "111"}
	for i, b := range batch {
		b.PostalCode = codes[i]
	}
	assert.Len(t, GroupByPostalCode(batch, 10), 6)

	groups := GroupByPostalCode(batch, 3)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 3)
	assert.Len(t, groups[1], 2)
	assert.Equal(t, []*model.Booking{batch[3]}, groups[2])
}

func TestJobsFromGroupsSplitsOversizedGroups(t *testing.T) {
	batch := bookingsAlong(5)
	one := func(*model.Booking, []string) []int { return []int{1} }
	jobs, members := jobsFromGroups([][]*model.Booking{batch}, 2, []string{capacity.DimCount}, one)
	require.Len(t, jobs, 3)
	require.Len(t, members, 3)
	assert.Equal(t, []int{2}, jobs[0].Pickup)
	assert.Equal(t, 2*vrp.ServiceSeconds, jobs[0].Service)
	assert.Equal(t, []int{1}, jobs[2].Pickup)
	for i, j := range jobs {
		assert.Equal(t, i, j.ID)
	}
}

func TestVroomDispatch(t *testing.T) {
	vs, fakes := vehicles("v1", "v2")
	rec := &events.Recorder{}
	store := planstore.NewMemoryStore()
	solver := &routeSolver{}
	d := NewVroom(VroomConfig{
		ExperimentID: "exp",
		FleetID:      "f1",
		Planner:      newPlanner(solver, store),
		Events:       rec,
	}, vs, logger.NopLogger{})

	batch := bookingsAlong(4)
	out, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	for _, b := range batch {
		assert.Equal(t, model.BookingQueued, b.Status())
	}
	assert.NotEmpty(t, fakes[0].Plan())
	assert.NotEmpty(t, fakes[1].Plan())
	assert.Len(t, rec.OfKind(events.KindPlanComputed), 2)

	stored, err := store.LoadPlan(context.Background(), "exp", "v1")
	require.NoError(t, err)
	assert.Len(t, stored.BookingIDs, 2)
}

func TestVroomReportsTruckFailure(t *testing.T) {
	vs, _ := vehicles("v1", "v2")
	rec := &events.Recorder{}
	d := NewVroom(VroomConfig{
		FleetID: "f1",
		Planner: newPlanner(&routeSolver{failShipments: true}, nil),
		Events:  rec,
	}, vs, logger.NopLogger{})

	batch := bookingsAlong(4)
	out, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Empty(t, out)
	errs := rec.OfKind(events.KindDispatchError)
	require.Len(t, errs, 2)
	for _, e := range errs {
		de := e.(events.DispatchError)
		assert.Contains(t, de.Message, "infeasible")
		assert.Contains(t, de.Message, "truck "+de.TruckID+": ")
	}
}

func TestTruckErrorUnwraps(t *testing.T) {
	cause := &vrp.StatusError{Code: 400, Body: "infeasible"}
	err := error(&TruckError{TruckID: "v1", Err: fmt.Errorf("partition area-0: %w", cause)})
	var se *vrp.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 400, se.Code)
	assert.Equal(t, "truck v1: partition area-0: solver responded 400: infeasible", err.Error())
}

func TestVroomStopsWhenCancelled(t *testing.T) {
	vs, _ := vehicles("v1")
	solver := &routeSolver{}
	d := NewVroom(VroomConfig{
		Planner:     newPlanner(solver, nil),
		ShouldAbort: func() bool { return true },
	}, vs, logger.NopLogger{})

	_, err := d.Dispatch(context.Background(), bookingsAlong(3))
	assert.True(t, errors.Is(err, vrp.ErrPlanningCancelled))
	assert.Empty(t, solver.requests)
}

func TestVroomPartitionsLargeBatches(t *testing.T) {
	vs, _ := vehicles("v1")
	rec := &events.Recorder{}
	s := settings.Default()
	s.Solver.MaxShipments = 2
	d := NewVroom(VroomConfig{
		Settings: s,
		Planner:  newPlanner(&routeSolver{}, nil),
		Events:   rec,
	}, vs, logger.NopLogger{})

	batch := bookingsAlong(5)
	plan, err := d.PlanTruck(context.Background(), vs[0], batch)
	require.NoError(t, err)
	require.Len(t, rec.OfKind(events.KindPartitionsComputed), 1)

	seen := map[string]bool{}
	starts := 0
	for _, in := range plan {
		if in.Action == model.ActionStart {
			starts++
		}
		if in.Action == model.ActionPickup {
			seen[in.BookingID()] = true
		}
	}
	assert.Len(t, seen, 5)
	assert.Equal(t, 1, starts)
}

func TestVroomSplitsAtPlannerLimit(t *testing.T) {
	vs, _ := vehicles("v1")
	s := settings.Default()
	s.Solver.MaxShipments = 5
	solver := &routeSolver{}
	cfg := vrp.Config{Backoff: time.Millisecond, PollInterval: time.Millisecond, MaxAttempts: 1, MaxShipments: 2}
	d := NewVroom(VroomConfig{
		Settings: s,
		Planner:  vrp.NewPlanner(cfg, solver, nil, nil, logger.NopLogger{}),
	}, vs, logger.NopLogger{})

	plan, err := d.PlanTruck(context.Background(), vs[0], bookingsAlong(5))
	require.NoError(t, err)
	pickups := 0
	for _, in := range plan {
		if in.Action == model.ActionPickup {
			pickups++
		}
	}
	assert.Equal(t, 5, pickups)
	require.NotEmpty(t, solver.requests)
	for _, req := range solver.requests {
		assert.LessOrEqual(t, len(req.Shipments), 2)
	}
}

func TestReplayDispatch(t *testing.T) {
	vs, fakes := vehicles("v1", "v2")
	store := planstore.NewMemoryStore()
	raw, err := json.Marshal(vrp.Response{Routes: []vrp.Route{{Steps: []vrp.Step{
		{Type: vrp.StepStart},
		{Type: vrp.StepPickup, ID: 2},
		{Type: vrp.StepPickup, ID: 0},
		{Type: vrp.StepDelivery, ID: 1},
		{Type: vrp.StepDelivery, ID: 3},
		{Type: vrp.StepEnd},
	}}}})
	require.NoError(t, err)
	require.NoError(t, store.SavePlan(context.Background(), planstore.PlanRecord{
		ExperimentID: "old",
		TruckID:      "v1",
		Plan:         raw,
		BookingIDs:   []string{"a", "b"},
	}))

	rec := &events.Recorder{}
	d := NewReplay("old", "f1", vs, store, rec, logger.NopLogger{})
	batch := bookingsAlong(3)
	out, err := d.Dispatch(context.Background(), batch)
	require.NoError(t, err)
	assert.ElementsMatch(t, batch[:2], out)

	plan := fakes[0].Plan()
	require.Len(t, plan, 6)
	assert.Equal(t, "b", plan[1].BookingID())
	assert.Equal(t, "a", plan[2].BookingID())
	assert.Empty(t, fakes[1].Plan())
	assert.Equal(t, model.BookingNew, batch[2].Status())

	computed := rec.OfKind(events.KindPlanComputed)
	require.Len(t, computed, 1)
	assert.True(t, computed[0].(events.PlanComputed).Replayed)
}

func TestFleetFlush(t *testing.T) {
	vs, _ := vehicles("v1", "v2")
	f := NewFleet(FleetConfig{Name: "f1"}, vs, NewStandard(vs, logger.NopLogger{}), logger.NopLogger{})
	defer f.Close()
	sub := f.Dispatched().Subscribe()

	n, err := f.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	batch := bookingsAlong(3)
	for _, b := range batch {
		f.Handle(b)
	}
	assert.Equal(t, 3, f.Buffered())

	n, err = f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Zero(t, f.Buffered())
	for i := range batch {
		select {
		case b := <-sub:
			assert.Equal(t, batch[i], b)
		case <-time.After(time.Second):
			t.Fatal("dispatched booking not published")
		}
	}
}

// idleDispatcher hands nothing out.
type idleDispatcher struct{ err error }

func (idleDispatcher) Name() string { return "idle" }
func (d idleDispatcher) Dispatch(context.Context, []*model.Booking) ([]*model.Booking, error) {
	return nil, d.err
}

func TestFleetRetriesUndispatchedBookings(t *testing.T) {
	vs, _ := vehicles("v1")
	rec := &events.Recorder{}
	f := NewFleet(FleetConfig{Name: "f1", MaxAttempts: 2, Events: rec}, vs, idleDispatcher{err: errors.New("solver down")}, logger.NopLogger{})
	defer f.Close()
	b := &model.Booking{ID: "x", Pickup: depot}
	f.Handle(b)

	_, err := f.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, f.Buffered())
	assert.Equal(t, model.BookingNew, b.Status())

	_, err = f.Flush(context.Background())
	require.Error(t, err)
	assert.Zero(t, f.Buffered())
	assert.Equal(t, model.BookingUnreachable, b.Status())

	var statuses []string
	for _, e := range rec.OfKind(events.KindBookingStatusChanged) {
		statuses = append(statuses, e.(events.BookingStatusChanged).Status)
	}
	assert.Equal(t, []string{"unreachable"}, statuses)
	assert.Len(t, rec.OfKind(events.KindDispatchError), 2)
}

func TestFleetDropsBatchWhenCancelled(t *testing.T) {
	vs, _ := vehicles("v1")
	f := NewFleet(FleetConfig{Name: "f1"}, vs, idleDispatcher{err: vrp.ErrPlanningCancelled}, logger.NopLogger{})
	defer f.Close()
	b := &model.Booking{ID: "x", Pickup: depot}
	f.Handle(b)

	_, err := f.Flush(context.Background())
	assert.ErrorIs(t, err, vrp.ErrPlanningCancelled)
	assert.Zero(t, f.Buffered())
	assert.Equal(t, model.BookingNew, b.Status())
}

func TestFleetRunFlushesEveryWindow(t *testing.T) {
	vs, _ := vehicles("v1")
	f := NewFleet(FleetConfig{Name: "f1", Window: 10 * time.Millisecond}, vs, NewStandard(vs, logger.NopLogger{}), logger.NopLogger{})
	defer f.Close()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.Run(ctx) }()

	b := &model.Booking{ID: "x", Pickup: depot}
	f.Handle(b)
	assert.Eventually(t, func() bool { return b.TruckID() == "v1" }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}
