package vehicle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
)

// atStartMeters is how close to the depot a truck must be to park.
const atStartMeters = 1.0

type loadRecord struct {
	comp *capacity.Compartment
	load model.Load
}

// Truck is a collection vehicle. Its state is only mutated through its
// methods and the navigation goroutine it owns.
type Truck struct {
	cfg Config
	log logger.Logger

	mu           sync.Mutex
	position     geo.Position
	destination  *geo.Position
	status       Status
	booking      *model.Booking
	queue        []*model.Booking
	cargo        []*model.Booking
	delivered    []*model.Booking
	compartments []*capacity.Compartment
	loads        map[*model.Booking]loadRecord
	plan         []model.Instruction
	instruction  *model.Instruction
	forceUnload  bool
	distance     float64
	co2          float64

	ctx       context.Context
	cancel    context.CancelFunc
	navSeq    int
	navCancel context.CancelFunc
	wg        sync.WaitGroup
}

// New returns a truck parked at cfg.Start.
func New(cfg Config) *Truck {
	cfg.SetDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Truck{
		cfg:          cfg,
		log:          logger.With(cfg.Logger, "truck_id", cfg.ID),
		position:     cfg.Start,
		status:       StatusReady,
		compartments: capacity.CreateCompartments(cfg.Compartments),
		loads:        make(map[*model.Booking]loadRecord),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (t *Truck) ID() string      { return t.cfg.ID }
func (t *Truck) FleetID() string { return t.cfg.FleetID }

// Position returns the current position.
func (t *Truck) Position() geo.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.position
}

// Destination returns the target of the current leg or nil when idle.
func (t *Truck) Destination() *geo.Position {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.destination == nil {
		return nil
	}
	d := *t.destination
	return &d
}

// Status returns the current state.
func (t *Truck) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// CapacityDimensions returns the remaining capacity per dimension.
func (t *Truck) CapacityDimensions() ([]string, []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return capacity.Dimensions(t.compartments, t.cfg.ParcelCapacity, len(t.cargo))
}

// Queue returns a copy of the bookings waiting to be served.
func (t *Truck) Queue() []*model.Booking {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*model.Booking(nil), t.queue...)
}

// Cargo returns a copy of the picked up, undelivered bookings.
func (t *Truck) Cargo() []*model.Booking {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*model.Booking(nil), t.cargo...)
}

// Delivered returns a copy of the delivered bookings.
func (t *Truck) Delivered() []*model.Booking {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*model.Booking(nil), t.delivered...)
}

// Plan returns the remaining instructions.
func (t *Truck) Plan() []model.Instruction {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Instruction(nil), t.plan...)
}

// Idle reports whether the truck has nothing left to do.
func (t *Truck) Idle() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.booking == nil && len(t.queue) == 0 && len(t.cargo) == 0 && len(t.plan) == 0 &&
		(t.status == StatusReady || t.status == StatusParked)
}

// Wait blocks until no navigation leg is running.
func (t *Truck) Wait() { t.wg.Wait() }

// Stop cancels navigation. The truck keeps its state.
func (t *Truck) Stop() {
	t.cancel()
	t.wg.Wait()
}

// HandleBooking starts serving b when the truck is free, otherwise queues it.
func (t *Truck) HandleBooking(b *model.Booking) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.cfg.Clock.Now()
	if t.booking == nil && len(t.plan) == 0 && !t.movingLocked() {
		if err := b.Assign(t.cfg.ID, now); err != nil {
			return err
		}
		t.emitBookingLocked(b)
		t.booking = b
		t.navigateLocked(b.Pickup, StatusToPickup)
		return nil
	}
	if err := b.Queue(t.cfg.ID, now); err != nil {
		return err
	}
	t.emitBookingLocked(b)
	t.queue = append(t.queue, b)
	t.emitCargoLocked()
	return nil
}

func (t *Truck) movingLocked() bool {
	return t.status == StatusToPickup || t.status == StatusToDelivery
}

// SetPlan replaces the current plan. Bookings referenced by pickups are
// queued on the truck; those held by another truck are dropped from the
// plan. An idle truck starts executing at once.
func (t *Truck) SetPlan(plan []model.Instruction) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.cfg.Clock.Now()
	kept := make([]model.Instruction, 0, len(plan))
	for _, in := range plan {
		b := in.Booking
		if in.Action == model.ActionPickup && b != nil && !t.inCargoLocked(b) && !t.inQueueLocked(b) && b != t.booking {
			if err := b.Queue(t.cfg.ID, now); err != nil {
				t.log.Warnf("plan skips booking %s: %v", b.ID, err)
				continue
			}
			t.emitBookingLocked(b)
			t.queue = append(t.queue, b)
		}
		kept = append(kept, in)
	}
	t.plan = kept
	t.emitCargoLocked()
	if t.booking == nil && !t.movingLocked() {
		t.nextLocked()
	}
}

// BuildSequentialPlanFromQueue returns start, one pickup per queued booking
// in queue order, a delivery and end.
func (t *Truck) BuildSequentialPlanFromQueue() []model.Instruction {
	t.mu.Lock()
	defer t.mu.Unlock()
	plan := make([]model.Instruction, 0, len(t.queue)+3)
	plan = append(plan, model.Instruction{Action: model.ActionStart})
	for _, b := range t.queue {
		plan = append(plan, model.Instruction{Action: model.ActionPickup, Booking: b})
	}
	plan = append(plan,
		model.Instruction{Action: model.ActionDelivery},
		model.Instruction{Action: model.ActionEnd},
	)
	return plan
}

// HandlePostStop sends an idle truck home, or parks it when already there.
func (t *Truck) HandlePostStop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.postStopLocked()
}

func (t *Truck) postStopLocked() {
	t.booking = nil
	t.instruction = nil
	if geo.Distance(t.position, t.cfg.Start) <= atStartMeters {
		t.destination = nil
		t.setStatusLocked(StatusParked)
		return
	}
	t.navigateLocked(t.cfg.Start, StatusReturning)
}

// arrived is called by the navigation goroutine at the end of leg seq.
func (t *Truck) arrived(seq int, at geo.Position) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.navSeq {
		return
	}
	t.position = at
	t.destination = nil
	switch t.status {
	case StatusToPickup:
		b := t.booking
		t.pickupLocked()
		if len(t.plan) == 0 && b != nil && b.Destination != nil && !t.forceUnload {
			t.navigateLocked(*b.Destination, StatusToDelivery)
			return
		}
		t.booking = nil
		t.nextLocked()
	case StatusToDelivery:
		if t.booking != nil {
			t.dropOffLocked(t.booking)
			t.booking = nil
			t.nextLocked()
			return
		}
		t.unloadAtLocked(at)
		if len(t.cargo) > 0 {
			t.navigateLocked(t.unloadPositionLocked(nil), StatusToDelivery)
			return
		}
		t.nextLocked()
	case StatusReturning:
		t.postStopLocked()
	}
}

// nextLocked selects the next leg: a forced unload, then the plan, then the
// queue, then remaining cargo, and finally the way home.
func (t *Truck) nextLocked() {
	if t.forceUnload {
		t.forceUnload = false
		if len(t.cargo) > 0 {
			t.booking = nil
			t.navigateLocked(t.unloadPositionLocked(nil), StatusToDelivery)
			return
		}
	}
	for len(t.plan) > 0 {
		in := t.plan[0]
		t.plan = t.plan[1:]
		b := in.Booking
		switch in.Action {
		case model.ActionPickup:
			if b == nil || b.Status() == model.BookingUnreachable || t.inCargoLocked(b) {
				continue
			}
			if b.Status() == model.BookingDelivered {
				continue
			}
			if err := b.Assign(t.cfg.ID, t.cfg.Clock.Now()); err != nil {
				t.log.Warnf("skip pickup %s: %v", b.ID, err)
				t.removeFromQueueLocked(b)
				continue
			}
			t.emitBookingLocked(b)
			t.instruction = &in
			t.booking = b
			t.navigateLocked(b.Pickup, StatusToPickup)
			return
		case model.ActionDelivery:
			if b != nil && !t.inCargoLocked(b) {
				continue
			}
			if b == nil && len(t.cargo) == 0 {
				continue
			}
			t.instruction = &in
			t.booking = b
			t.navigateLocked(t.unloadPositionLocked(b), StatusToDelivery)
			return
		default:
			continue
		}
	}
	if len(t.queue) > 0 {
		b := t.queue[0]
		if err := b.Assign(t.cfg.ID, t.cfg.Clock.Now()); err != nil {
			t.log.Warnf("drop queued booking %s: %v", b.ID, err)
			t.queue = t.queue[1:]
			t.nextLocked()
			return
		}
		t.emitBookingLocked(b)
		t.booking = b
		t.navigateLocked(b.Pickup, StatusToPickup)
		return
	}
	if len(t.cargo) > 0 {
		t.booking = nil
		t.navigateLocked(t.unloadPositionLocked(nil), StatusToDelivery)
		return
	}
	t.postStopLocked()
}

// unloadPositionLocked returns where b, or the oldest cargo when b is nil,
// is dropped off. Bookings without destination unload at the depot.
func (t *Truck) unloadPositionLocked(b *model.Booking) geo.Position {
	if b == nil && len(t.cargo) > 0 {
		b = t.cargo[0]
	}
	if b != nil && b.Destination != nil {
		return *b.Destination
	}
	return t.cfg.Start
}

// unloadAtLocked delivers the cargo whose unload position is pos. A bulk
// unload visits every distinct destination in cargo order.
func (t *Truck) unloadAtLocked(pos geo.Position) {
	var batch []*model.Booking
	for _, c := range t.cargo {
		if geo.Distance(t.unloadPositionLocked(c), pos) <= atStartMeters {
			batch = append(batch, c)
		}
	}
	if len(batch) == 0 && len(t.cargo) > 0 {
		batch = t.cargo[:1]
	}
	t.deliverLocked(batch)
}

// Pickup loads the active booking and any queued booking within the pickup
// radius. It is a no-op without an active booking.
func (t *Truck) Pickup() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pickupLocked()
}

func (t *Truck) pickupLocked() {
	b := t.booking
	if b == nil || t.inCargoLocked(b) {
		return
	}
	t.loadLocked(b)
	for _, q := range append([]*model.Booking(nil), t.queue...) {
		if q.Status() == model.BookingPickedUp || t.inCargoLocked(q) {
			continue
		}
		if geo.Distance(t.position, q.Pickup) <= t.cfg.PickupRadiusMeters {
			t.loadLocked(q)
		}
	}
	if capacity.AnyFull(t.compartments) {
		t.log.Infof("compartment full, unloading before next pickup")
		t.forceUnload = true
	}
	t.emitCargoLocked()
}

func (t *Truck) loadLocked(b *model.Booking) {
	now := t.cfg.Clock.Now()
	load := capacity.LoadOf(b, t.cfg.Settings)
	comp := capacity.SelectBestCompartment(t.compartments, b.RecyclingType, load)
	if comp == nil {
		t.log.Warnf("no compartment accepts %q for booking %s", b.RecyclingType, b.ID)
	} else {
		capacity.ApplyLoad(comp, load)
		b.SetCompartment(comp.Index)
	}
	t.loads[b] = loadRecord{comp: comp, load: load}
	b.MarkPickedUp(now)
	t.emitBookingLocked(b)
	t.cargo = append(t.cargo, b)
	t.removeFromQueueLocked(b)
}

// DropOff delivers b, or the whole cargo when b is nil.
func (t *Truck) DropOff(b *model.Booking) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropOffLocked(b)
}

func (t *Truck) dropOffLocked(b *model.Booking) {
	var batch []*model.Booking
	if b == nil {
		batch = append(batch, t.cargo...)
	} else if t.inCargoLocked(b) {
		batch = []*model.Booking{b}
	}
	t.deliverLocked(batch)
}

func (t *Truck) deliverLocked(batch []*model.Booking) {
	batch = append([]*model.Booking(nil), batch...)
	now := t.cfg.Clock.Now()
	for _, d := range batch {
		if rec, ok := t.loads[d]; ok {
			if rec.comp != nil {
				capacity.ReleaseLoad(rec.comp, rec.load)
			}
			delete(t.loads, d)
		}
		d.MarkDelivered(now)
		t.emitBookingLocked(d)
		t.cargo = removeBooking(t.cargo, d)
		t.removeFromQueueLocked(d)
		t.delivered = append(t.delivered, d)
	}
	if len(batch) > 0 {
		t.emitCargoLocked()
	}
}

func (t *Truck) inCargoLocked(b *model.Booking) bool {
	for _, c := range t.cargo {
		if c == b {
			return true
		}
	}
	return false
}

func (t *Truck) inQueueLocked(b *model.Booking) bool {
	for _, q := range t.queue {
		if q == b {
			return true
		}
	}
	return false
}

func (t *Truck) removeFromQueueLocked(b *model.Booking) {
	t.queue = removeBooking(t.queue, b)
}

func removeBooking(list []*model.Booking, b *model.Booking) []*model.Booking {
	out := list[:0]
	for _, x := range list {
		if x != b {
			out = append(out, x)
		}
	}
	return out
}

func (t *Truck) setStatusLocked(s Status) {
	if t.status == s {
		return
	}
	prev := t.status
	t.status = s
	t.cfg.Events.Publish(events.VehicleStatusChanged{
		Meta:    t.metaLocked(),
		TruckID: t.cfg.ID,
		From:    string(prev),
		To:      string(s),
	})
}

func (t *Truck) metaLocked() events.Meta {
	return events.Meta{ExperimentID: t.cfg.ExperimentID, FleetID: t.cfg.FleetID, At: t.cfg.Clock.Now()}
}

func (t *Truck) emitBookingLocked(b *model.Booking) {
	t.cfg.Events.Publish(events.BookingStatusChanged{
		Meta:      t.metaLocked(),
		BookingID: b.ID,
		TruckID:   t.cfg.ID,
		Status:    b.Status().String(),
	})
}

func (t *Truck) emitCargoLocked() {
	t.cfg.Events.Publish(events.CargoChanged{
		Meta:         t.metaLocked(),
		TruckID:      t.cfg.ID,
		Cargo:        len(t.cargo),
		Queue:        len(t.queue),
		Delivered:    len(t.delivered),
		Compartments: capacity.Clone(t.compartments),
	})
}

// Snapshot is an immutable view of a truck.
type Snapshot struct {
	ID             string                 `json:"id"`
	FleetID        string                 `json:"fleetId"`
	Status         Status                 `json:"status"`
	Position       geo.Position           `json:"position"`
	Destination    *geo.Position          `json:"destination,omitempty"`
	Queue          int                    `json:"queue"`
	Cargo          int                    `json:"cargo"`
	Delivered      int                    `json:"delivered"`
	PlanLength     int                    `json:"planLength"`
	DistanceMeters float64                `json:"distanceMeters"`
	CO2Kg          float64                `json:"co2Kg"`
	Compartments   []capacity.Compartment `json:"compartments"`
	At             time.Time              `json:"at"`
}

// Snapshot returns the current state of the truck.
func (t *Truck) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Snapshot{
		ID:             t.cfg.ID,
		FleetID:        t.cfg.FleetID,
		Status:         t.status,
		Position:       t.position,
		Queue:          len(t.queue),
		Cargo:          len(t.cargo),
		Delivered:      len(t.delivered),
		PlanLength:     len(t.plan),
		DistanceMeters: t.distance,
		CO2Kg:          t.co2,
		Compartments:   capacity.Clone(t.compartments),
		At:             t.cfg.Clock.Now(),
	}
	if t.destination != nil {
		d := *t.destination
		s.Destination = &d
	}
	return s
}

func (t *Truck) String() string {
	return fmt.Sprintf("truck %s (%s)", t.cfg.ID, t.Status())
}
