package dispatch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/vrp"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// DefaultWindow is the buffering window of a fleet.
const DefaultWindow = time.Second

// DefaultMaxAttempts is the number of windows a booking may stay
// undispatched before it is marked unreachable.
const DefaultMaxAttempts = 3

// planTimeout bounds a single dispatch window.
const planTimeout = 5 * time.Minute

// FleetConfig configures a Fleet.
type FleetConfig struct {
	Name         string
	ExperimentID string
	Window       time.Duration
	MaxAttempts  int
	Events       events.Publisher
}

// Fleet owns a group of vehicles. Incoming bookings are buffered and handed
// to the dispatcher once per window, in arrival order.
type Fleet struct {
	cfg        FleetConfig
	vehicles   []Vehicle
	dispatcher Dispatcher
	dispatched *eventbus.Bus[*model.Booking]
	log        logger.Logger

	mu     sync.Mutex
	buffer []*model.Booking
	// flushing serializes dispatch windows and guards attempts.
	flushing sync.Mutex
	attempts map[*model.Booking]int
}

// NewFleet returns a fleet dispatching with d.
func NewFleet(cfg FleetConfig, vehicles []Vehicle, d Dispatcher, log logger.Logger) *Fleet {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	return &Fleet{
		cfg:        cfg,
		vehicles:   vehicles,
		dispatcher: d,
		dispatched: eventbus.New[*model.Booking](),
		log:        log,
		attempts:   make(map[*model.Booking]int),
	}
}

func (f *Fleet) Name() string { return f.cfg.Name }

// Vehicles returns the fleet's vehicles.
func (f *Fleet) Vehicles() []Vehicle { return f.vehicles }

// Dispatched streams every booking handed to a vehicle.
func (f *Fleet) Dispatched() *eventbus.Bus[*model.Booking] { return f.dispatched }

// Handle buffers b for the next window.
func (f *Fleet) Handle(b *model.Booking) {
	f.mu.Lock()
	f.buffer = append(f.buffer, b)
	n := len(f.buffer)
	f.mu.Unlock()
	bufferedBookings.WithLabelValues(f.cfg.Name).Set(float64(n))
}

// Buffered returns the number of bookings waiting for dispatch.
func (f *Fleet) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.buffer)
}

// Run flushes the buffer every window until ctx is done. Planning
// cancellation stops the loop.
func (f *Fleet) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := f.Flush(ctx); errors.Is(err, vrp.ErrPlanningCancelled) {
				f.log.Infof("fleet %s: planning cancelled", f.cfg.Name)
				return nil
			}
		}
	}
}

// Flush dispatches the buffered bookings and publishes the dispatched ones.
// Bookings the dispatcher did not hand out go back to the front of the
// buffer, up to MaxAttempts windows, and are then marked unreachable.
// Nothing is retried once planning is cancelled.
func (f *Fleet) Flush(ctx context.Context) (int, error) {
	f.flushing.Lock()
	defer f.flushing.Unlock()

	f.mu.Lock()
	batch := f.buffer
	f.buffer = nil
	f.mu.Unlock()
	bufferedBookings.WithLabelValues(f.cfg.Name).Set(0)
	if len(batch) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, planTimeout)
	defer cancel()
	start := time.Now()
	out, err := f.dispatcher.Dispatch(ctx, batch)
	dispatchLatency.WithLabelValues(f.cfg.Name, f.dispatcher.Name()).Observe(time.Since(start).Seconds())
	bookingsDispatched.WithLabelValues(f.cfg.Name, f.dispatcher.Name()).Add(float64(len(out)))
	for _, b := range out {
		f.dispatched.Publish(b)
	}
	cancelled := errors.Is(err, vrp.ErrPlanningCancelled) || errors.Is(err, context.Canceled)
	if !cancelled {
		f.retry(batch)
	}
	if err != nil && !cancelled {
		dispatchErrors.WithLabelValues(f.cfg.Name, f.dispatcher.Name()).Inc()
		f.log.Errorf("fleet %s: dispatch of %d bookings failed: %v", f.cfg.Name, len(batch), err)
		f.cfg.Events.Publish(events.DispatchError{
			Meta:    events.Meta{ExperimentID: f.cfg.ExperimentID, FleetID: f.cfg.Name, At: time.Now()},
			Message: err.Error(),
		})
	}
	f.log.Debugw("dispatch window", map[string]any{
		"fleet":      f.cfg.Name,
		"buffered":   len(batch),
		"dispatched": len(out),
	})
	return len(out), err
}

func (f *Fleet) retry(batch []*model.Booking) {
	var again []*model.Booking
	now := time.Now()
	for _, b := range batch {
		if b.Status() != model.BookingNew {
			delete(f.attempts, b)
			continue
		}
		f.attempts[b]++
		if f.attempts[b] < f.cfg.MaxAttempts {
			again = append(again, b)
			continue
		}
		delete(f.attempts, b)
		b.MarkUnreachable(now)
		f.log.Warnf("fleet %s: booking %s undispatched after %d windows, marked unreachable", f.cfg.Name, b.ID, f.cfg.MaxAttempts)
		f.cfg.Events.Publish(events.BookingStatusChanged{
			Meta:      events.Meta{ExperimentID: f.cfg.ExperimentID, FleetID: f.cfg.Name, At: now},
			BookingID: b.ID,
			Status:    b.Status().String(),
		})
	}
	if len(again) == 0 {
		return
	}
	f.mu.Lock()
	f.buffer = append(again, f.buffer...)
	n := len(f.buffer)
	f.mu.Unlock()
	bufferedBookings.WithLabelValues(f.cfg.Name).Set(float64(n))
}

// Close stops the dispatched stream.
func (f *Fleet) Close() { f.dispatched.Close() }
