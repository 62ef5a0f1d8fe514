package vehicle

import (
	"context"
	"time"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/routing"
)

// pausedPoll is the wall time between checks while the clock is frozen.
const pausedPoll = 50 * time.Millisecond

// navigateLocked starts a new leg towards to, cancelling the current one.
func (t *Truck) navigateLocked(to geo.Position, s Status) {
	if t.navCancel != nil {
		t.navCancel()
	}
	t.navSeq++
	seq := t.navSeq
	dest := to
	t.destination = &dest
	t.setStatusLocked(s)
	ctx, cancel := context.WithCancel(t.ctx)
	t.navCancel = cancel
	from := t.position
	t.wg.Add(1)
	go t.drive(ctx, seq, from, to)
}

// drive follows the route from -> to under the virtual clock. Routing
// failures are retried every RetryInterval until the leg is cancelled.
func (t *Truck) drive(ctx context.Context, seq int, from, to geo.Position) {
	defer t.wg.Done()
	route, ok := t.route(ctx, from, to)
	if !ok {
		return
	}
	clk := t.cfg.Clock
	start := clk.Now()
	for {
		elapsed := clk.Now().Sub(start).Seconds()
		pos, done := route.PositionAt(elapsed)
		if !t.moved(seq, pos) {
			return
		}
		if done {
			break
		}
		if clk.Multiplier() == 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(pausedPoll):
			}
			continue
		}
		if err := clk.Sleep(ctx, t.cfg.StepInterval); err != nil {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}
	t.arrived(seq, to)
}

func (t *Truck) route(ctx context.Context, from, to geo.Position) (routing.Route, bool) {
	for {
		r, err := t.cfg.Router.Route(ctx, from, to)
		if err == nil {
			return r, true
		}
		if ctx.Err() != nil {
			return routing.Route{}, false
		}
		t.log.Warnf("route %v -> %v failed, retrying: %v", from, to, err)
		select {
		case <-ctx.Done():
			return routing.Route{}, false
		case <-time.After(t.cfg.RetryInterval):
		}
	}
}

// moved records a new position for leg seq. It reports false when the leg
// has been superseded.
func (t *Truck) moved(seq int, pos geo.Position) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq != t.navSeq {
		return false
	}
	d := geo.Distance(t.position, pos)
	if d == 0 {
		return true
	}
	t.position = pos
	t.distance += d
	t.co2 += d / 1000 * t.cfg.CO2PerKm
	t.cfg.Events.Publish(events.VehicleMoved{
		Meta:           t.metaLocked(),
		TruckID:        t.cfg.ID,
		Position:       pos,
		Status:         string(t.status),
		DistanceMeters: t.distance,
		CO2Kg:          t.co2,
	})
	return true
}
