// Package monitoring reports simulation failures to an error tracker.
package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Monitor defines methods used for error reporting.
type Monitor interface {
	CaptureError(err error, tags map[string]string)
	// Recover must be deferred directly. It reports and re-raises panics.
	Recover()
	Flush(timeout time.Duration)
}

// Nop discards everything.
type Nop struct{}

func (Nop) CaptureError(error, map[string]string) {}
func (Nop) Recover()                              {}
func (Nop) Flush(time.Duration)                   {}

// DispatchFailure is the error captured for a DispatchError event.
type DispatchFailure struct {
	Fleet   string
	Truck   string
	Message string
}

func (e *DispatchFailure) Error() string {
	if e.Truck == "" {
		return fmt.Sprintf("fleet %s: %s", e.Fleet, e.Message)
	}
	return fmt.Sprintf("fleet %s truck %s: %s", e.Fleet, e.Truck, e.Message)
}

// Tags returns the tags attached to a captured event.
func Tags(m events.Meta, truckID string) map[string]string {
	tags := map[string]string{"experiment": m.ExperimentID}
	if m.FleetID != "" {
		tags["fleet"] = m.FleetID
	}
	if truckID != "" {
		tags["truck"] = truckID
	}
	return tags
}

// Watch captures every DispatchError published on bus until ctx is done or
// the bus is closed.
func Watch(ctx context.Context, bus *eventbus.Bus[events.Event], m Monitor) *sync.WaitGroup {
	sub := bus.SubscribeBuffered(64)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				de, isErr := ev.(events.DispatchError)
				if !isErr {
					continue
				}
				m.CaptureError(&DispatchFailure{Fleet: de.FleetID, Truck: de.TruckID, Message: de.Message}, Tags(de.Meta, de.TruckID))
			}
		}
	}()
	return &wg
}
