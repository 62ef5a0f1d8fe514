package metrics

import (
	"context"
	"sync"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/events"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Collector turns simulation events into sink records. Truck snapshots are
// assembled from movement, status and cargo events.
type Collector struct {
	sink coremetrics.MetricsSink
	log  logger.Logger

	mu     sync.Mutex
	trucks map[string]*coremetrics.VehicleStateEvent
}

// NewCollector returns a collector feeding sink.
func NewCollector(sink coremetrics.MetricsSink) *Collector {
	return &Collector{
		sink:   sink,
		log:    logger.New("metrics-collector"),
		trucks: make(map[string]*coremetrics.VehicleStateEvent),
	}
}

func (c *Collector) truck(m events.Meta, id string) *coremetrics.VehicleStateEvent {
	st, ok := c.trucks[id]
	if !ok {
		st = &coremetrics.VehicleStateEvent{TruckID: id}
		c.trucks[id] = st
	}
	st.ExperimentID = m.ExperimentID
	if m.FleetID != "" {
		st.FleetID = m.FleetID
	}
	st.Time = m.At
	return st
}

func fills(cs []capacity.Compartment) []coremetrics.CompartmentFill {
	out := make([]coremetrics.CompartmentFill, len(cs))
	for i, c := range cs {
		out[i] = coremetrics.CompartmentFill{Index: c.Index, FillLiters: c.FillLiters, FillKg: c.FillKg}
		if c.CapacityLiters != nil {
			out[i].CapacityLiters = *c.CapacityLiters
		}
	}
	return out
}

// Handle records a single event.
func (c *Collector) Handle(ev events.Event) error {
	switch e := ev.(type) {
	case events.VehicleMoved:
		return c.state(e.Meta, e.TruckID, func(st *coremetrics.VehicleStateEvent) {
			st.Position = e.Position
			st.Status = e.Status
			st.DistanceMeters = e.DistanceMeters
			st.CO2Kg = e.CO2Kg
		})
	case events.VehicleStatusChanged:
		return c.state(e.Meta, e.TruckID, func(st *coremetrics.VehicleStateEvent) {
			st.Status = e.To
		})
	case events.CargoChanged:
		return c.state(e.Meta, e.TruckID, func(st *coremetrics.VehicleStateEvent) {
			st.Cargo = e.Cargo
			st.Queue = e.Queue
			st.Delivered = e.Delivered
			st.Compartments = fills(e.Compartments)
		})
	case events.BookingStatusChanged:
		if r, ok := c.sink.(coremetrics.BookingRecorder); ok {
			return r.RecordBooking(coremetrics.BookingEvent{
				ExperimentID: e.ExperimentID,
				BookingID:    e.BookingID,
				TruckID:      e.TruckID,
				Status:       e.Status,
				Time:         e.At,
			})
		}
	case events.PlanComputed:
		if r, ok := c.sink.(coremetrics.PlanRecorder); ok {
			return r.RecordPlan(coremetrics.PlanEvent{
				ExperimentID: e.ExperimentID,
				FleetID:      e.FleetID,
				TruckID:      e.TruckID,
				Steps:        e.Steps,
				Bookings:     e.Bookings,
				Replayed:     e.Replayed,
				Time:         e.At,
			})
		}
	case events.DispatchError:
		if r, ok := c.sink.(coremetrics.DispatchErrorRecorder); ok {
			return r.RecordDispatchError(coremetrics.DispatchErrorEvent{
				ExperimentID: e.ExperimentID,
				FleetID:      e.FleetID,
				TruckID:      e.TruckID,
				Message:      e.Message,
				Time:         e.At,
			})
		}
	case events.PartitionsComputed:
		if r, ok := c.sink.(coremetrics.PartitionRecorder); ok {
			return r.RecordPartitions(coremetrics.PartitionEvent{
				ExperimentID: e.ExperimentID,
				TruckID:      e.TruckID,
				Partitions:   e.Partitions,
				Bookings:     e.Bookings,
				Time:         e.At,
			})
		}
	}
	return nil
}

func (c *Collector) state(m events.Meta, truckID string, apply func(*coremetrics.VehicleStateEvent)) error {
	c.mu.Lock()
	st := c.truck(m, truckID)
	apply(st)
	snap := *st
	snap.Compartments = append([]coremetrics.CompartmentFill(nil), st.Compartments...)
	c.mu.Unlock()
	return c.sink.RecordVehicleState(snap)
}

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is cancelled or the bus is closed.
func StartEventCollector(ctx context.Context, bus *eventbus.Bus[events.Event], sink coremetrics.MetricsSink) {
	if bus == nil || sink == nil {
		return
	}
	c := NewCollector(sink)
	sub := bus.SubscribeBuffered(1024)
	go func() {
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := c.Handle(ev); err != nil {
					c.log.Warnf("record %s: %v", ev.Kind(), err)
				}
			}
		}
	}()
}
