package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
)

// PromSink exposes truck state and planning outcomes as Prometheus metrics.
type PromSink struct {
	distance   *prometheus.GaugeVec
	co2        *prometheus.GaugeVec
	cargo      *prometheus.GaugeVec
	fill       *prometheus.GaugeVec
	bookings   *prometheus.CounterVec
	plans      *prometheus.CounterVec
	failures   *prometheus.CounterVec
	partitions prometheus.Histogram
}

// NewPromSink registers fleet metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// register adds c to reg, reusing an identical collector registered before.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_distance_meters",
			Help: "Distance driven by a truck",
		}, []string{"fleet", "truck_id"}),
		co2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_co2_kg",
			Help: "CO2 emitted by a truck",
		}, []string{"fleet", "truck_id"}),
		cargo: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_cargo_bookings",
			Help: "Bookings currently loaded on a truck",
		}, []string{"fleet", "truck_id"}),
		fill: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_compartment_fill_ratio",
			Help: "Volume fill ratio of a truck compartment",
		}, []string{"truck_id", "compartment"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_transitions_total",
			Help: "Booking status transitions",
		}, []string{"status"}),
		plans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truck_plans_total",
			Help: "Truck plans applied",
		}, []string{"fleet", "replayed"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "truck_plan_failures_total",
			Help: "Truck or fleet plans that failed",
		}, []string{"fleet"}),
		partitions: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "clustering_partitions",
			Help:    "Partitions produced per clustering run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 8),
		}),
	}
	var err error
	if s.distance, err = register(reg, s.distance); err != nil {
		return nil, err
	}
	if s.co2, err = register(reg, s.co2); err != nil {
		return nil, err
	}
	if s.cargo, err = register(reg, s.cargo); err != nil {
		return nil, err
	}
	if s.fill, err = register(reg, s.fill); err != nil {
		return nil, err
	}
	if s.bookings, err = register(reg, s.bookings); err != nil {
		return nil, err
	}
	if s.plans, err = register(reg, s.plans); err != nil {
		return nil, err
	}
	if s.failures, err = register(reg, s.failures); err != nil {
		return nil, err
	}
	if s.partitions, err = register(reg, s.partitions); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordVehicleState updates the per truck gauges.
func (s *PromSink) RecordVehicleState(ev coremetrics.VehicleStateEvent) error {
	s.distance.WithLabelValues(ev.FleetID, ev.TruckID).Set(ev.DistanceMeters)
	s.co2.WithLabelValues(ev.FleetID, ev.TruckID).Set(ev.CO2Kg)
	s.cargo.WithLabelValues(ev.FleetID, ev.TruckID).Set(float64(ev.Cargo))
	for _, c := range ev.Compartments {
		s.fill.WithLabelValues(ev.TruckID, strconv.Itoa(c.Index)).Set(c.Ratio())
	}
	return nil
}

func (s *PromSink) RecordBooking(ev coremetrics.BookingEvent) error {
	s.bookings.WithLabelValues(ev.Status).Inc()
	return nil
}

func (s *PromSink) RecordPlan(ev coremetrics.PlanEvent) error {
	s.plans.WithLabelValues(ev.FleetID, strconv.FormatBool(ev.Replayed)).Inc()
	return nil
}

func (s *PromSink) RecordDispatchError(ev coremetrics.DispatchErrorEvent) error {
	s.failures.WithLabelValues(ev.FleetID).Inc()
	return nil
}

func (s *PromSink) RecordPartitions(ev coremetrics.PartitionEvent) error {
	s.partitions.Observe(float64(ev.Partitions))
	return nil
}
