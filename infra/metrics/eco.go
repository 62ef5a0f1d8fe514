package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	core "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/metrics/eco"
)

type odometer struct {
	distance, co2 float64
}

// EcoSink aggregates driven distance, emissions and pickups per truck and
// day into an eco.Store and mirrors the daily totals as gauges.
type EcoSink struct {
	store eco.Store

	mu   sync.Mutex
	last map[string]odometer

	distance *prometheus.GaugeVec
	co2      *prometheus.GaugeVec
	perStop  *prometheus.GaugeVec
}

// NewEcoSink creates a sink with Prometheus gauges registered on reg.
func NewEcoSink(store eco.Store, reg prometheus.Registerer) (*EcoSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &EcoSink{
		store: store,
		last:  make(map[string]odometer),
		distance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_daily_distance_km",
			Help: "Daily distance driven per truck",
		}, []string{"truck_id", "day"}),
		co2: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_daily_co2_kg",
			Help: "Daily CO2 emitted per truck",
		}, []string{"truck_id", "day"}),
		perStop: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "truck_daily_co2_per_pickup_kg",
			Help: "Daily CO2 emitted per collected booking",
		}, []string{"truck_id", "day"}),
	}
	var err error
	if s.distance, err = register(reg, s.distance); err != nil {
		return nil, err
	}
	if s.co2, err = register(reg, s.co2); err != nil {
		return nil, err
	}
	if s.perStop, err = register(reg, s.perStop); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordVehicleState adds the distance and emissions driven since the
// previous snapshot of the truck.
// Store returns the KPI store the sink accumulates into.
func (s *EcoSink) Store() eco.Store { return s.store }

func (s *EcoSink) RecordVehicleState(ev core.VehicleStateEvent) error {
	s.mu.Lock()
	prev := s.last[ev.TruckID]
	s.last[ev.TruckID] = odometer{distance: ev.DistanceMeters, co2: ev.CO2Kg}
	s.mu.Unlock()
	dd, dc := ev.DistanceMeters-prev.distance, ev.CO2Kg-prev.co2
	if dd <= 0 && dc <= 0 {
		return nil
	}
	rec := eco.Record{TruckID: ev.TruckID, Date: ev.Time, DistanceKm: max(dd, 0) / 1000, CO2Kg: max(dc, 0)}
	if err := s.store.Add(rec); err != nil {
		return err
	}
	return s.publish(ev.TruckID, rec)
}

// RecordBooking counts pickups.
func (s *EcoSink) RecordBooking(ev core.BookingEvent) error {
	if ev.Status != "pickedUp" || ev.TruckID == "" {
		return nil
	}
	rec := eco.Record{TruckID: ev.TruckID, Date: ev.Time, Pickups: 1}
	if err := s.store.Add(rec); err != nil {
		return err
	}
	return s.publish(ev.TruckID, rec)
}

func (s *EcoSink) publish(truckID string, rec eco.Record) error {
	records, err := s.store.Query(truckID, rec.Date, rec.Date)
	if err != nil || len(records) == 0 {
		return err
	}
	r := records[0]
	day := eco.Day(rec.Date).Format("2006-01-02")
	s.distance.WithLabelValues(truckID, day).Set(r.DistanceKm)
	s.co2.WithLabelValues(truckID, day).Set(r.CO2Kg)
	s.perStop.WithLabelValues(truckID, day).Set(r.CO2PerPickup())
	return nil
}
