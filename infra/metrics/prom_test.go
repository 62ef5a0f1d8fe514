package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/metrics/eco"
)

func TestPromSinkRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s.RecordVehicleState(coremetrics.VehicleStateEvent{
		FleetID:        "f1",
		TruckID:        "t1",
		DistanceMeters: 1500,
		CO2Kg:          1.35,
		Cargo:          3,
		Compartments:   []coremetrics.CompartmentFill{{Index: 2, FillLiters: 100, CapacityLiters: 400}},
	}))
	require.NoError(t, s.RecordPlan(coremetrics.PlanEvent{FleetID: "f1", TruckID: "t1"}))
	require.NoError(t, s.RecordPlan(coremetrics.PlanEvent{FleetID: "f1", TruckID: "t1", Replayed: true}))
	require.NoError(t, s.RecordDispatchError(coremetrics.DispatchErrorEvent{FleetID: "f1"}))
	require.NoError(t, s.RecordBooking(coremetrics.BookingEvent{Status: "delivered"}))

	assert.Equal(t, 1500.0, testutil.ToFloat64(s.distance.WithLabelValues("f1", "t1")))
	assert.Equal(t, 1.35, testutil.ToFloat64(s.co2.WithLabelValues("f1", "t1")))
	assert.Equal(t, 3.0, testutil.ToFloat64(s.cargo.WithLabelValues("f1", "t1")))
	assert.Equal(t, 0.25, testutil.ToFloat64(s.fill.WithLabelValues("t1", "2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.plans.WithLabelValues("f1", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.failures.WithLabelValues("f1")))
	assert.Equal(t, 1.0, testutil.ToFloat64(s.bookings.WithLabelValues("delivered")))
}

func TestPromSinkReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	s1, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)
	s2, err := NewPromSinkWithRegistry(reg)
	require.NoError(t, err)

	require.NoError(t, s1.RecordDispatchError(coremetrics.DispatchErrorEvent{FleetID: "f1"}))
	require.NoError(t, s2.RecordDispatchError(coremetrics.DispatchErrorEvent{FleetID: "f1"}))
	assert.Equal(t, 2.0, testutil.ToFloat64(s2.failures.WithLabelValues("f1")))
}

func TestEcoSinkAggregatesDeltas(t *testing.T) {
	store := eco.NewMemoryStore()
	s, err := NewEcoSink(store, prometheus.NewRegistry())
	require.NoError(t, err)
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordVehicleState(coremetrics.VehicleStateEvent{TruckID: "t1", DistanceMeters: 1000, CO2Kg: 0.9, Time: now}))
	require.NoError(t, s.RecordVehicleState(coremetrics.VehicleStateEvent{TruckID: "t1", DistanceMeters: 3000, CO2Kg: 2.7, Time: now}))
	require.NoError(t, s.RecordVehicleState(coremetrics.VehicleStateEvent{TruckID: "t1", DistanceMeters: 3000, CO2Kg: 2.7, Time: now}))
	require.NoError(t, s.RecordBooking(coremetrics.BookingEvent{TruckID: "t1", Status: "pickedUp", Time: now}))
	require.NoError(t, s.RecordBooking(coremetrics.BookingEvent{TruckID: "t1", Status: "delivered", Time: now}))

	recs, err := store.Query("t1", now, now)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 3.0, recs[0].DistanceKm, 1e-9)
	assert.InDelta(t, 2.7, recs[0].CO2Kg, 1e-9)
	assert.Equal(t, 1, recs[0].Pickups)
	assert.InDelta(t, 2.7, testutil.ToFloat64(s.perStop.WithLabelValues("t1", "2024-05-02")), 1e-9)
}
