package trucks

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/metrics/eco"
	"github.com/kilianp07/fleetsim/core/vehiclestatus"
)

func TestStatusHandler_Filter(t *testing.T) {
	store := vehiclestatus.NewMemoryStore()
	_ = store.RecordVehicleState(metrics.VehicleStateEvent{TruckID: "t1", FleetID: "f1", Status: "pickup"})
	_ = store.RecordVehicleState(metrics.VehicleStateEvent{TruckID: "t2", FleetID: "f2", Status: "ready"})
	h := NewStatusHandler(store)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/trucks/status", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out []vehiclestatus.Status
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	assert.Len(t, out, 2)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/trucks/status?fleet_id=f1", nil))
	out = nil
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "t1", out[0].TruckID)
}

func TestStatusHandler_Method(t *testing.T) {
	rr := httptest.NewRecorder()
	NewStatusHandler(vehiclestatus.NewMemoryStore()).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/trucks/status", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestKPIHandler(t *testing.T) {
	store := eco.NewMemoryStore()
	day := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.Add(eco.Record{TruckID: "t1", Date: day, DistanceKm: 12, CO2Kg: 10.8, Pickups: 4}))
	require.NoError(t, store.Add(eco.Record{TruckID: "t1", Date: day.AddDate(0, 0, 3), DistanceKm: 1}))
	h := NewKPIHandler(store)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/trucks/t1/kpis?start=2024-05-01T00:00:00Z&end=2024-05-03T00:00:00Z", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var out []kpiOut
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "2024-05-02", out[0].Date)
	assert.Equal(t, 4, out[0].Pickups)
	assert.InDelta(t, 2.7, out[0].CO2PerPickup, 1e-9)
	assert.InDelta(t, 3.0, out[0].KmPerPickup, 1e-9)
}

func TestKPIHandler_BadRequests(t *testing.T) {
	h := NewKPIHandler(eco.NewMemoryStore())
	cases := map[string]int{
		"/api/trucks/t1/kpis?start=yesterday": http.StatusBadRequest,
		"/api/trucks/t1":                      http.StatusNotFound,
		"/api/trucks//kpis":                   http.StatusNotFound,
	}
	for url, code := range cases {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, url, nil))
		assert.Equal(t, code, rr.Code, url)
	}
}
