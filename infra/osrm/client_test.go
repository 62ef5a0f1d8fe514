package osrm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/cache"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/infra/logger"
)

const routeBody = `{"code":"Ok","routes":[{"geometry":{"coordinates":[[18.0,59.0],[18.01,59.0],[18.02,59.01]]},"duration":120.5,"distance":1800,"legs":[{}]}]}`

func testConfig(url string) Config {
	return Config{URL: url, RatePerSecond: 1000, Burst: 100, Backoff: time.Millisecond, MaxAttempts: 3}
}

func TestRouteIsCached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/route/v1/driving/18.000000,59.000000;18.020000,59.010000"))
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		_, _ = w.Write([]byte(routeBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), cache.NewMemory(), logger.NopLogger{})
	from, to := geo.Position{Lon: 18, Lat: 59}, geo.Position{Lon: 18.02, Lat: 59.01}
	r, err := c.Route(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, 1800.0, r.DistanceMeters)
	assert.Equal(t, 120.5, r.DurationSeconds)
	require.Len(t, r.Coordinates, 3)
	assert.Equal(t, geo.Position{Lon: 18.01, Lat: 59}, r.Coordinates[1])

	_, err = c.Route(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRouteRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(routeBody))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, logger.NopLogger{})
	_, err := c.Route(context.Background(), geo.Position{Lon: 18, Lat: 59}, geo.Position{Lon: 18.02, Lat: 59.01})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRouteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad coordinates", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, logger.NopLogger{})
	_, err := c.Route(context.Background(), geo.Position{}, geo.Position{Lon: 1})
	require.Error(t, err)
	var he *httpStatusError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, http.StatusBadRequest, he.Code)
	assert.Equal(t, "bad coordinates", he.Body)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNearest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.URL.Path, "/nearest/v1/driving/"))
		_, _ = w.Write([]byte(`{"code":"Ok","waypoints":[{"location":[18.5,59.5]}]}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, logger.NopLogger{})
	p, err := c.Nearest(context.Background(), geo.Position{Lon: 18.49, Lat: 59.49})
	require.NoError(t, err)
	assert.Equal(t, geo.Position{Lon: 18.5, Lat: 59.5}, p)
}

func TestRouteNoRoutes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"NoRoute","routes":[]}`))
	}))
	defer srv.Close()

	c := New(testConfig(srv.URL), nil, logger.NopLogger{})
	_, err := c.Route(context.Background(), geo.Position{}, geo.Position{Lon: 1})
	assert.ErrorContains(t, err, "NoRoute")
}
