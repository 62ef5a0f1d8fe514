package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	bookingsDispatched *prometheus.CounterVec
	dispatchErrors     *prometheus.CounterVec
	dispatchLatency    *prometheus.HistogramVec
	bufferedBookings   *prometheus.GaugeVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.CounterVec, *prometheus.CounterVec, *prometheus.HistogramVec, *prometheus.GaugeVec) {
	dispatched := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookings_dispatched_total",
			Help: "Number of bookings handed to a truck",
		},
		[]string{"fleet", "dispatcher"},
	)
	errs := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_errors_total",
			Help: "Number of failed truck plans",
		},
		[]string{"fleet", "dispatcher"},
	)
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_batch_duration_seconds",
			Help:    "Time spent dispatching one buffered batch",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"fleet", "dispatcher"},
	)
	buf := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "fleet_buffered_bookings",
			Help: "Bookings waiting for the next dispatch window",
		},
		[]string{"fleet"},
	)
	return dispatched, errs, lat, buf
}

func init() {
	bookingsDispatched, dispatchErrors, dispatchLatency, bufferedBookings = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(bookingsDispatched, dispatchErrors, dispatchLatency, bufferedBookings)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	bookingsDispatched, dispatchErrors, dispatchLatency, bufferedBookings = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
