package vrp

import "github.com/prometheus/client_golang/prometheus"

var (
	solverRequests  *prometheus.CounterVec
	solverRetries   prometheus.Counter
	solverCacheHits prometheus.Counter
	solverLatency   prometheus.Histogram
)

func newCollectors() (*prometheus.CounterVec, prometheus.Counter, prometheus.Counter, prometheus.Histogram) {
	req := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solver_requests_total",
			Help: "Number of solver calls by outcome",
		},
		[]string{"result"},
	)
	retries := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solver_retries_total",
		Help: "Number of solver call retries",
	})
	hits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "solver_cache_hits_total",
		Help: "Number of plans served from the solver cache",
	})
	lat := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "solver_request_duration_seconds",
		Help:    "Latency of solver calls",
		Buckets: prometheus.DefBuckets,
	})
	return req, retries, hits, lat
}

func init() {
	solverRequests, solverRetries, solverCacheHits, solverLatency = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers solver metrics on reg, or on the default
// registerer when reg is nil.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(solverRequests, solverRetries, solverCacheHits, solverLatency)
}

// ResetMetrics recreates the collectors, registering them on reg if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	solverRequests, solverRetries, solverCacheHits, solverLatency = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
