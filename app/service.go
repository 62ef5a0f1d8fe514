// Package app wires configuration into a running experiment: trucks,
// fleets, dispatchers, the solver planner and the telemetry outputs.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/fleetsim/api/plans"
	"github.com/kilianp07/fleetsim/api/trucks"
	"github.com/kilianp07/fleetsim/app/plugins"
	"github.com/kilianp07/fleetsim/config"
	corecache "github.com/kilianp07/fleetsim/core/cache"
	"github.com/kilianp07/fleetsim/core/clustering"
	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/events"
	coremetrics "github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/metrics/eco"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/monitoring"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/routing"
	"github.com/kilianp07/fleetsim/core/session"
	"github.com/kilianp07/fleetsim/core/vehicle"
	"github.com/kilianp07/fleetsim/core/vehiclestatus"
	"github.com/kilianp07/fleetsim/core/vrp"
	_ "github.com/kilianp07/fleetsim/infra/cache" // file and redis cache backends
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/infra/metrics"
	sentrymon "github.com/kilianp07/fleetsim/infra/monitoring"
	"github.com/kilianp07/fleetsim/infra/mqtt"
	"github.com/kilianp07/fleetsim/infra/osrm"
	_ "github.com/kilianp07/fleetsim/infra/postgres" // postgres plan store
	"github.com/kilianp07/fleetsim/infra/solver"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// progressInterval is how often Run checks whether the experiment is over.
const progressInterval = 500 * time.Millisecond

// Fleet is a configured fleet and its trucks.
type Fleet struct {
	*dispatch.Fleet
	Trucks    []*vehicle.Truck
	clusterer *clustering.Clusterer
}

// Service runs one experiment.
type Service struct {
	cfg          *config.Config
	experimentID string
	log          logger.Logger

	sessions *session.Registry
	session  *session.Session
	bus      *eventbus.Bus[events.Event]
	cache    corecache.Store
	store    planstore.Store
	sink     coremetrics.MetricsSink
	status   *vehiclestatus.MemoryStore
	planner  *vrp.Planner
	router   routing.Router
	mqtt     *mqtt.PahoClient
	monitor  monitoring.Monitor
	fleets   []*Fleet
	byName   map[string]*Fleet

	mu       sync.Mutex
	bookings []*model.Booking

	cancel    context.CancelFunc
	closeOnce sync.Once
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	s := &Service{
		cfg:          cfg,
		experimentID: cfg.ExperimentID,
		log:          logger.New("service"),
		bus:          eventbus.New[events.Event](),
		byName:       make(map[string]*Fleet),
	}
	if s.experimentID == "" {
		s.experimentID = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.sessions = session.NewRegistry(cfg.Clock)
	sess, err := s.sessions.Register(ctx, s.experimentID, cfg.Clock)
	if err != nil {
		cancel()
		return nil, err
	}
	s.session = sess

	if err := s.init(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Service) init() error {
	var err error
	if s.cache, err = corecache.New(s.cfg.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if s.store, err = planstore.New(s.cfg.Store); err != nil {
		return fmt.Errorf("plan store: %w", err)
	}
	sink, err := coremetrics.NewMetricsSink(s.cfg.Metrics.Sinks)
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	s.status = vehiclestatus.NewMemoryStore()
	s.sink = coremetrics.NewMultiSink(sink, s.status)
	if s.monitor, err = sentrymon.NewSentryMonitor(s.cfg.Sentry); err != nil {
		return fmt.Errorf("sentry: %w", err)
	}
	if s.cfg.MQTT.Broker != "" {
		if s.mqtt, err = mqtt.NewPahoClient(s.cfg.MQTT); err != nil {
			return fmt.Errorf("mqtt client: %w", err)
		}
	}

	planCfg := s.cfg.Solver.Planner()
	client := solver.New(s.cfg.Solver.URL, s.cfg.Solver.Auth.HTTPClient(&http.Client{Timeout: planCfg.Timeout}))
	s.planner = vrp.NewPlanner(planCfg, client, s.cache, s.store, logger.New("vrp")).WithClock(s.session.Clock.Now)

	switch s.cfg.Routing.Mode {
	case config.RoutingOSRM:
		s.router = osrm.New(s.cfg.Routing.OSRM, s.cache, logger.New("osrm"))
	default:
		s.router = routing.StraightLine{}
	}

	for _, fc := range s.cfg.Fleets {
		f, err := s.newFleet(fc)
		if err != nil {
			return fmt.Errorf("fleet %s: %w", fc.Name, err)
		}
		s.fleets = append(s.fleets, f)
		s.byName[fc.Name] = f
	}
	if len(s.fleets) == 0 {
		return errors.New("no fleet configured")
	}
	return nil
}

func (s *Service) newFleet(fc config.FleetConfig) (*Fleet, error) {
	st, err := fc.LoadSettings()
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	trucks := make([]*vehicle.Truck, fc.Trucks)
	vehicles := make([]dispatch.Vehicle, fc.Trucks)
	for i := range trucks {
		trucks[i] = vehicle.New(vehicle.Config{
			ID:             fmt.Sprintf("%s-%d", fc.Name, i),
			FleetID:        fc.Name,
			ExperimentID:   s.experimentID,
			Start:          fc.Depot,
			ParcelCapacity: fc.ParcelCapacity,
			CO2PerKm:       fc.CO2PerKm,
			Compartments:   fc.Compartments,
			Settings:       st,
			Router:         s.router,
			Clock:          s.session.Clock,
			Events:         s.bus,
			Logger:         logger.New("truck"),
		})
		vehicles[i] = trucks[i]
	}
	clusterer := clustering.New(st.Clustering, logger.New("clustering"), s.store)
	d, err := plugins.NewDispatcher(fc.Dispatcher, plugins.Deps{
		ExperimentID:     s.experimentID,
		FleetID:          fc.Name,
		Vehicles:         vehicles,
		Settings:         st,
		Planner:          s.planner,
		Clusterer:        clusterer,
		Plans:            s.store,
		ReplayExperiment: fc.ReplayExperiment,
		Events:           s.bus,
		ShouldAbort:      s.session.ShouldAbort,
		Logger:           logger.New("dispatch"),
	})
	if err != nil {
		return nil, err
	}
	fleet := dispatch.NewFleet(dispatch.FleetConfig{
		Name:         fc.Name,
		ExperimentID: s.experimentID,
		Window:       fc.Window,
		MaxAttempts:  fc.DispatchAttempts,
		Events:       s.bus,
	}, vehicles, d, logger.New("fleet"))
	return &Fleet{Fleet: fleet, Trucks: trucks, clusterer: clusterer}, nil
}

// ExperimentID returns the id of the running experiment.
func (s *Service) ExperimentID() string { return s.experimentID }

// Fleets returns the configured fleets in configuration order.
func (s *Service) Fleets() []*Fleet { return s.fleets }

// Events returns the bus every simulation event is published on.
func (s *Service) Events() *eventbus.Bus[events.Event] { return s.bus }

// Planner returns the shared solver planner.
func (s *Service) Planner() *vrp.Planner { return s.planner }

// Store returns the plan store.
func (s *Service) Store() planstore.Store { return s.store }

// Status returns the latest known state of every truck.
func (s *Service) Status() vehiclestatus.Store { return s.status }

// Routes returns the HTTP API served next to /metrics.
func (s *Service) Routes() map[string]http.Handler {
	routes := map[string]http.Handler{
		"/api/trucks/status": trucks.NewStatusHandler(s.status),
		"/api/experiments/":  plans.NewHandler(s.store, s.cfg.API.Token),
	}
	if kpis := ecoStore(s.sink); kpis != nil {
		routes["/api/trucks/"] = trucks.NewKPIHandler(kpis)
	}
	return routes
}

// Submit hands b to the fleet named by b.Fleet, or to the first fleet.
func (s *Service) Submit(b *model.Booking) error {
	b.EnsureID()
	f := s.fleets[0]
	if b.Fleet != "" {
		var ok bool
		if f, ok = s.byName[b.Fleet]; !ok {
			return fmt.Errorf("booking %s: unknown fleet %s", b.ID, b.Fleet)
		}
	}
	s.mu.Lock()
	s.bookings = append(s.bookings, b)
	s.mu.Unlock()
	s.bus.Publish(events.BookingStatusChanged{
		Meta:      events.Meta{ExperimentID: s.experimentID, FleetID: f.Name(), At: s.session.Clock.Now()},
		BookingID: b.ID,
		Status:    b.Status().String(),
	})
	f.Handle(b)
	return nil
}

// Finished reports whether every submitted booking reached a final state
// and every truck is idle.
func (s *Service) Finished() bool {
	s.mu.Lock()
	bookings := s.bookings
	s.mu.Unlock()
	if len(bookings) == 0 {
		return false
	}
	for _, b := range bookings {
		if st := b.Status(); st != model.BookingDelivered && st != model.BookingUnreachable {
			return false
		}
	}
	for _, f := range s.fleets {
		if f.Buffered() > 0 {
			return false
		}
		for _, t := range f.Trucks {
			if !t.Idle() {
				return false
			}
		}
	}
	return true
}

// Cancel stops the experiment: planners stop calling the solver and Run
// returns.
func (s *Service) Cancel() { s.sessions.Cancel(s.experimentID) }

// Run starts the telemetry outputs and the fleets, and blocks until the
// experiment is finished, cancelled or ctx is done.
func (s *Service) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metrics.StartEventCollector(ctx, s.bus, s.sink)
	watcher := monitoring.Watch(ctx, s.bus, s.monitor)
	var publisher *sync.WaitGroup
	if s.mqtt != nil {
		publisher = mqtt.StartPublisher(ctx, s.bus, s.mqtt)
	}
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		go func() {
			if err := metrics.StartPromServer(ctx, addr, s.Routes()); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	var wg sync.WaitGroup
	for _, f := range s.fleets {
		wg.Add(1)
		go func(f *Fleet) {
			defer wg.Done()
			defer s.monitor.Recover()
			if err := f.Run(ctx); err != nil {
				s.log.Errorf("fleet %s: %v", f.Name(), err)
			}
		}(f)
	}
	s.log.Infof("experiment %s started with %d fleets", s.experimentID, len(s.fleets))

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-ticker.C:
			if s.session.Cancelled() {
				s.log.Infof("experiment %s cancelled", s.experimentID)
				break loop
			}
			if s.Finished() {
				s.log.Infof("experiment %s finished", s.experimentID)
				break loop
			}
		}
	}
	cancel()
	wg.Wait()
	watcher.Wait()
	if publisher != nil {
		publisher.Wait()
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	s.closeOnce.Do(func() {
		for _, f := range s.fleets {
			for _, t := range f.Trucks {
				t.Stop()
			}
			f.clusterer.Wait()
			f.Close()
		}
		s.sessions.Unregister(s.experimentID)
		s.cancel()
		s.bus.Close()
		if s.mqtt != nil {
			s.mqtt.Disconnect()
		}
		closeSink(s.sink)
		if s.monitor != nil {
			s.monitor.Flush(2 * time.Second)
		}
		if s.store != nil {
			if err := s.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("plan store: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

func ecoStore(sink coremetrics.MetricsSink) eco.Store {
	switch v := sink.(type) {
	case *coremetrics.MultiSink:
		for _, s := range v.Sinks {
			if st := ecoStore(s); st != nil {
				return st
			}
		}
	case *metrics.EcoSink:
		return v.Store()
	}
	return nil
}

func closeSink(sink coremetrics.MetricsSink) {
	switch v := sink.(type) {
	case *coremetrics.MultiSink:
		for _, s := range v.Sinks {
			closeSink(s)
		}
	case interface{ Close() }:
		v.Close()
	}
}
