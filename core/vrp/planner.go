package vrp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kilianp07/fleetsim/core/cache"
	"github.com/kilianp07/fleetsim/core/logger"
)

// Solver sends an encoded request to the routing solver and returns the raw
// response body. Non-2xx answers are reported as *StatusError.
type Solver interface {
	Solve(ctx context.Context, body []byte) ([]byte, error)
}

// Config bounds solver calls.
type Config struct {
	Timeout      time.Duration `json:"timeout"`
	MaxAttempts  int           `json:"max_attempts"`
	Backoff      time.Duration `json:"backoff"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxJobs      int           `json:"max_jobs"`
	MaxShipments int           `json:"max_shipments"`
	MaxVehicles  int           `json:"max_vehicles"`
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 200 * time.Millisecond
	}
	if c.MaxJobs <= 0 {
		c.MaxJobs = 200
	}
	if c.MaxShipments <= 0 {
		c.MaxShipments = 200
	}
	if c.MaxVehicles <= 0 {
		c.MaxVehicles = 200
	}
}

// Limits caps the size of one solver problem.
type Limits struct {
	Jobs      int
	Shipments int
	Vehicles  int
}

// Min returns the tighter of l and o per field. Non-positive fields of o
// are ignored.
func (l Limits) Min(o Limits) Limits {
	tighter := func(a, b int) int {
		if b > 0 && b < a {
			return b
		}
		return a
	}
	return Limits{
		Jobs:      tighter(l.Jobs, o.Jobs),
		Shipments: tighter(l.Shipments, o.Shipments),
		Vehicles:  tighter(l.Vehicles, o.Vehicles),
	}
}

// PlanInput is one solver problem.
type PlanInput struct {
	Jobs      []Job
	Shipments []Shipment
	Vehicles  []Vehicle
	// ShouldAbort is polled before every attempt and during backoff.
	ShouldAbort func() bool
}

// Planner runs solver requests with caching, retries and cooperative
// cancellation.
type Planner struct {
	cfg    Config
	solver Solver
	cache  cache.Store
	store  PlanSaver
	log    logger.Logger
	now    func() time.Time
}

// NewPlanner returns a Planner. store and c may be nil.
func NewPlanner(cfg Config, solver Solver, c cache.Store, store PlanSaver, log logger.Logger) *Planner {
	cfg.SetDefaults()
	if c == nil {
		c = cache.Nop{}
	}
	return &Planner{cfg: cfg, solver: solver, cache: c, store: store, log: log, now: time.Now}
}

// WithClock sets the time source used to resolve time windows.
func (p *Planner) WithClock(now func() time.Time) *Planner {
	p.now = now
	return p
}

// Limits returns the largest problem Plan accepts.
func (p *Planner) Limits() Limits {
	return Limits{Jobs: p.cfg.MaxJobs, Shipments: p.cfg.MaxShipments, Vehicles: p.cfg.MaxVehicles}
}

func (p *Planner) validate(in PlanInput) error {
	switch {
	case len(in.Vehicles) == 0:
		return ErrNoVehicles
	case len(in.Jobs) > p.cfg.MaxJobs:
		return fmt.Errorf("%w: %d > %d", ErrTooManyJobs, len(in.Jobs), p.cfg.MaxJobs)
	case len(in.Shipments) > p.cfg.MaxShipments:
		return fmt.Errorf("%w: %d > %d", ErrTooManyShipments, len(in.Shipments), p.cfg.MaxShipments)
	case len(in.Vehicles) > p.cfg.MaxVehicles:
		return fmt.Errorf("%w: %d > %d", ErrTooManyVehicles, len(in.Vehicles), p.cfg.MaxVehicles)
	}
	return nil
}

// Plan solves in. Cancellation is checked before every attempt and while
// backing off; once observed no further solver call is made.
func (p *Planner) Plan(ctx context.Context, in PlanInput) (*Response, error) {
	if err := p.validate(in); err != nil {
		return nil, err
	}
	aborted := func() bool { return in.ShouldAbort != nil && in.ShouldAbort() }
	if aborted() {
		return nil, ErrPlanningCancelled
	}

	req := Request{Jobs: in.Jobs, Shipments: in.Shipments, Vehicles: in.Vehicles, Options: Options{Plan: true}}
	key, err := CacheKey(req)
	if err != nil {
		return nil, err
	}
	if raw, ok, err := p.cache.Get(ctx, key); err != nil {
		p.log.Warnf("solver cache read: %v", err)
	} else if ok {
		if res, err := Decode(raw); err == nil {
			solverCacheHits.Inc()
			p.log.Debugf("solver cache hit %s", key[:12])
			return res, nil
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode solver request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxAttempts; attempt++ {
		if aborted() {
			return nil, ErrPlanningCancelled
		}
		if attempt > 0 {
			solverRetries.Inc()
		}
		res, err := p.call(ctx, body)
		if err == nil {
			solverRequests.WithLabelValues("success").Inc()
			if err := p.cache.Set(ctx, key, res.Raw); err != nil {
				p.log.Warnf("solver cache write: %v", err)
			}
			return res, nil
		}
		solverRequests.WithLabelValues("error").Inc()
		lastErr = err
		p.log.Warnf("solver attempt %d/%d failed: %v", attempt+1, p.cfg.MaxAttempts, err)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == p.cfg.MaxAttempts-1 {
			break
		}
		delay := p.cfg.Backoff * time.Duration(1<<(attempt+1))
		if err := p.wait(ctx, delay, aborted); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("solver failed after %d attempts: %w", p.cfg.MaxAttempts, lastErr)
}

func (p *Planner) call(ctx context.Context, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	start := time.Now()
	raw, err := p.solver.Solve(ctx, body)
	solverLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	res, err := Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode solver response: %w", err)
	}
	return res, nil
}

// wait sleeps for d, polling aborted every PollInterval.
func (p *Planner) wait(ctx context.Context, d time.Duration, aborted func() bool) error {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	poll := time.NewTicker(p.cfg.PollInterval)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			if aborted() {
				return ErrPlanningCancelled
			}
			return nil
		case <-poll.C:
			if aborted() {
				return ErrPlanningCancelled
			}
		}
	}
}

// placeholder replaces absolute times in cache keys.
var placeholder = TimeWindow{0, 1}

func normalizeWindows(tws []TimeWindow) []TimeWindow {
	if len(tws) == 0 {
		return nil
	}
	return []TimeWindow{placeholder}
}

// CacheKey hashes req with every time window and break replaced by constant
// placeholders, so identical problems planned at different instants share a
// key.
func CacheKey(req Request) (string, error) {
	n := Request{Options: req.Options}
	for _, j := range req.Jobs {
		j.TimeWindows = normalizeWindows(j.TimeWindows)
		n.Jobs = append(n.Jobs, j)
	}
	for _, s := range req.Shipments {
		s.Pickup.TimeWindows = normalizeWindows(s.Pickup.TimeWindows)
		s.Delivery.TimeWindows = normalizeWindows(s.Delivery.TimeWindows)
		n.Shipments = append(n.Shipments, s)
	}
	for _, v := range req.Vehicles {
		if v.TimeWindow != nil {
			tw := placeholder
			v.TimeWindow = &tw
		}
		if len(v.Breaks) > 0 {
			bs := make([]Break, len(v.Breaks))
			for i, b := range v.Breaks {
				bs[i] = Break{ID: b.ID, TimeWindows: normalizeWindows(b.TimeWindows)}
			}
			v.Breaks = bs
		}
		n.Vehicles = append(n.Vehicles, v)
	}
	return cache.Key("vroom", n)
}
