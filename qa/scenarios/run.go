package scenarios

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/fleetsim/app"
	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/clock"
	"github.com/kilianp07/fleetsim/core/model"
)

const defaultTimeout = 30 * time.Second

// Result counts the final booking states of a run.
type Result struct {
	Delivered   int
	Unreachable int
	Pending     int
	Elapsed     time.Duration
}

// Check compares r with the expected outcome.
func (r Result) Check(exp Expected) error {
	if r.Delivered != exp.Delivered || r.Unreachable != exp.Unreachable {
		return fmt.Errorf("expected %d delivered and %d unreachable, got %d delivered, %d unreachable and %d pending",
			exp.Delivered, exp.Unreachable, r.Delivered, r.Unreachable, r.Pending)
	}
	return nil
}

// Run simulates sc with a single fleet on an instant clock.
func Run(ctx context.Context, sc *Scenario) (Result, error) {
	cfg := &config.Config{
		ExperimentID: "qa-" + sc.Name,
		Clock:        clock.Config{Multiplier: math.Inf(1)},
		Fleets:       []config.FleetConfig{sc.Fleet.Config(sc.Name)},
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Result{}, fmt.Errorf("scenario %s: %w", sc.Name, err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = svc.Close() }()

	bookings := make([]*model.Booking, len(sc.Bookings))
	for i, def := range sc.Bookings {
		bookings[i] = def.ToModel()
		if err := svc.Submit(bookings[i]); err != nil {
			return Result{}, err
		}
	}

	timeout := sc.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	if err := svc.Run(ctx); err != nil {
		return Result{}, err
	}

	res := Result{Elapsed: time.Since(start)}
	for _, b := range bookings {
		switch b.Status() {
		case model.BookingDelivered:
			res.Delivered++
		case model.BookingUnreachable:
			res.Unreachable++
		default:
			res.Pending++
		}
	}
	return res, nil
}
