// Package vehicle implements the collection truck state machine: booking
// queueing, navigation under the virtual clock, pickups, drop-offs and
// compartment accounting.
package vehicle

import (
	"time"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/clock"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/routing"
	"github.com/kilianp07/fleetsim/core/settings"
)

// Status is the state of a truck.
type Status string

const (
	StatusReady      Status = "ready"
	StatusToPickup   Status = "toPickup"
	StatusToDelivery Status = "toDelivery"
	StatusReturning  Status = "returning"
	StatusParked     Status = "parked"
)

// Truck defaults.
const (
	DefaultParcelCapacity     = 250
	DefaultCO2PerKm           = 0.9
	DefaultPickupRadiusMeters = 200
)

// Config describes one truck and its collaborators.
type Config struct {
	ID           string
	FleetID      string
	ExperimentID string
	Start        geo.Position
	// ParcelCapacity bounds cargo count when no compartment declares a
	// capacity.
	ParcelCapacity int
	CO2PerKm       float64
	Compartments   []capacity.Spec
	Settings       *settings.Settings

	Router routing.Router
	Clock  *clock.Clock
	Events events.Publisher
	Logger logger.Logger

	// StepInterval is the simulated time between two position updates.
	StepInterval time.Duration
	// RetryInterval is the wall time between failed routing attempts.
	RetryInterval time.Duration
	// PickupRadiusMeters is the reach of opportunistic pickups.
	PickupRadiusMeters float64
}

// SetDefaults fills zero values.
func (c *Config) SetDefaults() {
	if c.ParcelCapacity <= 0 {
		c.ParcelCapacity = DefaultParcelCapacity
	}
	if c.CO2PerKm <= 0 {
		c.CO2PerKm = DefaultCO2PerKm
	}
	if c.Settings == nil {
		c.Settings = settings.Default()
	}
	if c.Router == nil {
		c.Router = routing.StraightLine{}
	}
	if c.Clock == nil {
		c.Clock = clock.New(clock.Config{})
	}
	if c.Events == nil {
		c.Events = events.Nop{}
	}
	if c.Logger == nil {
		c.Logger = logger.Nop{}
	}
	if c.StepInterval <= 0 {
		c.StepInterval = 10 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	if c.PickupRadiusMeters <= 0 {
		c.PickupRadiusMeters = DefaultPickupRadiusMeters
	}
}
