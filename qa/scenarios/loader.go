// Package scenarios runs YAML described collection scenarios end to end on
// an instant clock and checks their outcome.
package scenarios

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/fleetsim/config"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

type Point struct {
	Lon float64 `yaml:"lon"`
	Lat float64 `yaml:"lat"`
}

func (p Point) Position() geo.Position { return geo.Position{Lon: p.Lon, Lat: p.Lat} }

type FleetDef struct {
	Dispatcher     string        `yaml:"dispatcher"`
	Trucks         int           `yaml:"trucks"`
	Depot          Point         `yaml:"depot"`
	Window         time.Duration `yaml:"window"`
	ParcelCapacity int           `yaml:"parcel_capacity"`
}

func (f FleetDef) Config(name string) config.FleetConfig {
	window := f.Window
	if window <= 0 {
		window = 20 * time.Millisecond
	}
	return config.FleetConfig{
		Name:           name,
		Dispatcher:     f.Dispatcher,
		Trucks:         f.Trucks,
		Depot:          f.Depot.Position(),
		Window:         window,
		ParcelCapacity: f.ParcelCapacity,
	}
}

type BookingDef struct {
	ID            string `yaml:"id"`
	Pickup        Point  `yaml:"pickup"`
	Destination   *Point `yaml:"destination,omitempty"`
	RecyclingType string `yaml:"recycling_type,omitempty"`
}

func (b BookingDef) ToModel() *model.Booking {
	m := &model.Booking{ID: b.ID, Pickup: b.Pickup.Position(), RecyclingType: b.RecyclingType}
	if b.Destination != nil {
		d := b.Destination.Position()
		m.Destination = &d
	}
	return m
}

type Expected struct {
	Delivered   int `yaml:"delivered"`
	Unreachable int `yaml:"unreachable"`
}

type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Fleet       FleetDef      `yaml:"fleet"`
	Bookings    []BookingDef  `yaml:"bookings"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
	Expected    Expected      `yaml:"expected"`
}

func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		return nil, fmt.Errorf("%s: scenario without name", path)
	}
	return &sc, nil
}
