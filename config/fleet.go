package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/settings"
)

// FleetConfig defines one fleet: its trucks, depot and dispatch strategy.
type FleetConfig struct {
	Name       string       `json:"name"`
	Dispatcher string       `json:"dispatcher"`
	Trucks     int          `json:"trucks"`
	Depot      geo.Position `json:"depot"`
	// Window is how long bookings are buffered before dispatch.
	Window time.Duration `json:"window"`
	// DispatchAttempts is how many windows a booking may stay undispatched
	// before it is marked unreachable.
	DispatchAttempts int             `json:"dispatch_attempts"`
	CO2PerKm         float64         `json:"co2_per_km"`
	ParcelCapacity   int             `json:"parcel_capacity"`
	Compartments     []capacity.Spec `json:"compartments"`
	// SettingsFile is read with settings.Load when set; it wins over the
	// inline Settings.
	SettingsFile string             `json:"settings_file"`
	Settings     *settings.Settings `json:"settings"`
	// ReplayExperiment names the experiment whose stored plans a replay
	// dispatcher hands out.
	ReplayExperiment string `json:"replay_experiment"`
}

// SetDefaults fills unset fields; i numbers anonymous fleets.
func (f *FleetConfig) SetDefaults(i int) {
	if f.Name == "" {
		f.Name = fmt.Sprintf("fleet-%d", i)
	}
	if f.Dispatcher == "" {
		f.Dispatcher = dispatch.TypeVroom
	}
	if f.Trucks <= 0 {
		f.Trucks = 1
	}
	if f.Window <= 0 {
		f.Window = dispatch.DefaultWindow
	}
}

// Validate checks the dispatcher type and replay source.
func (f FleetConfig) Validate() error {
	switch f.Dispatcher {
	case dispatch.TypeStandard, dispatch.TypeVroom:
	case dispatch.TypeReplay:
		if f.ReplayExperiment == "" {
			return fmt.Errorf("replay dispatcher requires replay_experiment")
		}
	default:
		return fmt.Errorf("unknown dispatcher %s", f.Dispatcher)
	}
	if !f.Depot.IsValid() {
		return fmt.Errorf("invalid depot %v", f.Depot)
	}
	return nil
}

// LoadSettings returns the fleet settings with defaults applied.
func (f FleetConfig) LoadSettings() (*settings.Settings, error) {
	if f.SettingsFile != "" {
		return settings.Load(f.SettingsFile)
	}
	if f.Settings == nil {
		return settings.Default(), nil
	}
	s := *f.Settings
	s.SetDefaults()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}
