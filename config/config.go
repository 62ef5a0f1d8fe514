// Package config loads the application configuration from a YAML or JSON
// file with K_ prefixed environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/fleetsim/auth"
	"github.com/kilianp07/fleetsim/core/clock"
	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/metrics"
	"github.com/kilianp07/fleetsim/core/vrp"
	"github.com/kilianp07/fleetsim/infra/monitoring"
	"github.com/kilianp07/fleetsim/infra/mqtt"
	"github.com/kilianp07/fleetsim/infra/osrm"
)

// Routing modes.
const (
	RoutingStraight = "straight"
	RoutingOSRM     = "osrm"
)

type Config struct {
	ExperimentID string               `json:"experiment_id"`
	MQTT         mqtt.Config          `json:"mqtt"`
	Metrics      metrics.Config       `json:"metrics"`
	Sentry       monitoring.Config    `json:"sentry"`
	API          APIConfig            `json:"api"`
	Solver       SolverConfig         `json:"solver"`
	Routing      RoutingConfig        `json:"routing"`
	Cache        factory.ModuleConfig `json:"cache"`
	Store        factory.ModuleConfig `json:"store"`
	Clock        clock.Config         `json:"clock"`
	Fleets       []FleetConfig        `json:"fleets"`
}

// APIConfig protects the plan endpoints served next to /metrics.
type APIConfig struct {
	Token string `json:"token"`
}

// SolverConfig locates the VROOM endpoint and bounds its requests.
type SolverConfig struct {
	URL          string        `json:"url"`
	Timeout      time.Duration `json:"timeout"`
	MaxAttempts  int           `json:"max_attempts"`
	Backoff      time.Duration `json:"backoff"`
	PollInterval time.Duration `json:"poll_interval"`
	MaxJobs      int           `json:"max_jobs"`
	MaxShipments int           `json:"max_shipments"`
	MaxVehicles  int           `json:"max_vehicles"`
	Auth         auth.Conf     `json:"auth"`
}

// Planner returns the planner configuration with defaults applied.
func (c SolverConfig) Planner() vrp.Config {
	p := vrp.Config{
		Timeout:      c.Timeout,
		MaxAttempts:  c.MaxAttempts,
		Backoff:      c.Backoff,
		PollInterval: c.PollInterval,
		MaxJobs:      c.MaxJobs,
		MaxShipments: c.MaxShipments,
		MaxVehicles:  c.MaxVehicles,
	}
	p.SetDefaults()
	return p
}

// RoutingConfig selects how trucks follow the road network.
type RoutingConfig struct {
	Mode string      `json:"mode"`
	OSRM osrm.Config `json:"osrm"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Solver.URL == "" {
		c.Solver.URL = "http://localhost:3000"
	}
	if c.Routing.Mode == "" {
		c.Routing.Mode = RoutingStraight
	}
	c.Routing.OSRM.SetDefaults()
	if c.Cache.Type == "" {
		c.Cache.Type = "nop"
	}
	if c.Store.Type == "" {
		c.Store.Type = "memory"
	}
	if c.Clock.Multiplier == 0 {
		c.Clock.Multiplier = 1
	}
	c.Clock.SetDefaults()
	for i := range c.Fleets {
		c.Fleets[i].SetDefaults(i)
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.Routing.Mode != RoutingStraight && c.Routing.Mode != RoutingOSRM {
		return fmt.Errorf("unknown routing mode %s", c.Routing.Mode)
	}
	seen := make(map[string]bool, len(c.Fleets))
	for _, f := range c.Fleets {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("fleet %s: %w", f.Name, err)
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate fleet %s", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides
	if err := k.Load(env.Provider("K_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "k_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
