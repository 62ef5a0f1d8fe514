package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, "config.yaml", `experiment_id: "exp-1"
mqtt:
  broker: "tcp://localhost:1883"
  client_id: "cli"
  topic_prefix: "sim"
  qos:
    vehicleMoved: 1
sentry:
  dsn: "https://key@sentry.example.com/4"
  environment: "staging"
metrics:
  prometheus_addr: ":9100"
  sinks:
    - type: "nop"
solver:
  url: "http://vroom:3000"
  timeout: 5s
  max_attempts: 2
  auth:
    client_id: "sim"
    token_url: "https://auth.example.com/token"
routing:
  mode: "osrm"
  osrm:
    url: "http://osrm:5000"
    rate_per_second: 2
cache:
  type: "file"
  conf:
    dir: "/tmp/cache"
store:
  type: "sqlite"
  conf:
    path: "plans.db"
clock:
  start_hour: 7
  multiplier: 60
fleets:
  - name: "north"
    dispatcher: "vroom"
    trucks: 3
    depot: {lon: 18.06, lat: 59.33}
    window: 2s
    co2_per_km: 1.2
    compartments:
      - volume: 10
        weightLimit: 5000
        wasteTypes: ["HUSHSORT"]
    settings:
      workday:
        start_minutes: 420
        end_minutes: 960
      solver:
        max_shipments: 50
  - dispatcher: "standard"
    depot: {lon: 18.1, lat: 59.3}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"experiment", cfg.ExperimentID, "exp-1"},
		{"broker", cfg.MQTT.Broker, "tcp://localhost:1883"},
		{"topic_prefix", cfg.MQTT.TopicPrefix, "sim"},
		{"qos", cfg.MQTT.QoS["vehicleMoved"], byte(1)},
		{"sentry.environment", cfg.Sentry.Environment, "staging"},
		{"prometheus_addr", cfg.Metrics.PrometheusAddr, ":9100"},
		{"metrics_sink", cfg.Metrics.Sinks[0].Type, "nop"},
		{"solver.url", cfg.Solver.URL, "http://vroom:3000"},
		{"solver.timeout", cfg.Solver.Timeout, 5 * time.Second},
		{"solver.auth", cfg.Solver.Auth.Enabled(), true},
		{"routing.mode", cfg.Routing.Mode, RoutingOSRM},
		{"osrm.url", cfg.Routing.OSRM.URL, "http://osrm:5000"},
		{"osrm.rate", cfg.Routing.OSRM.RatePerSecond, 2.0},
		{"osrm.profile", cfg.Routing.OSRM.Profile, "driving"},
		{"cache", cfg.Cache.Type, "file"},
		{"cache.dir", cfg.Cache.Conf["dir"], "/tmp/cache"},
		{"store", cfg.Store.Type, "sqlite"},
		{"clock.start_hour", cfg.Clock.StartHour, 7},
		{"clock.multiplier", cfg.Clock.Multiplier, 60.0},
		{"fleets", len(cfg.Fleets), 2},
		{"fleet.name", cfg.Fleets[0].Name, "north"},
		{"fleet.trucks", cfg.Fleets[0].Trucks, 3},
		{"fleet.depot", cfg.Fleets[0].Depot.Lat, 59.33},
		{"fleet.window", cfg.Fleets[0].Window, 2 * time.Second},
		{"fleet.compartment", cfg.Fleets[0].Compartments[0].WasteTypes[0], "HUSHSORT"},
		{"fleet.default_name", cfg.Fleets[1].Name, "fleet-1"},
		{"fleet.default_trucks", cfg.Fleets[1].Trucks, 1},
	}
	for _, c := range checks {
		assert.Equal(t, c.want, c.got, c.name)
	}

	s, err := cfg.Fleets[0].LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, 420, s.Workday.StartMinutes)
	assert.Equal(t, 50, s.Solver.MaxShipments)
	assert.NotZero(t, s.Solver.MaxJobs)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json", `{"fleets":[{"depot":{"lon":18,"lat":59}}]}`))
	require.NoError(t, err)
	assert.Equal(t, RoutingStraight, cfg.Routing.Mode)
	assert.Equal(t, "nop", cfg.Cache.Type)
	assert.Equal(t, "memory", cfg.Store.Type)
	assert.Equal(t, 1.0, cfg.Clock.Multiplier)
	assert.Equal(t, "vroom", cfg.Fleets[0].Dispatcher)

	p := cfg.Solver.Planner()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, 30*time.Second, p.Timeout)

	s, err := cfg.Fleets[0].LoadSettings()
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestLoadEnvOverride(t *testing.T) {
	path := writeConfig(t, "config.yaml", `solver:
  url: "http://vroom:3000"
`)
	t.Setenv("K_SOLVER__URL", "http://override:3000")
	t.Setenv("K_MQTT__BROKER", "tcp://broker:1883")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://override:3000", cfg.Solver.URL)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"format":     "",
		"routing":    "routing:\n  mode: teleport\n",
		"dispatcher": "fleets:\n  - name: a\n    dispatcher: magic\n",
		"replay":     "fleets:\n  - name: a\n    dispatcher: replay\n",
		"duplicate":  "fleets:\n  - name: a\n  - name: a\n",
		"depot":      "fleets:\n  - name: a\n    depot: {lon: 500, lat: 0}\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			file := "config.yaml"
			if name == "format" {
				file = "config.toml"
			}
			_, err := Load(writeConfig(t, file, data))
			assert.Error(t, err)
		})
	}
}
