// Package infra holds the adapters to external systems: the VROOM and OSRM
// HTTP clients, MQTT, Sentry, Prometheus and InfluxDB sinks, and the redis,
// file, sqlite and postgres backends. They implement interfaces declared in
// the core packages and register themselves in core factories.
package infra
