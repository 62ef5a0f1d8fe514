// Package metrics defines the recorder interfaces fed by simulation events.
// Sinks like PromSink, InfluxSink and EcoSink live in infra/metrics and can
// be combined with NewMultiSink. NewMetricsSink returns a MultiSink
// automatically when several sinks are configured.
package metrics
