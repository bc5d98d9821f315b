// Package sinks implements progress consumers: structured logs, Prometheus
// collectors and an in-memory view of the latest event per stage.
package sinks
