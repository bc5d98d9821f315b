// Package api exposes the read-only HTTP status surface of the harvester:
// liveness and readiness checks, Prometheus metrics, and the corpus status
// (table sizes, due records, metadata and the latest progress events).
package api
