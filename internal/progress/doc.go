// Package progress provides run events and a non-blocking hub that batches
// them on a background goroutine and fans them out to sinks such as logs,
// Prometheus collectors or the status endpoint.
package progress
