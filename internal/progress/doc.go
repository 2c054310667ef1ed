// Package progress carries task lifecycle events from the tracker to pluggable
// sinks. Emit never blocks the tracker; events are batched on a background
// goroutine and fanned out to sinks such as structured logs or Prometheus.
package progress
