// Package sinks implements progress consumers: a structured log sink and a
// Prometheus sink. Each satisfies progress.Sink and tolerates repeated
// Consume/Close cycles.
package sinks
