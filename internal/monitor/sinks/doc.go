// Package sinks implements concrete monitor consumers such as Prometheus,
// the external job event publisher, and structured logging. Each sink
// satisfies the monitor.Sink interface and is safe for repeated
// Consume/Close cycles.
package sinks
