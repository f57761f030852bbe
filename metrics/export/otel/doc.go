// Package otel publishes otpgate engine metrics as OpenTelemetry observable
// instruments.
//
// One callback reads the engine snapshot per collection cycle. Counters map
// to Int64ObservableCounter; each latency histogram becomes one cumulative
// gauge per bucket plus a count gauge. Callers own the MeterProvider.
package otel
