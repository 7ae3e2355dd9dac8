// Package otel publishes goSession Engine metrics through an OpenTelemetry
// Meter.
//
// [NewExporter] registers one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket, fed by a single callback that
// reads [goSession.Engine.MetricsSnapshot] on each collection.
//
// # What this package must NOT do
//
//   - Own the MeterProvider. Callers supply the Meter.
//   - Mutate engine state.
package otel
