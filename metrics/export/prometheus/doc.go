// Package prometheus exposes goSession Engine metrics as a
// prometheus.Collector.
//
// Counter names are prefixed gpsession_*_total; the single histogram is
// gpsession_fetch_latency_seconds. [Collector.Handler] serves a private
// registry for callers that only want an endpoint.
//
// # What this package must NOT do
//
//   - Register metrics in the global Prometheus registry.
//   - Mutate engine state.
package prometheus
