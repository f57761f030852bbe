// Package prometheus renders otpgate engine metrics in the Prometheus text
// exposition format.
//
// [NewExporter] reads [otpgate.Engine.MetricsSnapshot] on every scrape; the
// [Exporter.Handler] is mounted by the server at GET /metrics. Nothing is
// registered in a global registry.
package prometheus
