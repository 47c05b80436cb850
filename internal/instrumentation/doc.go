// Package instrumentation provides OpenTelemetry metrics for the sync
// core: cache hit rates, remote call volume and latency, retry backoffs,
// hydration outcomes, and watch poll/reseed counts.
//
// Metrics can be exported via Prometheus (pull), OTLP (push), or stdout
// (development only). All Record methods are nil-safe so components can be
// built without a recorder in tests.
package instrumentation
