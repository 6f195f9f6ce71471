// Package telemetry wires OpenTelemetry tracing.
//
// Setup always installs the W3C trace-context propagator, which carries the
// caller's trace across the task queue. Spans are exported over OTLP/HTTP only
// when an endpoint is configured; otherwise the global no-op provider stays in place.
package telemetry
