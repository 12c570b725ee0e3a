// Package otel binds authcore engine metrics to an OpenTelemetry Meter.
//
// New registers one Int64ObservableCounter per engine counter and one
// Int64ObservableGauge per histogram bucket, plus count and sum gauges. A
// single callback reads Engine.MetricsSnapshot on each collection, so the
// caller keeps ownership of the MeterProvider.
package otel
