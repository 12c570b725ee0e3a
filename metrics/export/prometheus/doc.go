// Package prometheus exposes authcore engine metrics as a
// prometheus.Collector.
//
// The collector reads Engine.MetricsSnapshot on every scrape and emits const
// metrics, so it holds no state of its own and may be registered with any
// registry. Counters are named authcore_*_total and the verification latency
// histogram is authcore_verify_latency_seconds.
package prometheus
