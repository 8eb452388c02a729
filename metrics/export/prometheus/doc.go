// Package prometheus exposes engine metrics through client_golang.
//
// [Collector] reads [authsvc.Engine.MetricsSnapshot] on every scrape and
// emits const metrics named authsvc_*_total plus the
// authsvc_validate_latency_seconds histogram. Callers register it on their
// own registry; nothing is added to the default one.
package prometheus
