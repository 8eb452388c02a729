// Package otel publishes engine metrics through a caller-supplied
// OpenTelemetry Meter.
//
// Every counter is one series of the authsvc.operations instrument,
// identified by its operation and outcome attributes (login/failure,
// refresh/reuse_detected, audit/dropped and so on). The validate latency
// histogram is exported as a cumulative gauge keyed by the le attribute
// plus a sample count.
package otel
