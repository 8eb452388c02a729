// Package authsvc is the session core of an authentication service: OTP
// gated registration, password login, rotating refresh tokens with reuse
// detection, and stateless access-token validation.
//
// The package is designed for concurrent server workloads: Engine methods are safe to call
// from multiple goroutines after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// authsvc is the public surface. It exposes [Engine], [Builder], [Config], and value types
// (Profile, TokenPair, MetricsSnapshot). Storage lives in the identity, otp and ledger
// packages; token encoding in jwt; mail delivery in notify. Flow orchestration, rate
// limiting and audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis or Postgres clients in its public API.
//   - Perform I/O outside of Engine methods (construction via Builder is allocation-only
//     until Build).
//   - Import any sub-package that re-imports authsvc (no import cycles).
//
// # Performance contract
//
// ValidateToken is the hot path: one signature check and one identity lookup, never a
// ledger round-trip.
package authsvc
