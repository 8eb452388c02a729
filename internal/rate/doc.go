// Package rate implements the Redis-backed admission pre-check used before
// any engine logic runs.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys are
// <prefix>:<scope>:<key>, for example rl:login:alice or rl:otp:ip:10.0.0.1.
//
// # What this package must NOT do
//
//   - Decide which key a request is charged to (the engine does that).
//   - Be imported outside the authsvc module.
package rate
