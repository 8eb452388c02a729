// Package flows contains pure-function orchestrators for every Engine operation.
//
// Each flow function (RunRegister, RunLogin, RunRefresh, etc.) accepts a typed
// dependency struct and returns a result carrying a failure kind instead of a
// root-level error. The Engine maps failure kinds to its public sentinels,
// metrics and audit events, which keeps the Engine thin and lets every branch
// be tested with stub dependencies.
//
// # Architecture boundaries
//
// Flow functions coordinate calls to the identity store, OTP store, token
// codec, refresh ledger and admission control. They do NOT own any of these
// resources; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authsvc (to avoid import cycles).
//   - Perform I/O directly. All I/O is mediated through dependency funcs.
package flows
