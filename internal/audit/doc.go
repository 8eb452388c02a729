// Package audit implements async event dispatching for security-relevant operations.
//
// # Components
//
//   - [Sink]: consumer of events. Channel, JSON writer, slog and no-op sinks are provided.
//   - [Dispatcher]: buffered async relay that either drops or blocks when full.
//   - [Event]: one structured audit record.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide which events
// to emit; that responsibility belongs to the Engine.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import authsvc or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
