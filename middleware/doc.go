// Package middleware adapts engine token validation to net/http.
//
//   - [Guard] validates the access token from the access_token cookie or a
//     Bearer header and stores the result in the request context.
//   - [RequireRole] admits only users holding one of the named roles.
//   - [ClientInfo] forwards client IP, user agent and request id to the engine.
//
// Decisions are delegated to Engine.ValidateToken; this package never parses
// JWTs itself.
package middleware
