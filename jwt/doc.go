// Package jwt signs and verifies the service's access and refresh tokens.
//
// A [Codec] is built once from configuration and is immutable afterwards.
// The signing algorithm is pinned by configuration and checked explicitly
// on every verification; the alg header of an incoming token is never
// trusted. Access and refresh tokens carry a typ claim so one kind can
// never be accepted as the other.
package jwt
