// Package httpapi exposes the engine as a JSON API under /api/v1/users.
//
// Every response uses the envelope {statusCode, success, message, data};
// errors add a code object carrying the stable name and number from
// [authsvc.ErrorCode]. Tokens travel in HttpOnly SameSite=None cookies.
package httpapi
