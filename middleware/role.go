package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/authsvc"
)

// RequireRole admits requests whose user holds at least one of roles. It
// must run after Guard.
func RequireRole(onError ErrorHandler, roles ...string) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := ResultFromContext(r.Context())
			if !ok {
				onError(w, r, authsvc.ErrTokenMissing)
				return
			}
			for _, role := range roles {
				if slices.Contains(res.User.Roles, role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			onError(w, r, authsvc.ErrForbidden)
		})
	}
}
