package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/MrEthical07/authsvc"
)

// AccessCookie is the cookie Guard reads before the Authorization header.
const AccessCookie = "access_token"

// Validator is satisfied by *authsvc.Engine.
type Validator interface {
	ValidateToken(ctx context.Context, token string) (*authsvc.ValidateResult, error)
}

// ErrorHandler writes the rejection for a guarded request.
type ErrorHandler func(w http.ResponseWriter, r *http.Request, err error)

type resultContextKey struct{}

// ResultFromContext returns the validation result stored by Guard.
func ResultFromContext(ctx context.Context) (*authsvc.ValidateResult, bool) {
	res, ok := ctx.Value(resultContextKey{}).(*authsvc.ValidateResult)
	return res, ok && res != nil
}

// Guard rejects requests without a valid access token. The token is taken
// from the access_token cookie, then from an "Authorization: Bearer" header.
// A nil onError writes a plain 401.
func Guard(v Validator, onError ErrorHandler) func(http.Handler) http.Handler {
	if onError == nil {
		onError = plainError
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				onError(w, r, authsvc.ErrEngineNotReady)
				return
			}

			token, ok := accessToken(r)
			if !ok {
				onError(w, r, authsvc.ErrTokenMissing)
				return
			}

			res, err := v.ValidateToken(r.Context(), token)
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), resultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) (string, bool) {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value, true
	}
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func plainError(w http.ResponseWriter, _ *http.Request, err error) {
	switch {
	case errors.Is(err, authsvc.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, authsvc.ErrUnavailable), errors.Is(err, authsvc.ErrTimeout):
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
	default:
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}
}
