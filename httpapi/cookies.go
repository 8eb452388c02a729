package httpapi

import (
	"net/http"
	"time"

	"github.com/MrEthical07/authsvc"
)

const (
	RefreshCookie = "refresh_token"
	AccessCookie  = "access_token"
)

// CookieConfig controls the token cookies. SameSite is always None, so
// browsers drop the cookies unless Secure is set outside local development.
type CookieConfig struct {
	Domain string
	Secure bool
}

func (c CookieConfig) cookie(name, value string, expires time.Time, now time.Time) *http.Cookie {
	maxAge := int(expires.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Domain:   c.Domain,
		Path:     "/",
		Expires:  expires,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteNoneMode,
	}
}

func (c CookieConfig) setTokens(w http.ResponseWriter, pair authsvc.TokenPair, now time.Time) {
	http.SetCookie(w, c.cookie(RefreshCookie, pair.RefreshToken, pair.RefreshExpiresAt, now))
	http.SetCookie(w, c.cookie(AccessCookie, pair.AccessToken, pair.AccessExpiresAt, now))
}

func (c CookieConfig) clearTokens(w http.ResponseWriter) {
	for _, name := range []string{RefreshCookie, AccessCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Domain:   c.Domain,
			Path:     "/",
			MaxAge:   -1,
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   c.Secure,
			SameSite: http.SameSiteNoneMode,
		})
	}
}
