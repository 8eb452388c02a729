package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/authsvc"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// ClientInfo copies the caller's IP, user agent and request id into the
// request context so engine audit events and refresh records carry them.
// Run it after chi's RealIP and RequestID middleware.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if ip := remoteIP(r.RemoteAddr); ip != "" {
			ctx = authsvc.WithClientIP(ctx, ip)
		}
		if ua := r.UserAgent(); ua != "" {
			ctx = authsvc.WithUserAgent(ctx, ua)
		}
		if id := chimw.GetReqID(ctx); id != "" {
			ctx = authsvc.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func remoteIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
