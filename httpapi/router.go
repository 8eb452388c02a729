package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/MrEthical07/authsvc/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Options configures NewRouter. Service is required.
type Options struct {
	Service Service
	Cookies CookieConfig
	Logger  *slog.Logger
	// Health is mounted at /health when set.
	Health http.Handler
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// ExposeTokens returns the token pair in login and refresh bodies.
	ExposeTokens bool
	Now          func() time.Time
}

// NewRouter builds the chi router for the auth API.
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	h := &Handler{
		svc:          opts.Service,
		cookies:      opts.Cookies,
		logger:       logger,
		now:          now,
		exposeTokens: opts.ExposeTokens,
	}
	onAuthError := func(w http.ResponseWriter, r *http.Request, err error) {
		writeError(w, r, logger, err)
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(logger))
	r.Use(middleware.ClientInfo)

	if opts.Health != nil {
		r.Method(http.MethodGet, "/health", opts.Health)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/api/v1/users", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/otpverification", h.VerifyOTP)
		r.Post("/resend-otp", h.ResendOTP)
		r.Post("/login", h.Login)
		r.Post("/refresh-token", h.Refresh)
		r.Post("/check-user", h.CheckUser)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Guard(opts.Service, onAuthError))
			r.Post("/logout", h.Logout)
			r.Get("/validate", h.Validate)
			r.Get("/profile", h.Profile)
		})
	})

	return r
}
