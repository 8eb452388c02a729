package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/authsvc"
	"github.com/MrEthical07/authsvc/middleware"
)

// Service is the engine surface the handlers call. *authsvc.Engine
// satisfies it.
type Service interface {
	Register(ctx context.Context, req authsvc.RegisterRequest) (authsvc.Profile, error)
	VerifyOTP(ctx context.Context, email, code string) (authsvc.Profile, error)
	ResendOTP(ctx context.Context, email string) error
	Login(ctx context.Context, identifier, password string, dev authsvc.Device) (*authsvc.LoginResult, error)
	RefreshAccessToken(ctx context.Context, refreshToken string, dev authsvc.Device) (*authsvc.TokenPair, error)
	Logout(ctx context.Context, subjectID string) error
	ValidateToken(ctx context.Context, accessToken string) (*authsvc.ValidateResult, error)
	Profile(ctx context.Context, subjectID string) (authsvc.Profile, error)
	CheckUser(ctx context.Context, email string) (exists, verified bool, err error)
}

const maxBodyBytes = 1 << 20

// Handler serves the /api/v1/users routes.
type Handler struct {
	svc     Service
	cookies CookieConfig
	logger  *slog.Logger
	now     func() time.Time
	// exposeTokens adds the token pair to login and refresh bodies for
	// clients that cannot hold cookies.
	exposeTokens bool
}

type registerRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email    string `json:"email"`
	InputOTP string `json:"inputOtp"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

func (req loginRequest) identifier() string {
	for _, v := range []string{req.Identifier, req.Email, req.Username} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type loginResponse struct {
	User   authsvc.Profile    `json:"user"`
	Tokens *authsvc.TokenPair `json:"tokens,omitempty"`
}

type refreshResponse struct {
	AccessExpiresAt  time.Time          `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time          `json:"refreshExpiresAt"`
	Tokens           *authsvc.TokenPair `json:"tokens,omitempty"`
}

type checkUserResponse struct {
	Exists     bool   `json:"exists"`
	IsVerified bool   `json:"isVerified"`
	Email      string `json:"email"`
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: malformed body: %v", authsvc.ErrInvalidRequest, err)
	}
	return nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, h.logger, err)
}

// Register handles POST /register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	profile, err := h.svc.Register(r.Context(), authsvc.RegisterRequest{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusCreated, "User created and OTP sent successfully", profile)
}

// VerifyOTP handles POST /otpverification.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || strings.TrimSpace(req.InputOTP) == "" {
		h.fail(w, r, fmt.Errorf("%w: email and inputOtp are required", authsvc.ErrInvalidRequest))
		return
	}

	profile, err := h.svc.VerifyOTP(r.Context(), req.Email, strings.TrimSpace(req.InputOTP))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "User verified successfully", profile)
}

// ResendOTP handles POST /resend-otp. The response does not reveal whether
// the address is registered.
func (h *Handler) ResendOTP(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	if err := h.svc.ResendOTP(r.Context(), req.Email); err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "If the account exists and is unverified, a new OTP has been sent", nil)
}

// Login handles POST /login and sets both token cookies.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	identifier := req.identifier()
	if identifier == "" || req.Password == "" {
		h.fail(w, r, fmt.Errorf("%w: username or email and password are required", authsvc.ErrInvalidRequest))
		return
	}

	res, err := h.svc.Login(r.Context(), identifier, req.Password, authsvc.Device{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.setTokens(w, res.TokenPair, h.now())
	body := loginResponse{User: res.User}
	if h.exposeTokens {
		pair := res.TokenPair
		body.Tokens = &pair
	}
	writeOK(w, http.StatusOK, "User logged in successfully", body)
}

// Refresh handles POST /refresh-token. The refresh token comes from the
// refresh_token cookie, or from the body when no cookie is sent.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	token := ""
	if c, err := r.Cookie(RefreshCookie); err == nil {
		token = c.Value
	}
	if token == "" && r.ContentLength != 0 {
		var req refreshRequest
		if err := decode(w, r, &req); err != nil {
			h.fail(w, r, err)
			return
		}
		token = strings.TrimSpace(req.RefreshToken)
	}
	if token == "" {
		h.fail(w, r, fmt.Errorf("%w: refresh token not found", authsvc.ErrTokenMissing))
		return
	}

	pair, err := h.svc.RefreshAccessToken(r.Context(), token, authsvc.Device{})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.cookies.setTokens(w, *pair, h.now())
	body := refreshResponse{AccessExpiresAt: pair.AccessExpiresAt, RefreshExpiresAt: pair.RefreshExpiresAt}
	if h.exposeTokens {
		body.Tokens = pair
	}
	writeOK(w, http.StatusOK, "Access token refreshed", body)
}

// Logout handles POST /logout. It runs behind the guard.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.ResultFromContext(r.Context())
	if !ok {
		h.fail(w, r, authsvc.ErrTokenMissing)
		return
	}

	if err := h.svc.Logout(r.Context(), res.Claims.Subject); err != nil {
		h.fail(w, r, err)
		return
	}
	h.cookies.clearTokens(w)
	writeOK(w, http.StatusOK, "Logged out successfully", nil)
}

// Validate handles GET /validate for services that delegate token checks.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.ResultFromContext(r.Context())
	if !ok {
		h.fail(w, r, authsvc.ErrTokenMissing)
		return
	}
	writeOK(w, http.StatusOK, "Token is valid", res.User)
}

// Profile handles GET /profile.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	res, ok := middleware.ResultFromContext(r.Context())
	if !ok {
		h.fail(w, r, authsvc.ErrTokenMissing)
		return
	}

	profile, err := h.svc.Profile(r.Context(), res.Claims.Subject)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, "User profile", profile)
}

// CheckUser handles POST /check-user.
func (h *Handler) CheckUser(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	exists, verified, err := h.svc.CheckUser(r.Context(), req.Email)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	message := "User does not exist"
	if exists {
		message = "User exists"
	}
	writeOK(w, http.StatusOK, message, checkUserResponse{
		Exists:     exists,
		IsVerified: verified,
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
	})
}
