package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/MrEthical07/authsvc"
	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/notify"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnvelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Code       *code           `json:"code"`
}

var codePattern = regexp.MustCompile(`class="otp-code">(\d{6})<`)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	router http.Handler
	mail   *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := authsvc.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("0123456789abcdef0123456789abcdef")
	cfg.JWT.RefreshSecret = []byte("fedcba9876543210fedcba9876543210")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Audit.Enabled = false

	mail := notify.NewRecorder(nil)
	engine, err := authsvc.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithIdentityStore(identity.NewMemory()).
		WithNotifier(mail).
		WithLogger(discardLogger()).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	health := NewHealth(time.Second)
	health.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	return &fixture{
		router: NewRouter(Options{
			Service: engine,
			Cookies: CookieConfig{Domain: "auth.example.test", Secure: true},
			Logger:  discardLogger(),
			Health:  health,
		}),
		mail: mail,
	}
}

func do(t *testing.T, h http.Handler, method, path string, body any, cookies ...*http.Cookie) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestAuthLifecycleOverHTTP(t *testing.T) {
	f := newFixture(t)

	rec, env := do(t, f.router, http.MethodPost, "/api/v1/users/register", map[string]string{
		"email": "a@x.com", "username": "alice", "password": "Abc12345!",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.True(t, env.Success)

	msg, ok := f.mail.Last("a@x.com")
	require.True(t, ok)
	m := codePattern.FindStringSubmatch(msg.HTML)
	require.NotNil(t, m)

	rec, env = do(t, f.router, http.MethodPost, "/api/v1/users/otpverification", map[string]string{
		"email": "a@x.com", "inputOtp": m[1],
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"isVerified":true`)

	rec, _ = do(t, f.router, http.MethodPost, "/api/v1/users/login", map[string]string{
		"username": "alice", "password": "Abc12345!",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	access := cookieNamed(rec, AccessCookie)
	refresh := cookieNamed(rec, RefreshCookie)
	require.NotNil(t, access)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.True(t, refresh.Secure)
	assert.Equal(t, http.SameSiteNoneMode, refresh.SameSite)
	assert.Equal(t, "auth.example.test", refresh.Domain)
	assert.Equal(t, "/", refresh.Path)

	rec, env = do(t, f.router, http.MethodGet, "/api/v1/users/validate", nil, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, string(env.Data), `"username":"alice"`)

	rec, _ = do(t, f.router, http.MethodPost, "/api/v1/users/refresh-token", nil, refresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rotated := cookieNamed(rec, RefreshCookie)
	require.NotNil(t, rotated)
	assert.NotEqual(t, refresh.Value, rotated.Value)

	rec, env = do(t, f.router, http.MethodPost, "/api/v1/users/refresh-token", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	require.NotNil(t, env.Code)
	assert.Equal(t, authsvc.CodeRefreshInvalid.Name, env.Code.Name)

	rec, _ = do(t, f.router, http.MethodPost, "/api/v1/users/logout", nil, access)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cleared := cookieNamed(rec, RefreshCookie)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec, _ = do(t, f.router, http.MethodPost, "/api/v1/users/refresh-token", nil, rotated)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegisterConflictEnvelope(t *testing.T) {
	f := newFixture(t)
	body := map[string]string{"email": "a@x.com", "username": "alice", "password": "Abc12345!"}

	rec, _ := do(t, f.router, http.MethodPost, "/api/v1/users/register", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, env := do(t, f.router, http.MethodPost, "/api/v1/users/register", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, env.Success)
	assert.Equal(t, http.StatusConflict, env.StatusCode)
	require.NotNil(t, env.Code)
	assert.Equal(t, authsvc.CodeConflict.Number, env.Code.Number)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/api/v1/users/validate", "/api/v1/users/profile"} {
		rec, env := do(t, f.router, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, env.Code)
		assert.Equal(t, authsvc.CodeTokenMissing.Name, env.Code.Name)
	}
}

func TestHealthReportsDependencies(t *testing.T) {
	f := newFixture(t)

	rec, env := do(t, f.router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), `"redis":{"status":"up"}`)

	h := NewHealth(time.Second)
	h.Register("postgres", func(context.Context) error { return errors.New("dial tcp: refused") })
	rec, env = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, env.Success)
}

type stubService struct {
	Service
	err error
}

func (s stubService) CheckUser(context.Context, string) (bool, bool, error) {
	return false, false, s.err
}

func TestErrorStatusTable(t *testing.T) {
	tests := []struct {
		err    error
		status int
		leak   bool
	}{
		{fmt.Errorf("%w: email failed email", authsvc.ErrInvalidRequest), http.StatusBadRequest, true},
		{authsvc.ErrRateLimited, http.StatusTooManyRequests, false},
		{fmt.Errorf("%w: redis: i/o timeout", authsvc.ErrTimeout), http.StatusGatewayTimeout, false},
		{fmt.Errorf("%w: dial tcp 10.0.0.5:5432", authsvc.ErrUnavailable), http.StatusServiceUnavailable, false},
		{errors.New("pq: relation secret_table missing"), http.StatusInternalServerError, false},
		{fmt.Errorf("%w: duplicate refresh digest", authsvc.ErrIntegrityViolation), http.StatusConflict, false},
		{context.Canceled, 499, false},
	}
	for _, tt := range tests {
		router := NewRouter(Options{Service: stubService{err: tt.err}, Logger: discardLogger()})
		rec, env := do(t, router, http.MethodPost, "/api/v1/users/check-user", map[string]string{"email": "a@x.com"})
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		if tt.leak {
			assert.Contains(t, env.Message, "email failed email")
		} else {
			assert.NotContains(t, env.Message, ":")
		}
	}
}

func TestCancelledCallerGetsTimeoutCode(t *testing.T) {
	router := NewRouter(Options{Service: stubService{err: fmt.Errorf("find identity: %w", context.Canceled)}, Logger: discardLogger()})
	rec, env := do(t, router, http.MethodPost, "/api/v1/users/check-user", map[string]string{"email": "a@x.com"})

	assert.Equal(t, statusClientClosedRequest, rec.Code)
	require.NotNil(t, env.Code)
	assert.Equal(t, authsvc.CodeTimeout.Name, env.Code.Name)
	assert.Equal(t, "context canceled", env.Message)
}

func TestMalformedBodyIsBadRequest(t *testing.T) {
	router := NewRouter(Options{Service: stubService{}, Logger: discardLogger()})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/check-user", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
