package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrEthical07/authsvc"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubValidator struct {
	tokens map[string]*authsvc.ValidateResult
	seen   []string
}

func (s *stubValidator) ValidateToken(_ context.Context, token string) (*authsvc.ValidateResult, error) {
	s.seen = append(s.seen, token)
	if res, ok := s.tokens[token]; ok {
		return res, nil
	}
	return nil, authsvc.ErrTokenInvalid
}

func newStub() *stubValidator {
	return &stubValidator{tokens: map[string]*authsvc.ValidateResult{
		"good": {User: authsvc.Profile{ID: "u1", Roles: []string{"user"}}},
		"root": {User: authsvc.Profile{ID: "u2", Roles: []string{"user", "admin"}}},
	}}
}

func okHandler(t *testing.T, wantID string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		res, ok := ResultFromContext(r.Context())
		require.True(t, ok)
		assert.Equal(t, wantID, res.User.ID)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestGuardMissingToken(t *testing.T) {
	var gotErr error
	onErr := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusUnauthorized)
	}

	rec := httptest.NewRecorder()
	Guard(newStub(), onErr)(okHandler(t, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.ErrorIs(t, gotErr, authsvc.ErrTokenMissing)
}

func TestGuardBearerAndCookie(t *testing.T) {
	stub := newStub()

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec := httptest.NewRecorder()
	Guard(stub, nil)(okHandler(t, "u1")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookie, Value: "root"})
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	Guard(stub, nil)(okHandler(t, "u2")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	assert.Equal(t, []string{"good", "root"}, stub.seen, "cookie takes precedence over header")
}

func TestGuardInvalidToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec := httptest.NewRecorder()
	Guard(newStub(), nil)(okHandler(t, "")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic Zm9vOmJhcg==")
	rec = httptest.NewRecorder()
	Guard(newStub(), nil)(okHandler(t, "")).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole(t *testing.T) {
	stub := newStub()
	chain := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h := Guard(stub, nil)(RequireRole(nil, "admin")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})))
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusForbidden, chain("good").Code)
	assert.Equal(t, http.StatusNoContent, chain("root").Code)

	rec := httptest.NewRecorder()
	RequireRole(nil, "admin")(okHandler(t, "")).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClientInfo(t *testing.T) {
	var ip, ua, id string
	h := chimw.RequestID(ClientInfo(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		ip = authsvc.ClientIPFromContext(r.Context())
		ua = authsvc.UserAgentFromContext(r.Context())
		id = authsvc.RequestIDFromContext(r.Context())
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:41234"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "192.0.2.7", ip)
	assert.Equal(t, "test-agent", ua)
	assert.NotEmpty(t, id)
}
