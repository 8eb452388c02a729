package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/MrEthical07/authsvc"
)

// envelope is the JSON body of every response.
type envelope struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
	Code       *code  `json:"code,omitempty"`
}

type code struct {
	Name   string `json:"name"`
	Number int    `json:"number"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; nothing useful can be done if encoding fails.
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, message string, data any) {
	if data == nil {
		data = struct{}{}
	}
	writeJSON(w, status, envelope{StatusCode: status, Success: true, Message: message, Data: data})
}

// statusClientClosedRequest is reported when the caller went away before
// the operation finished. Nothing reads the body.
const statusClientClosedRequest = 499

// errorStatus maps root errors to HTTP status codes. The first match wins.
var errorStatus = []struct {
	err    error
	status int
}{
	{authsvc.ErrInvalidRequest, http.StatusBadRequest},
	{authsvc.ErrConflict, http.StatusConflict},
	{authsvc.ErrInvalidCredentials, http.StatusUnauthorized},
	{authsvc.ErrAccountNotVerified, http.StatusUnauthorized},
	{authsvc.ErrTokenMissing, http.StatusUnauthorized},
	{authsvc.ErrTokenReuseDetected, http.StatusUnauthorized},
	{authsvc.ErrTokenExpired, http.StatusUnauthorized},
	{authsvc.ErrTokenInvalid, http.StatusUnauthorized},
	{authsvc.ErrForbidden, http.StatusForbidden},
	{authsvc.ErrNotFound, http.StatusNotFound},
	{authsvc.ErrIntegrityViolation, http.StatusConflict},
	{authsvc.ErrOtpExpiredOrMissing, http.StatusBadRequest},
	{authsvc.ErrOtpInvalid, http.StatusBadRequest},
	{authsvc.ErrRateLimited, http.StatusTooManyRequests},
	{authsvc.ErrNotificationFailed, http.StatusBadGateway},
	{authsvc.ErrTimeout, http.StatusGatewayTimeout},
	{authsvc.ErrUnavailable, http.StatusServiceUnavailable},
	{authsvc.ErrEngineNotReady, http.StatusServiceUnavailable},
	{context.Canceled, statusClientClosedRequest},
	{context.DeadlineExceeded, http.StatusGatewayTimeout},
}

// statusOf returns the status for err and the sentinel it matched, or
// 500 and nil.
func statusOf(err error) (int, error) {
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.err
		}
	}
	return http.StatusInternalServerError, nil
}

// writeError renders err. Only the matched sentinel's text reaches the
// client, except for validation failures whose detail names the fields.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, sentinel := statusOf(err)

	message := "internal server error"
	switch {
	case errors.Is(sentinel, authsvc.ErrInvalidRequest):
		message = err.Error()
	case sentinel != nil:
		message = sentinel.Error()
	}

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	c := authsvc.ErrorCode(err)
	writeJSON(w, status, envelope{
		StatusCode: status,
		Message:    message,
		Data:       nil,
		Code:       &code{Name: c.Name, Number: c.Number},
	})
}
