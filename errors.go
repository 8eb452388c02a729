package authsvc

import (
	"context"
	"errors"
)

var (
	// ErrConflict is returned by Register when the email or username is taken.
	ErrConflict = errors.New("user with email or username already exists")
	// ErrInvalidCredentials is returned for an unknown identifier or a wrong password.
	ErrInvalidCredentials = errors.New("invalid user credentials")
	// ErrAccountNotVerified is returned by Login after a correct password for an unverified identity.
	ErrAccountNotVerified = errors.New("please verify your email before logging in")
	// ErrTokenInvalid covers malformed, tampered, unknown and wrong-kind tokens.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenMissing is returned when a protected request carries no access token.
	ErrTokenMissing = errors.New("unauthorized request")
	// ErrForbidden is returned when a valid token lacks a required role.
	ErrForbidden = errors.New("insufficient permissions")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenReuseDetected is returned when an already rotated refresh token is presented.
	ErrTokenReuseDetected = errors.New("refresh token reuse detected")
	// ErrOtpInvalid is returned when the code does not match. The live code is kept.
	ErrOtpInvalid = errors.New("invalid otp")
	// ErrOtpExpiredOrMissing is returned when no live code exists.
	ErrOtpExpiredOrMissing = errors.New("otp expired or not found")
	// ErrNotificationFailed is returned when the OTP email could not be sent.
	ErrNotificationFailed = errors.New("failed to send otp email")
	// ErrRateLimited is returned when admission control rejects a request.
	ErrRateLimited = errors.New("too many requests")
	// ErrNotFound is returned when a referenced identity does not exist.
	ErrNotFound = errors.New("user not found")
	// ErrIntegrityViolation is returned when stored state contradicts an invariant,
	// such as a refresh token digest collision.
	ErrIntegrityViolation = errors.New("integrity violation")
	// ErrTimeout is returned when a store or sender call exceeds its deadline.
	ErrTimeout = errors.New("backend call timed out")
	// ErrUnavailable is returned when a store or sender cannot be reached.
	ErrUnavailable = errors.New("backend unavailable")
	// ErrInvalidRequest is returned for input rejected before any store is touched.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrEngineNotReady is returned by methods of a zero or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Code is the stable machine-readable form of an error.
type Code struct {
	Name   string
	Number int
}

var (
	CodeInvalidCredentials = Code{"AUTH_INVALID_CREDENTIALS", 1001}
	CodeTokenExpired       = Code{"AUTH_TOKEN_EXPIRED", 1002}
	CodeTokenInvalid       = Code{"AUTH_TOKEN_INVALID", 1003}
	CodeTokenMissing       = Code{"AUTH_TOKEN_MISSING", 1004}
	CodeRefreshInvalid     = Code{"AUTH_REFRESH_TOKEN_INVALID", 1005}
	CodeNotVerified        = Code{"AUTH_ACCOUNT_NOT_VERIFIED", 1006}
	CodeForbidden          = Code{"AUTH_INSUFFICIENT_PERMISSIONS", 1007}
	CodeNotFound           = Code{"USER_NOT_FOUND", 2001}
	CodeConflict           = Code{"USER_ALREADY_EXISTS", 2002}
	CodeInvalidRequest     = Code{"VALIDATION_FAILED", 3001}
	CodeOtpExpired         = Code{"OTP_EXPIRED", 4001}
	CodeOtpInvalid         = Code{"OTP_INVALID", 4002}
	CodeNotification       = Code{"OTP_EMAIL_SEND_FAILED", 4004}
	CodeRateLimited        = Code{"RATE_LIMIT_EXCEEDED", 5001}
	CodeUnavailable        = Code{"BACKEND_UNAVAILABLE", 6001}
	CodeIntegrity          = Code{"INTEGRITY_VIOLATION", 6002}
	CodeTimeout            = Code{"BACKEND_TIMEOUT", 6004}
	CodeInternal           = Code{"INTERNAL_SERVER_ERROR", 6999}
)

// ErrorCode maps err to its stable code. Unknown errors map to CodeInternal.
// A cancelled or expired caller context maps to CodeTimeout.
func ErrorCode(err error) Code {
	switch {
	case err == nil:
		return Code{}
	case errors.Is(err, ErrInvalidCredentials):
		return CodeInvalidCredentials
	case errors.Is(err, ErrTokenExpired):
		return CodeTokenExpired
	case errors.Is(err, ErrTokenReuseDetected):
		return CodeRefreshInvalid
	case errors.Is(err, ErrTokenInvalid):
		return CodeTokenInvalid
	case errors.Is(err, ErrTokenMissing):
		return CodeTokenMissing
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrAccountNotVerified):
		return CodeNotVerified
	case errors.Is(err, ErrConflict):
		return CodeConflict
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrOtpExpiredOrMissing):
		return CodeOtpExpired
	case errors.Is(err, ErrOtpInvalid):
		return CodeOtpInvalid
	case errors.Is(err, ErrNotificationFailed):
		return CodeNotification
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrInvalidRequest):
		return CodeInvalidRequest
	case errors.Is(err, ErrIntegrityViolation):
		return CodeIntegrity
	case errors.Is(err, ErrTimeout),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	default:
		return CodeInternal
	}
}
