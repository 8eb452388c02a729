package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authsvc/identity"
)

// VerifyFailureKind classifies OTP verification failures for root-level mapping.
type VerifyFailureKind int

const (
	VerifyFailureNone VerifyFailureKind = iota
	VerifyFailureRateLimited
	VerifyFailureMismatch
	VerifyFailureMissing
	VerifyFailureConsume
	VerifyFailureIdentity
	VerifyFailureMarkVerified
)

// VerifyResult carries the verified identity or failure metadata.
type VerifyResult struct {
	Failure  VerifyFailureKind
	Err      error
	Identity *identity.Identity
	Restored bool
}

// VerifyDeps captures OTP verification dependencies.
type VerifyDeps struct {
	Admit        func(context.Context, string) error
	ConsumeOTP   func(context.Context, string, string) (time.Duration, error)
	RestoreOTP   func(context.Context, string, string, time.Duration) (bool, error)
	FindIdentity func(context.Context, string) (*identity.Identity, error)
	MarkVerified func(context.Context, string) error
	Warn         func(string, ...any)

	OTPMismatch error
	OTPMissing  error
}

// RunVerify consumes the code and marks the identity verified. When the
// identity cannot be updated after the code was consumed, the code is put
// back for the rest of its lifetime so the user can retry.
func RunVerify(ctx context.Context, email, code string, deps VerifyDeps) VerifyResult {
	warn := warnOrNop(deps.Warn)

	if deps.Admit != nil {
		if err := deps.Admit(ctx, email); err != nil {
			return VerifyResult{Failure: VerifyFailureRateLimited, Err: err}
		}
	}

	remaining, err := deps.ConsumeOTP(ctx, email, code)
	if err != nil {
		switch {
		case deps.OTPMismatch != nil && errors.Is(err, deps.OTPMismatch):
			return VerifyResult{Failure: VerifyFailureMismatch, Err: err}
		case deps.OTPMissing != nil && errors.Is(err, deps.OTPMissing):
			return VerifyResult{Failure: VerifyFailureMissing, Err: err}
		default:
			return VerifyResult{Failure: VerifyFailureConsume, Err: err}
		}
	}

	restore := func() bool {
		if deps.RestoreOTP == nil || remaining <= 0 {
			return false
		}
		ok, rerr := deps.RestoreOTP(ctx, email, code, remaining)
		if rerr != nil {
			warn("authsvc: restore otp after failed verification", "error", rerr)
			return false
		}
		return ok
	}

	ident, err := deps.FindIdentity(ctx, email)
	if err != nil {
		return VerifyResult{Failure: VerifyFailureIdentity, Err: err, Restored: restore()}
	}

	if !ident.Verified {
		if err := deps.MarkVerified(ctx, ident.ID); err != nil {
			return VerifyResult{Failure: VerifyFailureMarkVerified, Err: err, Identity: ident, Restored: restore()}
		}
		ident.Verified = true
	}

	return VerifyResult{Identity: ident}
}

// ResendFailureKind classifies OTP resend failures for root-level mapping.
type ResendFailureKind int

const (
	ResendFailureNone ResendFailureKind = iota
	ResendFailureRateLimited
	ResendFailureLookup
	ResendFailureIssueOTP
	ResendFailureSend
)

// ResendResult reports whether a code was sent. Unknown and already
// verified addresses succeed with Sent=false.
type ResendResult struct {
	Failure ResendFailureKind
	Err     error
	Sent    bool
	UserID  string
}

// ResendDeps captures OTP resend dependencies.
type ResendDeps struct {
	Admit       func(context.Context, string) error
	FindByEmail func(context.Context, string) (*identity.Identity, error)
	NotFound    error
	OTP         OTPDispatch
	Warn        func(string, ...any)
}

// RunResend replaces the live code of an unverified identity and mails it.
func RunResend(ctx context.Context, email string, deps ResendDeps) ResendResult {
	warn := warnOrNop(deps.Warn)

	if deps.Admit != nil {
		if err := deps.Admit(ctx, email); err != nil {
			return ResendResult{Failure: ResendFailureRateLimited, Err: err}
		}
	}

	ident, err := deps.FindByEmail(ctx, email)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			return ResendResult{}
		}
		return ResendResult{Failure: ResendFailureLookup, Err: err}
	}
	if ident.Verified {
		return ResendResult{UserID: ident.ID}
	}

	if kind, err := dispatchOTP(ctx, ident, deps.OTP, warn); err != nil {
		if kind == otpFailureIssue {
			return ResendResult{Failure: ResendFailureIssueOTP, Err: err, UserID: ident.ID}
		}
		return ResendResult{Failure: ResendFailureSend, Err: err, UserID: ident.ID}
	}
	return ResendResult{Sent: true, UserID: ident.ID}
}
