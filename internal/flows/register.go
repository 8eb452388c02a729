package flows

import (
	"context"

	"github.com/MrEthical07/authsvc/identity"
)

// RegisterFailureKind classifies register flow failures for root-level mapping.
type RegisterFailureKind int

const (
	RegisterFailureNone RegisterFailureKind = iota
	RegisterFailureRateLimited
	RegisterFailurePreflight
	RegisterFailureHash
	RegisterFailureCreate
	RegisterFailureIssueOTP
	RegisterFailureSend
)

// RegisterInput is the validated registration request.
type RegisterInput struct {
	Email    string
	Username string
	Password string
}

// RegisterResult carries the created identity or failure metadata. Identity
// is set on RegisterFailureSend as well, since the account exists by then.
type RegisterResult struct {
	Failure  RegisterFailureKind
	Err      error
	Identity *identity.Identity
}

// RegisterDeps captures register flow dependencies.
type RegisterDeps struct {
	Admit          func(context.Context, string) error
	Preflight      func(context.Context) error
	HashPassword   func(string) (string, error)
	CreateIdentity func(context.Context, identity.NewIdentity) (*identity.Identity, error)
	OTP            OTPDispatch
	Warn           func(string, ...any)
}

// OTPDispatch issues a fresh code for an identity and mails it. DiscardOTP
// runs when the mail could not be handed off, so no code is left behind
// that the user never received.
type OTPDispatch struct {
	IssueOTP   func(context.Context, string) (string, error)
	SendOTP    func(context.Context, *identity.Identity, string) error
	DiscardOTP func(context.Context, string) error
}

// RunRegister creates an unverified identity and sends its first OTP.
func RunRegister(ctx context.Context, in RegisterInput, deps RegisterDeps) RegisterResult {
	warn := warnOrNop(deps.Warn)

	if deps.Admit != nil {
		if err := deps.Admit(ctx, in.Email); err != nil {
			return RegisterResult{Failure: RegisterFailureRateLimited, Err: err}
		}
	}

	if deps.Preflight != nil {
		if err := deps.Preflight(ctx); err != nil {
			return RegisterResult{Failure: RegisterFailurePreflight, Err: err}
		}
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return RegisterResult{Failure: RegisterFailureHash, Err: err}
	}

	ident, err := deps.CreateIdentity(ctx, identity.NewIdentity{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
	})
	if err != nil {
		return RegisterResult{Failure: RegisterFailureCreate, Err: err}
	}

	if kind, err := dispatchOTP(ctx, ident, deps.OTP, warn); err != nil {
		if kind == otpFailureIssue {
			return RegisterResult{Failure: RegisterFailureIssueOTP, Err: err, Identity: ident}
		}
		return RegisterResult{Failure: RegisterFailureSend, Err: err, Identity: ident}
	}

	return RegisterResult{Identity: ident}
}

type otpFailure int

const (
	otpFailureNone otpFailure = iota
	otpFailureIssue
	otpFailureSend
)

func dispatchOTP(ctx context.Context, ident *identity.Identity, d OTPDispatch, warn func(string, ...any)) (otpFailure, error) {
	code, err := d.IssueOTP(ctx, ident.Email)
	if err != nil {
		return otpFailureIssue, err
	}
	if err := d.SendOTP(ctx, ident, code); err != nil {
		if d.DiscardOTP != nil {
			if derr := d.DiscardOTP(ctx, ident.Email); derr != nil {
				warn("authsvc: discard otp after failed send", "user_id", ident.ID, "error", derr)
			}
		}
		return otpFailureSend, err
	}
	return otpFailureNone, nil
}
