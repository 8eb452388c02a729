package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/ledger"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureInvalidCredentials
	LoginFailureLookup
	LoginFailurePasswordCheck
	LoginFailureUnverified
	LoginFailureIssue
	LoginFailureRecord
)

// LoginResult carries the issued pair and identity or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	Identity *identity.Identity
	Tokens   TokenPair
}

// LoginDeps captures login flow dependencies.
type LoginDeps struct {
	Admit          func(context.Context, string) error
	FindIdentity   func(context.Context, string) (*identity.Identity, error)
	VerifyPassword func(string, string) (bool, error)
	IssuePair      func(*identity.Identity) (TokenPair, error)
	RecordRefresh  func(context.Context, string, string, ledger.Device, time.Time) error
	Warn           func(string, ...any)

	// Rehash and ResetAdmission run after a successful login. Both are
	// best effort and never fail the login.
	Rehash         func(context.Context, *identity.Identity, string)
	ResetAdmission func(context.Context, string)

	// DummyHash is verified against when the identifier is unknown so both
	// failure paths pay for one password hash.
	DummyHash string
	NotFound  error
}

// RunLogin authenticates identifier and password and issues a token pair.
// The verification state is checked only after the password matched, so an
// unverified account is never reported for a wrong password.
func RunLogin(ctx context.Context, identifier, password string, dev ledger.Device, deps LoginDeps) LoginResult {
	if deps.Admit != nil {
		if err := deps.Admit(ctx, identifier); err != nil {
			return LoginResult{Failure: LoginFailureRateLimited, Err: err}
		}
	}

	if password == "" {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: errors.New("empty password")}
	}

	ident, err := deps.FindIdentity(ctx, identifier)
	if err != nil {
		if deps.NotFound != nil && errors.Is(err, deps.NotFound) {
			if deps.DummyHash != "" {
				_, _ = deps.VerifyPassword(password, deps.DummyHash)
			}
			return LoginResult{Failure: LoginFailureInvalidCredentials, Err: err}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err}
	}

	ok, err := deps.VerifyPassword(password, ident.PasswordHash)
	if err != nil {
		return LoginResult{Failure: LoginFailurePasswordCheck, Err: err, Identity: ident}
	}
	if !ok {
		return LoginResult{Failure: LoginFailureInvalidCredentials, Err: errors.New("password mismatch"), Identity: ident}
	}

	if !ident.Verified {
		return LoginResult{Failure: LoginFailureUnverified, Identity: ident}
	}

	pair, err := deps.IssuePair(ident)
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, Identity: ident}
	}

	if err := deps.RecordRefresh(ctx, pair.RefreshToken, ident.ID, dev, pair.RefreshExpiresAt); err != nil {
		return LoginResult{Failure: LoginFailureRecord, Err: err, Identity: ident}
	}

	if deps.Rehash != nil {
		deps.Rehash(ctx, ident, password)
	}
	if deps.ResetAdmission != nil {
		deps.ResetAdmission(ctx, identifier)
	}

	return LoginResult{Identity: ident, Tokens: pair}
}
