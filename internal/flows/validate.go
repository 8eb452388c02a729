package flows

import (
	"context"
	"errors"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/jwt"
)

// ValidateFailureKind classifies validation failures for root-level mapping.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalid
	ValidateFailureExpired
	ValidateFailureIdentity
)

// ValidateResult carries verified claims and the resolved identity.
type ValidateResult struct {
	Failure  ValidateFailureKind
	Err      error
	Claims   *jwt.AccessClaims
	Identity *identity.Identity
}

// ValidateDeps captures validation dependencies.
type ValidateDeps struct {
	VerifyAccess func(string) (*jwt.AccessClaims, error)
	FindIdentity func(context.Context, string) (*identity.Identity, error)
	TokenExpired error
}

// RunValidate checks signature and expiry, then resolves the subject once
// for the response payload. The ledger is never consulted.
func RunValidate(ctx context.Context, accessToken string, deps ValidateDeps) ValidateResult {
	claims, err := deps.VerifyAccess(accessToken)
	if err != nil {
		if deps.TokenExpired != nil && errors.Is(err, deps.TokenExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	if deps.FindIdentity == nil {
		return ValidateResult{Claims: claims}
	}
	ident, err := deps.FindIdentity(ctx, claims.Subject)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureIdentity, Err: err, Claims: claims}
	}
	return ValidateResult{Claims: claims, Identity: ident}
}
