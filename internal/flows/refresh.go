package flows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/jwt"
	"github.com/MrEthical07/authsvc/ledger"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureTokenExpired
	RefreshFailureRateLimited
	RefreshFailureIdentity
	RefreshFailureIssueRefresh
	RefreshFailureNotFound
	RefreshFailureReuse
	RefreshFailureRecordExpired
	RefreshFailureIntegrity
	RefreshFailureRotate
	RefreshFailureIssueAccess
)

// RefreshResult carries either the issued token pair or failure metadata.
type RefreshResult struct {
	Failure   RefreshFailureKind
	Err       error
	SubjectID string
	Tokens    TokenPair
	// Revoked counts records removed in response to reuse.
	Revoked int
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Admit         func(context.Context, string) error
	VerifyRefresh func(string) (*jwt.RefreshClaims, error)
	FindIdentity  func(context.Context, string) (*identity.Identity, error)
	IssueRefresh  func(string) (string, time.Time, error)
	Rotate        func(context.Context, string, string, time.Time, ledger.Device) (*ledger.Record, error)
	IssueAccess   func(*identity.Identity) (string, time.Time, error)
	RevokeAll     func(context.Context, string) (int, error)
	Warn          func(string, ...any)

	// RevokeOnReuse revokes every refresh token of the subject when a
	// rotated token is presented again.
	RevokeOnReuse bool

	TokenExpired  error
	ReuseDetected error
	NotFound      error
	RecordExpired error
}

// RunRefresh verifies the presented refresh token, rotates it in the ledger
// and issues a fresh access token. The identity is resolved before the
// rotation so a failed lookup never burns the presented token.
func RunRefresh(ctx context.Context, refreshToken string, dev ledger.Device, deps RefreshDeps) RefreshResult {
	warn := warnOrNop(deps.Warn)

	claims, err := deps.VerifyRefresh(refreshToken)
	if err != nil {
		if deps.TokenExpired != nil && errors.Is(err, deps.TokenExpired) {
			return RefreshResult{Failure: RefreshFailureTokenExpired, Err: err}
		}
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	subjectID := claims.Subject

	// Admission is keyed by subject, which only a verified token yields.
	// Forged or expired tokens are rejected above without charging anyone.
	if deps.Admit != nil {
		if err := deps.Admit(ctx, subjectID); err != nil {
			return RefreshResult{Failure: RefreshFailureRateLimited, Err: err, SubjectID: subjectID}
		}
	}

	ident, err := deps.FindIdentity(ctx, subjectID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIdentity, Err: err, SubjectID: subjectID}
	}

	nextToken, nextExpiry, err := deps.IssueRefresh(subjectID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueRefresh, Err: err, SubjectID: subjectID}
	}

	prev, err := deps.Rotate(ctx, refreshToken, nextToken, nextExpiry, dev)
	if err != nil {
		switch {
		case deps.ReuseDetected != nil && errors.Is(err, deps.ReuseDetected):
			res := RefreshResult{Failure: RefreshFailureReuse, Err: err, SubjectID: subjectID}
			if deps.RevokeOnReuse && deps.RevokeAll != nil {
				n, rerr := deps.RevokeAll(ctx, subjectID)
				if rerr != nil {
					warn("authsvc: revoke after refresh reuse failed", "user_id", subjectID, "error", rerr)
				}
				res.Revoked = n
			}
			return res
		case deps.NotFound != nil && errors.Is(err, deps.NotFound):
			return RefreshResult{Failure: RefreshFailureNotFound, Err: err, SubjectID: subjectID}
		case deps.RecordExpired != nil && errors.Is(err, deps.RecordExpired):
			return RefreshResult{Failure: RefreshFailureRecordExpired, Err: err, SubjectID: subjectID}
		default:
			return RefreshResult{Failure: RefreshFailureRotate, Err: err, SubjectID: subjectID}
		}
	}

	if prev != nil && prev.SubjectID != subjectID {
		return RefreshResult{
			Failure:   RefreshFailureIntegrity,
			Err:       fmt.Errorf("ledger subject %q does not match token subject", prev.SubjectID),
			SubjectID: subjectID,
		}
	}

	access, accessExp, err := deps.IssueAccess(ident)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssueAccess, Err: err, SubjectID: subjectID}
	}

	return RefreshResult{
		SubjectID: subjectID,
		Tokens: TokenPair{
			AccessToken:      access,
			AccessExpiresAt:  accessExp,
			RefreshToken:     nextToken,
			RefreshExpiresAt: nextExpiry,
		},
	}
}
