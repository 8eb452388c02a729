package authsvc

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/authsvc/internal/flows"
)

// Login authenticates identifier (email or username) and password and
// issues a token pair. The refresh token is recorded in the ledger before
// it is returned.
//
// Unknown identifiers and wrong passwords both fail with
// ErrInvalidCredentials. ErrAccountNotVerified is reported only after the
// password matched.
func (e *Engine) Login(ctx context.Context, identifier, password string, dev Device) (*LoginResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, fmt.Errorf("%w: identifier required", ErrInvalidRequest)
	}
	dev = deviceFromContext(ctx, dev)

	res := e.flow.Login(ctx, identifier, password, dev)

	var userID string
	if res.Identity != nil {
		userID = res.Identity.ID
	}

	switch res.Failure {
	case flows.LoginFailureNone:
	case flows.LoginFailureRateLimited:
		return nil, mapBackendErr(res.Err)
	case flows.LoginFailureInvalidCredentials:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	case flows.LoginFailureUnverified:
		e.metricInc(MetricLoginUnverified)
		e.emitAudit(ctx, auditEventLoginUnverified, false, userID, ErrAccountNotVerified, nil)
		return nil, ErrAccountNotVerified
	default:
		err := loginError(res)
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, userID, err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, userID, nil, func() map[string]string {
		return map[string]string{"user_agent": dev.UserAgent}
	})

	return &LoginResult{
		TokenPair: tokenPairOf(res.Tokens),
		User:      profileOf(res.Identity),
	}, nil
}

func loginError(res flows.LoginResult) error {
	switch res.Failure {
	case flows.LoginFailurePasswordCheck:
		return fmt.Errorf("verify password: %w", res.Err)
	case flows.LoginFailureIssue:
		return fmt.Errorf("issue tokens: %w", res.Err)
	default:
		return mapBackendErr(res.Err)
	}
}

func tokenPairOf(p flows.TokenPair) TokenPair {
	return TokenPair{
		AccessToken:      p.AccessToken,
		AccessExpiresAt:  p.AccessExpiresAt,
		RefreshToken:     p.RefreshToken,
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}
