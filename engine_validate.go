package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/internal/flows"
)

// ValidateToken verifies an access token and resolves its subject for the
// response payload. The refresh ledger is never consulted, so a token
// stays valid until expiry even after logout.
func (e *Engine) ValidateToken(ctx context.Context, accessToken string) (*ValidateResult, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	start := e.now()
	defer func() {
		if e.metrics.LatencyEnabled() {
			e.metrics.Observe(MetricValidateLatency, e.now().Sub(start))
		}
	}()

	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		e.metricInc(MetricValidateFailure)
		return nil, fmt.Errorf("%w: access token required", ErrTokenInvalid)
	}

	res := e.flow.Validate(ctx, accessToken)
	switch res.Failure {
	case flows.ValidateFailureNone:
	case flows.ValidateFailureExpired:
		e.metricInc(MetricValidateFailure)
		return nil, fmt.Errorf("%w: %w", ErrTokenExpired, res.Err)
	case flows.ValidateFailureInvalid:
		e.metricInc(MetricValidateFailure)
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, res.Err)
	default:
		e.metricInc(MetricValidateFailure)
		return nil, mapBackendErr(res.Err)
	}

	e.metricInc(MetricValidateSuccess)

	claims := Claims{
		Subject: res.Claims.Subject,
		Email:   res.Claims.Email,
		Roles:   res.Claims.Roles,
	}
	if res.Claims.IssuedAt != nil {
		claims.IssuedAt = res.Claims.IssuedAt.Time
	}
	if res.Claims.ExpiresAt != nil {
		claims.ExpiresAt = res.Claims.ExpiresAt.Time
	}
	return &ValidateResult{
		Claims: claims,
		User:   profileOf(res.Identity),
	}, nil
}

// Profile returns the public view of subjectID.
func (e *Engine) Profile(ctx context.Context, subjectID string) (Profile, error) {
	if !e.ready() {
		return Profile{}, ErrEngineNotReady
	}

	ident, err := withTimeout(ctx, e.config.Timeouts.Store, func(ctx context.Context) (*identity.Identity, error) {
		return e.identities.FindByID(ctx, strings.TrimSpace(subjectID))
	})
	if err != nil {
		return Profile{}, mapBackendErr(err)
	}
	return profileOf(ident), nil
}

// CheckUser reports whether an identity exists for email and whether it
// is verified.
func (e *Engine) CheckUser(ctx context.Context, email string) (exists, verified bool, err error) {
	if !e.ready() {
		return false, false, ErrEngineNotReady
	}

	email, err = validateEmail(email)
	if err != nil {
		return false, false, err
	}

	ident, err := withTimeout(ctx, e.config.Timeouts.Store, func(ctx context.Context) (*identity.Identity, error) {
		return e.identities.FindByEmail(ctx, email)
	})
	if errors.Is(err, identity.ErrNotFound) {
		return false, false, nil
	}
	if err != nil {
		return false, false, mapBackendErr(err)
	}
	return true, ident.Verified, nil
}
