package authsvc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/internal/flows"
)

// RefreshAccessToken rotates refreshToken and returns a new pair.
//
// Presenting a token that was already rotated fails with
// ErrTokenReuseDetected. The successor issued by the first rotation stays
// valid unless Config.Refresh.RevokeOnReuse is set, in which case every
// refresh token of the subject is revoked.
func (e *Engine) RefreshAccessToken(ctx context.Context, refreshToken string, dev Device) (*TokenPair, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}

	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: refresh token required", ErrTokenInvalid)
	}
	dev = deviceFromContext(ctx, dev)

	res := e.flow.Refresh(ctx, refreshToken, dev)

	switch res.Failure {
	case flows.RefreshFailureNone:
	case flows.RefreshFailureRateLimited:
		return nil, mapBackendErr(res.Err)
	case flows.RefreshFailureReuse:
		e.metricInc(MetricRefreshReuseDetected)
		if res.Revoked > 0 {
			e.metricInc(MetricRefreshRevokedOnReuse)
		}
		e.logger.Warn("refresh token reuse detected",
			"user_id", res.SubjectID,
			"ip", dev.IP,
			"revoked", res.Revoked,
		)
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, res.SubjectID, ErrTokenReuseDetected, func() map[string]string {
			return map[string]string{
				"revoke_on_reuse": strconv.FormatBool(e.config.Refresh.RevokeOnReuse),
				"revoked":         strconv.Itoa(res.Revoked),
			}
		})
		return nil, fmt.Errorf("%w: %w", ErrTokenReuseDetected, res.Err)
	case flows.RefreshFailureIntegrity:
		err := fmt.Errorf("%w: %w", ErrIntegrityViolation, res.Err)
		e.metricInc(MetricRefreshFailure)
		e.logger.Error("refresh ledger integrity violation", "user_id", res.SubjectID, "error", res.Err)
		e.emitAudit(ctx, auditEventRefreshIntegrity, false, res.SubjectID, err, nil)
		return nil, err
	default:
		err := refreshError(res)
		e.metricInc(MetricRefreshFailure)
		e.emitAudit(ctx, auditEventRefreshInvalid, false, res.SubjectID, err, nil)
		return nil, err
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, res.SubjectID, nil, nil)

	pair := tokenPairOf(res.Tokens)
	return &pair, nil
}

func refreshError(res flows.RefreshResult) error {
	switch res.Failure {
	case flows.RefreshFailureDecode:
		return fmt.Errorf("%w: %w", ErrTokenInvalid, res.Err)
	case flows.RefreshFailureTokenExpired, flows.RefreshFailureRecordExpired:
		return fmt.Errorf("%w: %w", ErrTokenExpired, res.Err)
	case flows.RefreshFailureNotFound:
		return fmt.Errorf("%w: %w", ErrTokenInvalid, res.Err)
	case flows.RefreshFailureIdentity:
		if errors.Is(res.Err, identity.ErrNotFound) {
			return fmt.Errorf("%w: subject no longer exists", ErrTokenInvalid)
		}
		return mapBackendErr(res.Err)
	case flows.RefreshFailureIssueRefresh, flows.RefreshFailureIssueAccess:
		return fmt.Errorf("issue tokens: %w", res.Err)
	default:
		return mapBackendErr(res.Err)
	}
}
