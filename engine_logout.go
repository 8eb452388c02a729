package authsvc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// Logout revokes every refresh token of subjectID. Revocation failures
// are logged and audited but never returned: the caller always clears its
// cookies and the user is never stuck logged in.
func (e *Engine) Logout(ctx context.Context, subjectID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return fmt.Errorf("%w: subject required", ErrInvalidRequest)
	}

	res := e.flow.Logout(ctx, subjectID)
	if res.Err != nil {
		e.logger.Warn("logout revocation failed", "user_id", subjectID, "error", res.Err)
		e.emitAudit(ctx, auditEventLogoutRevocationError, false, subjectID, mapBackendErr(res.Err), nil)
	}

	e.metricInc(MetricLogout)
	e.emitAudit(ctx, auditEventLogout, true, subjectID, nil, func() map[string]string {
		return map[string]string{"revoked": strconv.Itoa(res.Revoked)}
	})
	return nil
}
