package authsvc

import (
	"context"
	"fmt"

	"github.com/MrEthical07/authsvc/internal/flows"
)

// VerifyOTP consumes the live code for email and marks the identity
// verified. A wrong code fails with ErrOtpInvalid and leaves the code in
// place; a missing or expired one fails with ErrOtpExpiredOrMissing.
func (e *Engine) VerifyOTP(ctx context.Context, email, code string) (Profile, error) {
	if !e.ready() {
		return Profile{}, ErrEngineNotReady
	}

	email, err := validateEmail(email)
	if err != nil {
		return Profile{}, err
	}
	if err := requestValidator.Var(code, "required,otp"); err != nil {
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, "", ErrOtpInvalid, nil)
		return Profile{}, fmt.Errorf("%w: malformed code", ErrOtpInvalid)
	}

	res := e.flow.Verify(ctx, email, code)
	if res.Failure != flows.VerifyFailureNone {
		err := verifyError(res)
		var userID string
		if res.Identity != nil {
			userID = res.Identity.ID
		}
		e.metricInc(MetricOTPVerifyFailure)
		e.emitAudit(ctx, auditEventOTPVerifyFailure, false, userID, err, nil)
		if res.Restored {
			e.emitAudit(ctx, auditEventOTPRestored, true, userID, nil, nil)
		}
		return Profile{}, err
	}

	e.metricInc(MetricOTPVerifySuccess)
	e.emitAudit(ctx, auditEventOTPVerifySuccess, true, res.Identity.ID, nil, nil)
	return profileOf(res.Identity), nil
}

func verifyError(res flows.VerifyResult) error {
	switch res.Failure {
	case flows.VerifyFailureMismatch:
		return fmt.Errorf("%w: %w", ErrOtpInvalid, res.Err)
	case flows.VerifyFailureMissing:
		return fmt.Errorf("%w: %w", ErrOtpExpiredOrMissing, res.Err)
	default:
		return mapBackendErr(res.Err)
	}
}
