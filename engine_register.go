package authsvc

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/authsvc/internal/flows"
)

// Register creates an unverified identity and mails its first OTP.
//
// A taken email or username fails with ErrConflict. When the email cannot
// be handed to the sender the call fails with ErrNotificationFailed; the
// identity is kept without a live code and ResendOTP recovers it.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (Profile, error) {
	if !e.ready() {
		return Profile{}, ErrEngineNotReady
	}

	req, err := e.validateRegister(req)
	if err != nil {
		e.metricInc(MetricRegisterFailure)
		return Profile{}, err
	}

	res := e.flow.Register(ctx, flows.RegisterInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})

	var userID string
	if res.Identity != nil {
		userID = res.Identity.ID
	}

	if res.Failure != flows.RegisterFailureNone {
		err := e.registerError(res)
		switch {
		case errors.Is(err, ErrConflict):
			e.metricInc(MetricRegisterConflict)
			e.emitAudit(ctx, auditEventRegisterDuplicate, false, "", err, nil)
		case errors.Is(err, ErrRateLimited):
			// audited by the admitter
		default:
			e.metricInc(MetricRegisterFailure)
			e.emitAudit(ctx, auditEventRegisterFailure, false, userID, err, nil)
		}
		return Profile{}, err
	}

	e.metricInc(MetricRegisterSuccess)
	e.emitAudit(ctx, auditEventRegisterSuccess, true, userID, nil, nil)
	return profileOf(res.Identity), nil
}

func (e *Engine) registerError(res flows.RegisterResult) error {
	switch res.Failure {
	case flows.RegisterFailureHash:
		return fmt.Errorf("hash password: %w", res.Err)
	case flows.RegisterFailurePreflight:
		return fmt.Errorf("%w: sender preflight: %w", ErrNotificationFailed, res.Err)
	case flows.RegisterFailureSend:
		return res.Err
	default:
		return mapBackendErr(res.Err)
	}
}

// ResendOTP replaces the live code of an unverified identity and mails the
// new one. Unknown and already verified addresses return nil without
// sending anything.
func (e *Engine) ResendOTP(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}

	email, err := validateEmail(email)
	if err != nil {
		return err
	}

	res := e.flow.Resend(ctx, email)
	if res.Failure != flows.ResendFailureNone {
		if res.Failure == flows.ResendFailureSend {
			return res.Err
		}
		return mapBackendErr(res.Err)
	}

	if res.Sent {
		e.metricInc(MetricOTPResend)
		e.emitAudit(ctx, auditEventOTPResend, true, res.UserID, nil, nil)
	}
	return nil
}
