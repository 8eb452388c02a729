package authsvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/internal/audit"
	"github.com/MrEthical07/authsvc/internal/flows"
	"github.com/MrEthical07/authsvc/internal/rate"
	"github.com/MrEthical07/authsvc/jwt"
	"github.com/MrEthical07/authsvc/ledger"
	"github.com/MrEthical07/authsvc/notify"
	"github.com/MrEthical07/authsvc/otp"
	"github.com/MrEthical07/authsvc/password"
)

// Engine runs the account lifecycle: registration, OTP verification,
// login, refresh rotation, logout and access token validation. It holds
// no mutable state of its own beyond metrics counters; every method is
// safe for concurrent use.
type Engine struct {
	config     Config
	logger     *slog.Logger
	codec      *jwt.Codec
	identities identity.Store
	ledger     ledger.Ledger
	otp        *otp.Store
	sender     notify.Sender
	admission  Admission
	passwords  password.Hasher
	dummyHash  string
	audit      *audit.Dispatcher
	metrics    *Metrics
	flow       flows.Service
	clock      func() time.Time
}

// Close drains the audit dispatcher. The Engine must not be used afterwards.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events never reached the sink. The
// same count is exported as MetricAuditDropped.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Ping checks the notification transport when it supports it.
func (e *Engine) Ping(ctx context.Context) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return withTimeout0(ctx, e.config.Timeouts.Sender, func(ctx context.Context) error {
		return notify.Ping(ctx, e.sender)
	})
}

func (e *Engine) ready() bool {
	return e != nil && e.flow.Initialized()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) warn(msg string, args ...any) {
	e.logger.Warn(msg, args...)
}

/*
====================================
BOUNDED CALLS
====================================
*/

// withTimeout runs fn under a deadline of d. A call that fails after the
// deadline passed reports ErrTimeout, whatever error the backend chose.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	v, err := fn(ctx)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		var zero T
		return zero, fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return v, err
}

func withTimeout0(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	_, err := withTimeout(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// cleanupContext detaches best-effort cleanup from caller cancellation so
// a disconnecting client does not leave half-finished state behind.
func (e *Engine) cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.config.Timeouts.Store)
}

/*
====================================
ERROR MAPPING
====================================
*/

// mapBackendErr translates store, sender and limiter errors into the
// public taxonomy. Errors already in the taxonomy pass through.
func mapBackendErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrNotificationFailed),
		errors.Is(err, ErrUnavailable),
		errors.Is(err, ErrIntegrityViolation):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, rate.ErrRateLimited):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case errors.Is(err, identity.ErrConflict):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, identity.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ledger.ErrDuplicateToken):
		return fmt.Errorf("%w: %w", ErrIntegrityViolation, err)
	case errors.Is(err, notify.ErrSendFailed):
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	case errors.Is(err, identity.ErrUnavailable),
		errors.Is(err, ledger.ErrUnavailable),
		errors.Is(err, otp.ErrUnavailable),
		errors.Is(err, rate.ErrRedisUnavailable):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}

/*
====================================
FLOW WIRING
====================================
*/

func newFlowService(e *Engine) flows.Service {
	store := e.config.Timeouts.Store

	findByID := func(ctx context.Context, id string) (*identity.Identity, error) {
		return withTimeout(ctx, store, func(ctx context.Context) (*identity.Identity, error) {
			return e.identities.FindByID(ctx, id)
		})
	}
	findByEmail := func(ctx context.Context, email string) (*identity.Identity, error) {
		return withTimeout(ctx, store, func(ctx context.Context) (*identity.Identity, error) {
			return e.identities.FindByEmail(ctx, email)
		})
	}
	revokeAll := func(ctx context.Context, subjectID string) (int, error) {
		ctx, cancel := e.cleanupContext(ctx)
		defer cancel()
		return e.ledger.RevokeAll(ctx, subjectID)
	}

	dispatch := flows.OTPDispatch{
		IssueOTP:   e.issueOTP,
		SendOTP:    e.sendOTP,
		DiscardOTP: e.discardOTP,
	}

	var preflight func(context.Context) error
	if e.config.SenderPreflight {
		preflight = e.Ping
	}

	return flows.New(flows.Deps{
		Register: flows.RegisterDeps{
			Admit:     e.admitter(ScopeRegister),
			Preflight: preflight,
			HashPassword: func(pw string) (string, error) {
				return e.passwords.Hash(pw)
			},
			CreateIdentity: func(ctx context.Context, in identity.NewIdentity) (*identity.Identity, error) {
				return withTimeout(ctx, store, func(ctx context.Context) (*identity.Identity, error) {
					return e.identities.Create(ctx, in)
				})
			},
			OTP:  dispatch,
			Warn: e.warn,
		},
		Verify: flows.VerifyDeps{
			Admit: e.admitter(ScopeOTP),
			ConsumeOTP: func(ctx context.Context, email, code string) (time.Duration, error) {
				return withTimeout(ctx, store, func(ctx context.Context) (time.Duration, error) {
					return e.otp.CheckAndConsume(ctx, email, code)
				})
			},
			RestoreOTP:   e.restoreOTP,
			FindIdentity: findByEmail,
			MarkVerified: func(ctx context.Context, id string) error {
				return withTimeout0(ctx, store, func(ctx context.Context) error {
					return e.identities.MarkVerified(ctx, id)
				})
			},
			Warn:        e.warn,
			OTPMismatch: otp.ErrMismatch,
			OTPMissing:  otp.ErrMissing,
		},
		Resend: flows.ResendDeps{
			Admit:       e.admitter(ScopeOTP),
			FindByEmail: findByEmail,
			NotFound:    identity.ErrNotFound,
			OTP:         dispatch,
			Warn:        e.warn,
		},
		Login: flows.LoginDeps{
			Admit: e.admitter(ScopeLogin),
			FindIdentity: func(ctx context.Context, identifier string) (*identity.Identity, error) {
				return withTimeout(ctx, store, func(ctx context.Context) (*identity.Identity, error) {
					return e.identities.FindByEmailOrUsername(ctx, identifier)
				})
			},
			VerifyPassword: func(pw, hash string) (bool, error) {
				return e.passwords.Verify(pw, hash)
			},
			IssuePair: e.issuePair,
			RecordRefresh: func(ctx context.Context, token, subjectID string, dev ledger.Device, exp time.Time) error {
				return withTimeout0(ctx, store, func(ctx context.Context) error {
					return e.ledger.Record(ctx, token, subjectID, dev, exp)
				})
			},
			Rehash:         e.rehashIfWeak,
			ResetAdmission: e.resetLoginBudget,
			Warn:           e.warn,
			DummyHash:      e.dummyHash,
			NotFound:       identity.ErrNotFound,
		},
		Refresh: flows.RefreshDeps{
			Admit:         e.admitter(ScopeRefresh),
			VerifyRefresh: e.codec.VerifyRefresh,
			FindIdentity:  findByID,
			IssueRefresh: func(subjectID string) (string, time.Time, error) {
				return e.codec.IssueRefresh(subjectID, jwt.NewRotationID())
			},
			Rotate: func(ctx context.Context, oldToken, newToken string, exp time.Time, dev ledger.Device) (*ledger.Record, error) {
				return withTimeout(ctx, store, func(ctx context.Context) (*ledger.Record, error) {
					return e.ledger.Rotate(ctx, oldToken, newToken, exp, dev)
				})
			},
			IssueAccess:   e.issueAccess,
			RevokeAll:     revokeAll,
			Warn:          e.warn,
			RevokeOnReuse: e.config.Refresh.RevokeOnReuse,
			TokenExpired:  jwt.ErrTokenExpired,
			ReuseDetected: ledger.ErrReuseDetected,
			NotFound:      ledger.ErrNotFound,
			RecordExpired: ledger.ErrExpired,
		},
		Logout: flows.LogoutDeps{
			RevokeAll: revokeAll,
		},
		Validate: flows.ValidateDeps{
			VerifyAccess: e.codec.VerifyAccess,
			FindIdentity: findByID,
			TokenExpired: jwt.ErrTokenExpired,
		},
	})
}

// admitter charges scope for the flow key and, when enabled, for the
// client IP. It returns nil when admission is off.
func (e *Engine) admitter(scope string) func(context.Context, string) error {
	if e.admission == nil {
		return nil
	}
	return func(ctx context.Context, key string) error {
		keys := []string{key}
		if e.config.RateLimit.PerIP {
			if ip := ClientIPFromContext(ctx); ip != "" {
				keys = append(keys, "ip:"+ip)
			}
		}
		for _, k := range keys {
			err := withTimeout0(ctx, e.config.Timeouts.Store, func(ctx context.Context) error {
				return e.admission.Admit(ctx, scope, k)
			})
			if err == nil {
				continue
			}
			err = mapBackendErr(err)
			if errors.Is(err, ErrRateLimited) {
				e.emitRateLimit(ctx, scope, k)
			}
			return err
		}
		return nil
	}
}

// admissionResetter is implemented by limiters that can clear a key's
// window, such as the Redis limiter.
type admissionResetter interface {
	Reset(ctx context.Context, scope, key string) error
}

// resetLoginBudget clears the identifier's login window after a successful
// login. The per-IP window is left alone.
func (e *Engine) resetLoginBudget(ctx context.Context, identifier string) {
	r, ok := e.admission.(admissionResetter)
	if !ok {
		return
	}
	err := withTimeout0(ctx, e.config.Timeouts.Store, func(ctx context.Context) error {
		return r.Reset(ctx, ScopeLogin, identifier)
	})
	if err != nil {
		e.warn("reset login budget failed", "error", err)
	}
}

type hashUpgrader interface {
	NeedsUpgrade(encodedHash string) (bool, error)
}

// rehashIfWeak replaces a hash produced with weaker hasher parameters than
// the current configuration.
func (e *Engine) rehashIfWeak(ctx context.Context, ident *identity.Identity, pw string) {
	u, ok := e.passwords.(hashUpgrader)
	if !ok {
		return
	}
	if weak, err := u.NeedsUpgrade(ident.PasswordHash); err != nil || !weak {
		return
	}
	hash, err := e.passwords.Hash(pw)
	if err != nil {
		e.warn("password rehash failed", "user_id", ident.ID, "error", err)
		return
	}
	err = withTimeout0(ctx, e.config.Timeouts.Store, func(ctx context.Context) error {
		return e.identities.UpdatePasswordHash(ctx, ident.ID, hash)
	})
	if err != nil {
		e.warn("store upgraded password hash failed", "user_id", ident.ID, "error", err)
		return
	}
	ident.PasswordHash = hash
}

func (e *Engine) issueAccess(ident *identity.Identity) (string, time.Time, error) {
	return e.codec.IssueAccess(jwt.AccessInput{
		Subject: ident.ID,
		Email:   ident.Email,
		Roles:   ident.Roles,
	})
}

func (e *Engine) issuePair(ident *identity.Identity) (flows.TokenPair, error) {
	access, accessExp, err := e.issueAccess(ident)
	if err != nil {
		return flows.TokenPair{}, err
	}
	refresh, refreshExp, err := e.codec.IssueRefresh(ident.ID, jwt.NewRotationID())
	if err != nil {
		return flows.TokenPair{}, err
	}
	return flows.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

/*
====================================
OTP DISPATCH
====================================
*/

func (e *Engine) issueOTP(ctx context.Context, email string) (string, error) {
	code, err := otp.Generate()
	if err != nil {
		return "", err
	}
	hash := e.otp.Hasher().Hash(code)
	err = withTimeout0(ctx, e.config.Timeouts.Store, func(ctx context.Context) error {
		return e.otp.Issue(ctx, email, hash, e.config.OTP.TTL)
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

func (e *Engine) sendOTP(ctx context.Context, ident *identity.Identity, code string) error {
	msg, err := notify.OTPEmail{
		To:       ident.Email,
		Username: ident.Username,
		Code:     code,
		TTL:      e.config.OTP.TTL,
		Product:  e.config.Product,
	}.Render()
	if err != nil {
		return fmt.Errorf("%w: render: %w", ErrNotificationFailed, err)
	}

	err = withTimeout0(ctx, e.config.Timeouts.Sender, func(ctx context.Context) error {
		return e.sender.Send(ctx, msg)
	})
	if err != nil {
		e.metricInc(MetricNotificationFailure)
		e.emitAudit(ctx, auditEventNotificationFailure, false, ident.ID, err, nil)
		return fmt.Errorf("%w: %w", ErrNotificationFailed, err)
	}
	return nil
}

func (e *Engine) discardOTP(ctx context.Context, email string) error {
	ctx, cancel := e.cleanupContext(ctx)
	defer cancel()
	return e.otp.Delete(ctx, email)
}

func (e *Engine) restoreOTP(ctx context.Context, email, code string, ttl time.Duration) (bool, error) {
	ctx, cancel := e.cleanupContext(ctx)
	defer cancel()
	return e.otp.Restore(ctx, email, e.otp.Hasher().Hash(code), ttl)
}
