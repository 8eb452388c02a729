package flows

import (
	"context"

	"github.com/MrEthical07/authsvc/ledger"
)

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Login.FindIdentity != nil && s.deps.Refresh.Rotate != nil
}

func (s Service) Register(ctx context.Context, in RegisterInput) RegisterResult {
	return RunRegister(ctx, in, s.deps.Register)
}

func (s Service) Verify(ctx context.Context, email, code string) VerifyResult {
	return RunVerify(ctx, email, code, s.deps.Verify)
}

func (s Service) Resend(ctx context.Context, email string) ResendResult {
	return RunResend(ctx, email, s.deps.Resend)
}

func (s Service) Login(ctx context.Context, identifier, password string, dev ledger.Device) LoginResult {
	return RunLogin(ctx, identifier, password, dev, s.deps.Login)
}

func (s Service) Refresh(ctx context.Context, refreshToken string, dev ledger.Device) RefreshResult {
	return RunRefresh(ctx, refreshToken, dev, s.deps.Refresh)
}

func (s Service) Logout(ctx context.Context, subjectID string) LogoutResult {
	return RunLogout(ctx, subjectID, s.deps.Logout)
}

func (s Service) Validate(ctx context.Context, accessToken string) ValidateResult {
	return RunValidate(ctx, accessToken, s.deps.Validate)
}
