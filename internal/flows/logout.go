package flows

import "context"

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	RevokeAll func(context.Context, string) (int, error)
}

// LogoutResult reports how many refresh tokens were revoked. Err is
// informational: logout itself always completes.
type LogoutResult struct {
	Revoked int
	Err     error
}

// RunLogout revokes every refresh token of subjectID.
func RunLogout(ctx context.Context, subjectID string, deps LogoutDeps) LogoutResult {
	n, err := deps.RevokeAll(ctx, subjectID)
	return LogoutResult{Revoked: n, Err: err}
}
