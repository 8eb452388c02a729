package flows

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/jwt"
	"github.com/MrEthical07/authsvc/ledger"
)

var (
	errMismatch = errors.New("mismatch")
	errMissing  = errors.New("missing")
	errNotFound = errors.New("not found")
	errReuse    = errors.New("reuse")
)

func TestRunRegisterDiscardsOTPWhenSendFails(t *testing.T) {
	var discarded string
	sendErr := errors.New("relay down")

	res := RunRegister(context.Background(), RegisterInput{Email: "a@x.com", Username: "alice", Password: "pw"}, RegisterDeps{
		HashPassword: func(string) (string, error) { return "hash", nil },
		CreateIdentity: func(_ context.Context, in identity.NewIdentity) (*identity.Identity, error) {
			if in.PasswordHash != "hash" {
				t.Fatalf("expected hashed password, got %q", in.PasswordHash)
			}
			return &identity.Identity{ID: "u1", Email: in.Email}, nil
		},
		OTP: OTPDispatch{
			IssueOTP:   func(context.Context, string) (string, error) { return "123456", nil },
			SendOTP:    func(context.Context, *identity.Identity, string) error { return sendErr },
			DiscardOTP: func(_ context.Context, email string) error { discarded = email; return nil },
		},
	})

	if res.Failure != RegisterFailureSend || !errors.Is(res.Err, sendErr) {
		t.Fatalf("expected send failure, got %+v", res)
	}
	if discarded != "a@x.com" {
		t.Fatalf("expected otp discarded, got %q", discarded)
	}
	if res.Identity == nil || res.Identity.ID != "u1" {
		t.Fatalf("expected identity on send failure, got %+v", res.Identity)
	}
}

func TestRunRegisterStopsBeforeCreateWhenAdmissionFails(t *testing.T) {
	limited := errors.New("limited")
	res := RunRegister(context.Background(), RegisterInput{Email: "a@x.com"}, RegisterDeps{
		Admit: func(context.Context, string) error { return limited },
		CreateIdentity: func(context.Context, identity.NewIdentity) (*identity.Identity, error) {
			t.Fatal("create must not run")
			return nil, nil
		},
	})
	if res.Failure != RegisterFailureRateLimited {
		t.Fatalf("expected rate limited, got %v", res.Failure)
	}
}

func TestRunVerifyRestoresOTPWhenMarkFails(t *testing.T) {
	var restoredTTL time.Duration
	markErr := errors.New("db down")

	res := RunVerify(context.Background(), "a@x.com", "123456", VerifyDeps{
		ConsumeOTP: func(context.Context, string, string) (time.Duration, error) { return 4 * time.Minute, nil },
		RestoreOTP: func(_ context.Context, _, code string, ttl time.Duration) (bool, error) {
			if code != "123456" {
				t.Fatalf("unexpected restored code %q", code)
			}
			restoredTTL = ttl
			return true, nil
		},
		FindIdentity: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1"}, nil
		},
		MarkVerified: func(context.Context, string) error { return markErr },
		OTPMismatch:  errMismatch,
		OTPMissing:   errMissing,
	})

	if res.Failure != VerifyFailureMarkVerified || !res.Restored {
		t.Fatalf("expected restored mark failure, got %+v", res)
	}
	if restoredTTL != 4*time.Minute {
		t.Fatalf("expected remaining ttl restored, got %v", restoredTTL)
	}
}

func TestRunVerifyClassifiesStoreErrors(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want VerifyFailureKind
	}{
		{errMismatch, VerifyFailureMismatch},
		{errMissing, VerifyFailureMissing},
		{errors.New("redis down"), VerifyFailureConsume},
	} {
		res := RunVerify(context.Background(), "a@x.com", "000000", VerifyDeps{
			ConsumeOTP:  func(context.Context, string, string) (time.Duration, error) { return 0, tc.err },
			OTPMismatch: errMismatch,
			OTPMissing:  errMissing,
		})
		if res.Failure != tc.want {
			t.Fatalf("err %v: expected %v, got %v", tc.err, tc.want, res.Failure)
		}
	}
}

func TestRunResendSkipsUnknownAndVerified(t *testing.T) {
	deps := ResendDeps{
		FindByEmail: func(_ context.Context, email string) (*identity.Identity, error) {
			if email == "v@x.com" {
				return &identity.Identity{ID: "u2", Verified: true}, nil
			}
			return nil, errNotFound
		},
		NotFound: errNotFound,
		OTP: OTPDispatch{
			IssueOTP: func(context.Context, string) (string, error) {
				t.Fatal("issue must not run")
				return "", nil
			},
		},
	}
	for _, email := range []string{"nobody@x.com", "v@x.com"} {
		res := RunResend(context.Background(), email, deps)
		if res.Failure != ResendFailureNone || res.Sent {
			t.Fatalf("%s: expected silent success, got %+v", email, res)
		}
	}
}

func TestRunLoginUnknownUserVerifiesDummyHash(t *testing.T) {
	var checked []string
	res := RunLogin(context.Background(), "ghost", "pw", ledger.Device{}, LoginDeps{
		FindIdentity: func(context.Context, string) (*identity.Identity, error) { return nil, errNotFound },
		VerifyPassword: func(_, hash string) (bool, error) {
			checked = append(checked, hash)
			return false, nil
		},
		DummyHash: "dummy",
		NotFound:  errNotFound,
	})
	if res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", res.Failure)
	}
	if len(checked) != 1 || checked[0] != "dummy" {
		t.Fatalf("expected one dummy verification, got %v", checked)
	}
}

func TestRunLoginUnverifiedOnlyAfterPasswordMatch(t *testing.T) {
	deps := LoginDeps{
		FindIdentity: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1", PasswordHash: "good"}, nil
		},
		VerifyPassword: func(pw, _ string) (bool, error) { return pw == "right", nil },
		IssuePair: func(*identity.Identity) (TokenPair, error) {
			t.Fatal("tokens must not be issued")
			return TokenPair{}, nil
		},
		NotFound: errNotFound,
	}

	if res := RunLogin(context.Background(), "alice", "wrong", ledger.Device{}, deps); res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials for wrong password, got %v", res.Failure)
	}
	if res := RunLogin(context.Background(), "alice", "right", ledger.Device{}, deps); res.Failure != LoginFailureUnverified {
		t.Fatalf("expected unverified for right password, got %v", res.Failure)
	}
}

func TestRunLoginHousekeepingOnlyOnSuccess(t *testing.T) {
	var rehashed, reset []string
	deps := LoginDeps{
		FindIdentity: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1", PasswordHash: "good", Verified: true}, nil
		},
		VerifyPassword: func(pw, _ string) (bool, error) { return pw == "right", nil },
		IssuePair: func(*identity.Identity) (TokenPair, error) {
			return TokenPair{AccessToken: "a", RefreshToken: "r"}, nil
		},
		RecordRefresh: func(context.Context, string, string, ledger.Device, time.Time) error { return nil },
		Rehash: func(_ context.Context, ident *identity.Identity, pw string) {
			rehashed = append(rehashed, ident.ID+":"+pw)
		},
		ResetAdmission: func(_ context.Context, identifier string) { reset = append(reset, identifier) },
		NotFound:       errNotFound,
	}

	if res := RunLogin(context.Background(), "alice", "wrong", ledger.Device{}, deps); res.Failure != LoginFailureInvalidCredentials {
		t.Fatalf("expected invalid credentials, got %v", res.Failure)
	}
	if len(rehashed) != 0 || len(reset) != 0 {
		t.Fatalf("failed login must not run housekeeping: rehash=%v reset=%v", rehashed, reset)
	}

	if res := RunLogin(context.Background(), "alice", "right", ledger.Device{}, deps); res.Failure != LoginFailureNone {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if len(rehashed) != 1 || rehashed[0] != "u1:right" {
		t.Fatalf("expected one rehash with the presented password, got %v", rehashed)
	}
	if len(reset) != 1 || reset[0] != "alice" {
		t.Fatalf("expected login budget reset for alice, got %v", reset)
	}
}

func refreshTestDeps(t *testing.T, rotateErr error) RefreshDeps {
	t.Helper()
	return RefreshDeps{
		VerifyRefresh: func(string) (*jwt.RefreshClaims, error) {
			c := &jwt.RefreshClaims{}
			c.Subject = "u1"
			return c, nil
		},
		FindIdentity: func(context.Context, string) (*identity.Identity, error) {
			return &identity.Identity{ID: "u1"}, nil
		},
		IssueRefresh: func(string) (string, time.Time, error) { return "next", time.Now().Add(time.Hour), nil },
		Rotate: func(context.Context, string, string, time.Time, ledger.Device) (*ledger.Record, error) {
			if rotateErr != nil {
				return &ledger.Record{SubjectID: "u1", ReplacedBy: "x"}, rotateErr
			}
			return &ledger.Record{SubjectID: "u1"}, nil
		},
		IssueAccess:   func(*identity.Identity) (string, time.Time, error) { return "access", time.Now().Add(time.Minute), nil },
		ReuseDetected: errReuse,
		NotFound:      errNotFound,
	}
}

func TestRunRefreshReuseRevokesOnlyWhenConfigured(t *testing.T) {
	revokes := 0
	deps := refreshTestDeps(t, errReuse)
	deps.RevokeAll = func(context.Context, string) (int, error) { revokes++; return 2, nil }

	res := RunRefresh(context.Background(), "old", ledger.Device{}, deps)
	if res.Failure != RefreshFailureReuse || revokes != 0 {
		t.Fatalf("expected reuse without revocation, got %+v revokes=%d", res, revokes)
	}

	deps.RevokeOnReuse = true
	res = RunRefresh(context.Background(), "old", ledger.Device{}, deps)
	if res.Failure != RefreshFailureReuse || revokes != 1 || res.Revoked != 2 {
		t.Fatalf("expected reuse with revocation, got %+v revokes=%d", res, revokes)
	}
}

func TestRunRefreshIdentityFailureKeepsToken(t *testing.T) {
	deps := refreshTestDeps(t, nil)
	deps.FindIdentity = func(context.Context, string) (*identity.Identity, error) { return nil, errNotFound }
	deps.Rotate = func(context.Context, string, string, time.Time, ledger.Device) (*ledger.Record, error) {
		t.Fatal("rotate must not run when the subject cannot be resolved")
		return nil, nil
	}

	if res := RunRefresh(context.Background(), "old", ledger.Device{}, deps); res.Failure != RefreshFailureIdentity {
		t.Fatalf("expected identity failure, got %v", res.Failure)
	}
}

func TestRunRefreshSuccess(t *testing.T) {
	res := RunRefresh(context.Background(), "old", ledger.Device{}, refreshTestDeps(t, nil))
	if res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if res.Tokens.AccessToken != "access" || res.Tokens.RefreshToken != "next" {
		t.Fatalf("unexpected tokens: %+v", res.Tokens)
	}
}

func TestRunRefreshChargesSubjectOnlyAfterVerify(t *testing.T) {
	var charged []string
	deps := refreshTestDeps(t, nil)
	deps.Admit = func(_ context.Context, key string) error {
		charged = append(charged, key)
		return nil
	}

	good := deps.VerifyRefresh
	deps.VerifyRefresh = func(string) (*jwt.RefreshClaims, error) { return nil, errors.New("bad signature") }
	if res := RunRefresh(context.Background(), "forged", ledger.Device{}, deps); res.Failure != RefreshFailureDecode {
		t.Fatalf("expected decode failure, got %v", res.Failure)
	}
	if len(charged) != 0 {
		t.Fatalf("forged token must not be charged, got %v", charged)
	}

	deps.VerifyRefresh = good
	if res := RunRefresh(context.Background(), "old", ledger.Device{}, deps); res.Failure != RefreshFailureNone {
		t.Fatalf("unexpected failure: %+v", res)
	}
	if len(charged) != 1 || charged[0] != "u1" {
		t.Fatalf("expected subject u1 charged once, got %v", charged)
	}
}
