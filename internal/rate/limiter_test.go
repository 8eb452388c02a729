package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestAdmitBudgetAndWindow(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, Config{Budgets: map[string]Budget{ScopeLogin: {Max: 2, Window: time.Minute}}})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := l.Admit(ctx, ScopeLogin, "Alice"); err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i+1, err)
		}
	}
	if err := l.Admit(ctx, ScopeLogin, "alice"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if ttl := mr.TTL("rl:login:alice"); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected window ttl, got %v", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if err := l.Admit(ctx, ScopeLogin, "alice"); err != nil {
		t.Fatalf("expected new window to admit, got %v", err)
	}
}

func TestAdmitScopesAreIndependent(t *testing.T) {
	_, rdb := newTestRedis(t)
	l := New(rdb, Config{Budgets: map[string]Budget{
		ScopeLogin: {Max: 1, Window: time.Minute},
		ScopeOTP:   {Max: 1, Window: time.Minute},
	}})
	ctx := context.Background()

	if err := l.Admit(ctx, ScopeLogin, "a@x.com"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := l.Admit(ctx, ScopeOTP, "a@x.com"); err != nil {
		t.Fatalf("otp should have its own budget: %v", err)
	}
	if err := l.Admit(ctx, ScopeRefresh, "a@x.com"); err != nil {
		t.Fatalf("unbudgeted scope should admit: %v", err)
	}
}

func TestResetRestoresBudget(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := New(rdb, DefaultConfig())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if err := l.Admit(ctx, ScopeLogin, "bob"); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := l.Admit(ctx, ScopeLogin, "bob"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if err := l.Reset(ctx, ScopeLogin, " BOB "); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if mr.Exists("rl:login:bob") {
		t.Fatal("expected counter key removed")
	}
	if err := l.Admit(ctx, ScopeLogin, "bob"); err != nil {
		t.Fatalf("expected budget restored after reset, got %v", err)
	}
}

func TestAdmitRedisDown(t *testing.T) {
	mr, rdb := newTestRedis(t)
	mr.Close()
	ctx := context.Background()

	closed := New(rdb, DefaultConfig())
	if err := closed.Admit(ctx, ScopeLogin, "alice"); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}

	cfg := DefaultConfig()
	cfg.FailOpen = true
	open := New(rdb, cfg)
	if err := open.Admit(ctx, ScopeLogin, "alice"); err != nil {
		t.Fatalf("fail-open limiter should admit, got %v", err)
	}
}
