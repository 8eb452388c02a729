package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Scopes charged by the engine.
const (
	ScopeRegister = "register"
	ScopeLogin    = "login"
	ScopeOTP      = "otp"
	ScopeRefresh  = "refresh"
)

const defaultPrefix = "rl"

// Budget is the number of requests admitted per window.
type Budget struct {
	Max    int
	Window time.Duration
}

// Config holds rate limiter tuning parameters. Scopes without a budget are
// always admitted.
type Config struct {
	Prefix  string
	Budgets map[string]Budget
	// FailOpen admits requests when Redis cannot be reached.
	FailOpen bool
}

// DefaultConfig returns the budgets used by authd.
func DefaultConfig() Config {
	return Config{
		Prefix: defaultPrefix,
		Budgets: map[string]Budget{
			ScopeRegister: {Max: 5, Window: 15 * time.Minute},
			ScopeLogin:    {Max: 10, Window: 15 * time.Minute},
			ScopeOTP:      {Max: 5, Window: 10 * time.Minute},
			ScopeRefresh:  {Max: 60, Window: time.Minute},
		},
	}
}

// Limiter enforces per-scope fixed-window budgets using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	budgets := make(map[string]Budget, len(cfg.Budgets))
	for scope, b := range cfg.Budgets {
		budgets[scope] = b
	}
	cfg.Budgets = budgets
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Admit charges one request to scope and key and returns ErrRateLimited once
// the budget for the current window is spent.
func (l *Limiter) Admit(ctx context.Context, scope, key string) error {
	budget, ok := l.config.Budgets[scope]
	if !ok || budget.Max <= 0 || key == "" {
		return nil
	}

	count, err := l.incrementWithTTL(ctx, l.key(scope, key), budget.Window)
	if err != nil {
		if l.config.FailOpen {
			return nil
		}
		return err
	}
	if count > int64(budget.Max) {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the counter for scope and key. The engine calls it for the
// login identifier after a successful login.
func (l *Limiter) Reset(ctx context.Context, scope, key string) error {
	if err := l.redis.Del(ctx, l.key(scope, key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

func (l *Limiter) key(scope, key string) string {
	return l.config.Prefix + ":" + scope + ":" + strings.ToLower(strings.TrimSpace(key))
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
