package authsvc

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authsvc/internal/rate"
	"github.com/MrEthical07/authsvc/jwt"
	"github.com/MrEthical07/authsvc/otp"
	"github.com/MrEthical07/authsvc/password"
)

// Config holds every tunable of an Engine. Build validates it once; the
// Engine keeps a private copy.
type Config struct {
	JWT       JWTConfig
	OTP       OTPConfig
	Password  PasswordConfig
	Refresh   RefreshConfig
	RateLimit RateLimitConfig
	Timeouts  TimeoutConfig
	Audit     AuditConfig
	Metrics   MetricsConfig

	// Product appears in the footer of OTP emails.
	Product string
	// SenderPreflight checks the notification transport before a code is
	// generated during registration.
	SenderPreflight bool
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig selects the signing mode and token lifetimes.
type JWTConfig struct {
	SigningMethod string // "hs256" (default), "rs256", "ed25519"
	AccessSecret  []byte
	RefreshSecret []byte
	PrivateKey    []byte
	PublicKey     []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration
	KeyID         string
}

/*
====================================
OTP CONFIG
====================================
*/

// OTPConfig controls verification codes.
type OTPConfig struct {
	TTL         time.Duration
	RedisPrefix string
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the argon2id parameters.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
	// EnforcePolicy requires upper and lower case letters, a digit and a
	// special character at registration.
	EnforcePolicy bool
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls the response to refresh-token reuse.
type RefreshConfig struct {
	// RevokeOnReuse revokes every refresh token of the subject when a
	// rotated token is presented again. When false the reused token is
	// rejected and reported, and the live successor keeps working.
	RevokeOnReuse bool
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig configures the default Redis admission limiter. It is
// ignored when Builder.WithAdmission supplies one.
type RateLimitConfig struct {
	Enabled     bool
	RedisPrefix string
	Budgets     map[string]rate.Budget
	// PerIP also charges the client IP from the request context.
	PerIP    bool
	FailOpen bool
}

/*
====================================
TIMEOUTS
====================================
*/

// TimeoutConfig bounds every external call. A call exceeding its bound
// fails with ErrTimeout.
type TimeoutConfig struct {
	Store  time.Duration
	Sender time.Duration
}

/*
====================================
AUDIT & METRICS
====================================
*/

// AuditConfig controls the audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns a Config with every field set except key material.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	rl := rate.DefaultConfig()
	return Config{
		JWT: JWTConfig{
			SigningMethod: string(jwt.MethodHS256),
			AccessTTL:     jwt.DefaultAccessTTL,
			RefreshTTL:    jwt.DefaultRefreshTTL,
		},
		OTP: OTPConfig{
			TTL:         otp.DefaultTTL,
			RedisPrefix: "otp",
		},
		Password: PasswordConfig{
			Memory:        pw.Memory,
			Time:          pw.Time,
			Parallelism:   pw.Parallelism,
			SaltLength:    pw.SaltLength,
			KeyLength:     pw.KeyLength,
			EnforcePolicy: true,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			RedisPrefix: rl.Prefix,
			Budgets:     rl.Budgets,
			PerIP:       true,
		},
		Timeouts: TimeoutConfig{
			Store:  3 * time.Second,
			Sender: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Product:         "authsvc",
		SenderPreflight: false,
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	out.JWT.PrivateKey = cloneBytes(cfg.JWT.PrivateKey)
	out.JWT.PublicKey = cloneBytes(cfg.JWT.PublicKey)
	if cfg.RateLimit.Budgets != nil {
		out.RateLimit.Budgets = make(map[string]rate.Budget, len(cfg.RateLimit.Budgets))
		for k, v := range cfg.RateLimit.Budgets {
			out.RateLimit.Budgets[k] = v
		}
	}
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid field. Key material is checked in
// depth by jwt.NewCodec during Build.
func (c *Config) Validate() error {
	// JWT
	if c.JWT.AccessTTL <= 0 {
		return errors.New("JWT AccessTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be greater than AccessTTL")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256:
		if len(c.JWT.AccessSecret) == 0 {
			return errors.New("hs256 requires AccessSecret")
		}
	case jwt.MethodRS256, jwt.MethodEd25519:
		if len(c.JWT.PrivateKey) == 0 {
			return fmt.Errorf("%s requires PrivateKey to issue tokens", c.JWT.SigningMethod)
		}
	default:
		return fmt.Errorf("unsupported JWT signing method %q", c.JWT.SigningMethod)
	}

	// OTP
	if c.OTP.TTL <= 0 {
		return errors.New("OTP TTL must be > 0")
	}
	if c.OTP.TTL > time.Hour {
		return errors.New("OTP TTL must be <= 1h")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}

	// Rate limit
	if c.RateLimit.Enabled {
		for scope, b := range c.RateLimit.Budgets {
			if b.Max <= 0 || b.Window <= 0 {
				return fmt.Errorf("RateLimit budget %q must have Max > 0 and Window > 0", scope)
			}
		}
	}

	// Timeouts
	if c.Timeouts.Store <= 0 {
		return errors.New("Timeouts Store must be > 0")
	}
	if c.Timeouts.Sender <= 0 {
		return errors.New("Timeouts Sender must be > 0")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
