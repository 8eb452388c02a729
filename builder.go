package authsvc

import (
	"errors"
	"log/slog"
	"time"

	"github.com/MrEthical07/authsvc/identity"
	"github.com/MrEthical07/authsvc/internal/audit"
	"github.com/MrEthical07/authsvc/internal/rate"
	"github.com/MrEthical07/authsvc/jwt"
	"github.com/MrEthical07/authsvc/ledger"
	"github.com/MrEthical07/authsvc/notify"
	"github.com/MrEthical07/authsvc/otp"
	"github.com/MrEthical07/authsvc/password"
	"github.com/redis/go-redis/v9"
)

const dummyPassword = "authsvc-timing-equalizer-Aa1!"

// Builder assembles an Engine. It is single use: Build may be called once.
//
// Redis, an identity store and a notification sender are required. The
// ledger defaults to the Redis backend and admission defaults to the
// Redis fixed-window limiter when Config.RateLimit.Enabled is set.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	identities identity.Store
	ledger     ledger.Ledger
	sender     notify.Sender
	admission  Admission
	passwords  password.Hasher
	auditSink  AuditSink
	logger     *slog.Logger
	clock      func() time.Time

	built bool
}

// New returns a Builder seeded with DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the client backing OTPs, the default ledger and the
// default limiter.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

func (b *Builder) WithIdentityStore(store identity.Store) *Builder {
	b.identities = store
	return b
}

// WithLedger overrides the Redis ledger, typically with ledger.NewPostgres.
func (b *Builder) WithLedger(l ledger.Ledger) *Builder {
	b.ledger = l
	return b
}

func (b *Builder) WithNotifier(s notify.Sender) *Builder {
	b.sender = s
	return b
}

// WithAdmission overrides the default limiter. Passing an Admission
// enables admission even when Config.RateLimit.Enabled is false.
func (b *Builder) WithAdmission(a Admission) *Builder {
	b.admission = a
	return b
}

func (b *Builder) WithPasswordHasher(h password.Hasher) *Builder {
	b.passwords = h
	return b
}

func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithClock sets the time source of the token codec, the Redis ledger and
// audit timestamps. Tests use it to step across token expiry.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.identities == nil {
		return nil, errors.New("identity store required")
	}
	if b.sender == nil {
		return nil, errors.New("notification sender required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	// -------- TOKEN CODEC --------
	codec, err := jwt.NewCodec(jwt.Config{
		SigningMethod: jwt.SigningMethod(cfg.JWT.SigningMethod),
		AccessSecret:  cloneBytes(cfg.JWT.AccessSecret),
		RefreshSecret: cloneBytes(cfg.JWT.RefreshSecret),
		PrivateKey:    cloneBytes(cfg.JWT.PrivateKey),
		PublicKey:     cloneBytes(cfg.JWT.PublicKey),
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		Issuer:        cfg.JWT.Issuer,
		Audience:      cfg.JWT.Audience,
		Leeway:        cfg.JWT.Leeway,
		KeyID:         cfg.JWT.KeyID,
		Now:           b.clock,
	})
	if err != nil {
		return nil, err
	}
	if !codec.CanIssue() {
		return nil, errors.New("token codec cannot issue: signing key missing")
	}

	// -------- PASSWORDS --------
	hasher := b.passwords
	if hasher == nil {
		ph, err := password.NewArgon2(password.Config{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		hasher = ph
	}
	dummyHash, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	// -------- LEDGER --------
	l := b.ledger
	if l == nil {
		rl := ledger.NewRedis(b.redis, "")
		if b.clock != nil {
			rl = rl.WithClock(b.clock)
		}
		l = rl
	}

	// -------- ADMISSION --------
	admission := b.admission
	if admission == nil && cfg.RateLimit.Enabled {
		admission = rate.New(b.redis, rate.Config{
			Prefix:   cfg.RateLimit.RedisPrefix,
			Budgets:  cfg.RateLimit.Budgets,
			FailOpen: cfg.RateLimit.FailOpen,
		})
	}

	metrics := NewMetrics(cfg.Metrics)
	engine := &Engine{
		config:     cloneConfig(cfg),
		logger:     logger.With(slog.String("component", "authsvc")),
		codec:      codec,
		identities: b.identities,
		ledger:     l,
		otp:        otp.NewStore(b.redis, cfg.OTP.RedisPrefix, otp.SHA256{}),
		sender:     b.sender,
		admission:  admission,
		passwords:  hasher,
		dummyHash:  dummyHash,
		metrics:    metrics,
		clock:      b.clock,
	}
	engine.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		Critical:   criticalAuditEvents,
		OnDrop: func(eventType string) {
			metrics.Inc(MetricAuditDropped)
			engine.logger.Warn("audit event dropped", slog.String("event", eventType))
		},
	}, b.auditSink)
	engine.flow = newFlowService(engine)

	b.built = true

	return engine, nil
}
