package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MrEthical07/authsvc"
	"github.com/MrEthical07/authsvc/internal/rate"
	"github.com/caarlos0/env/v11"
)

// Config is the process configuration read from AUTHSVC_* variables.
type Config struct {
	HTTPAddr          string        `env:"AUTHSVC_HTTP_ADDR"           envDefault:":8080"`
	ReadHeaderTimeout time.Duration `env:"AUTHSVC_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"AUTHSVC_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"AUTHSVC_WRITE_TIMEOUT"       envDefault:"15s"`
	IdleTimeout       time.Duration `env:"AUTHSVC_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"AUTHSVC_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
	LogLevel          string        `env:"AUTHSVC_LOG_LEVEL"           envDefault:"info"`

	DatabaseURL   string `env:"AUTHSVC_DATABASE_URL,required"`
	DBMaxConns    int32  `env:"AUTHSVC_DB_MAX_CONNS"          envDefault:"10"`
	RunMigrations bool   `env:"AUTHSVC_RUN_MIGRATIONS"        envDefault:"true"`
	RedisAddr     string `env:"AUTHSVC_REDIS_ADDR"            envDefault:"localhost:6379"`
	RedisPassword string `env:"AUTHSVC_REDIS_PASSWORD"`
	RedisDB       int    `env:"AUTHSVC_REDIS_DB"              envDefault:"0"`
	// LedgerBackend is "postgres" or "redis".
	LedgerBackend string `env:"AUTHSVC_LEDGER_BACKEND" envDefault:"postgres"`

	JWTMethod        string        `env:"AUTHSVC_JWT_METHOD"             envDefault:"hs256"`
	AccessSecret     string        `env:"AUTHSVC_ACCESS_TOKEN_SECRET"`
	RefreshSecret    string        `env:"AUTHSVC_REFRESH_TOKEN_SECRET"`
	PrivateKeyFile   string        `env:"AUTHSVC_JWT_PRIVATE_KEY_FILE"`
	PublicKeyFile    string        `env:"AUTHSVC_JWT_PUBLIC_KEY_FILE"`
	JWTKeyID         string        `env:"AUTHSVC_JWT_KEY_ID"`
	JWTIssuer        string        `env:"AUTHSVC_JWT_ISSUER"`
	JWTAudience      string        `env:"AUTHSVC_JWT_AUDIENCE"`
	AccessTTL        time.Duration `env:"AUTHSVC_ACCESS_TOKEN_TTL"       envDefault:"15m"`
	RefreshTTL       time.Duration `env:"AUTHSVC_REFRESH_TOKEN_TTL"      envDefault:"720h"`
	RevokeOnReuse    bool          `env:"AUTHSVC_REVOKE_ON_REUSE"        envDefault:"false"`
	OTPTTL           time.Duration `env:"AUTHSVC_OTP_TTL"                envDefault:"10m"`
	SenderPreflight  bool          `env:"AUTHSVC_SENDER_PREFLIGHT"       envDefault:"false"`
	ExposeTokens     bool          `env:"AUTHSVC_EXPOSE_TOKENS"          envDefault:"false"`
	CookieDomain     string        `env:"AUTHSVC_COOKIE_DOMAIN"`
	CookieSecure     bool          `env:"AUTHSVC_COOKIE_SECURE"          envDefault:"true"`
	RateLimitEnabled bool          `env:"AUTHSVC_RATE_LIMIT_ENABLED"     envDefault:"true"`
	AuthBudget       int           `env:"AUTHSVC_RATE_LIMIT_AUTH_MAX"    envDefault:"10"`
	AuthWindow       time.Duration `env:"AUTHSVC_RATE_LIMIT_AUTH_WINDOW" envDefault:"15m"`
	OTPBudget        int           `env:"AUTHSVC_RATE_LIMIT_OTP_MAX"     envDefault:"5"`
	OTPWindow        time.Duration `env:"AUTHSVC_RATE_LIMIT_OTP_WINDOW"  envDefault:"10m"`
	StoreTimeout     time.Duration `env:"AUTHSVC_STORE_TIMEOUT"          envDefault:"3s"`
	SenderTimeout    time.Duration `env:"AUTHSVC_SENDER_TIMEOUT"         envDefault:"10s"`
	AuditLog         bool          `env:"AUTHSVC_AUDIT_LOG"              envDefault:"true"`

	// Notifier is "smtp", "kafka" or "log".
	Notifier        string        `env:"AUTHSVC_NOTIFIER"            envDefault:"smtp"`
	NotifyBreaker   bool          `env:"AUTHSVC_NOTIFY_BREAKER"      envDefault:"true"`
	SMTPHost        string        `env:"AUTHSVC_SMTP_HOST"`
	SMTPPort        int           `env:"AUTHSVC_SMTP_PORT"           envDefault:"587"`
	SMTPUsername    string        `env:"AUTHSVC_SMTP_USERNAME"`
	SMTPPassword    string        `env:"AUTHSVC_SMTP_PASSWORD"`
	SMTPFrom        string        `env:"AUTHSVC_SMTP_FROM"`
	SMTPFromName    string        `env:"AUTHSVC_SMTP_FROM_NAME"`
	SMTPImplicitTLS bool          `env:"AUTHSVC_SMTP_IMPLICIT_TLS"   envDefault:"false"`
	KafkaBrokers    []string      `env:"AUTHSVC_KAFKA_BROKERS"       envSeparator:","`
	KafkaTopic      string        `env:"AUTHSVC_KAFKA_TOPIC"         envDefault:"auth.email.requested"`
	KafkaBatch      time.Duration `env:"AUTHSVC_KAFKA_BATCH_TIMEOUT" envDefault:"10ms"`
}

// LoadConfig parses the environment.
func LoadConfig() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch c.LedgerBackend {
	case "postgres", "redis":
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	switch c.Notifier {
	case "smtp":
		if c.SMTPHost == "" || c.SMTPFrom == "" {
			return errors.New("smtp notifier requires AUTHSVC_SMTP_HOST and AUTHSVC_SMTP_FROM")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return errors.New("kafka notifier requires AUTHSVC_KAFKA_BROKERS and AUTHSVC_KAFKA_TOPIC")
		}
	case "log":
	default:
		return fmt.Errorf("unknown notifier %q", c.Notifier)
	}
	return nil
}

// EngineConfig translates the process settings into an engine config and
// loads key files.
func (c Config) EngineConfig() (authsvc.Config, error) {
	cfg := authsvc.DefaultConfig()

	cfg.JWT.SigningMethod = strings.ToLower(c.JWTMethod)
	cfg.JWT.AccessSecret = []byte(c.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(c.RefreshSecret)
	cfg.JWT.KeyID = c.JWTKeyID
	cfg.JWT.Issuer = c.JWTIssuer
	cfg.JWT.Audience = c.JWTAudience
	cfg.JWT.AccessTTL = c.AccessTTL
	cfg.JWT.RefreshTTL = c.RefreshTTL
	if c.PrivateKeyFile != "" {
		pem, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return authsvc.Config{}, fmt.Errorf("read private key: %w", err)
		}
		cfg.JWT.PrivateKey = pem
	}
	if c.PublicKeyFile != "" {
		pem, err := os.ReadFile(c.PublicKeyFile)
		if err != nil {
			return authsvc.Config{}, fmt.Errorf("read public key: %w", err)
		}
		cfg.JWT.PublicKey = pem
	}

	cfg.OTP.TTL = c.OTPTTL
	cfg.Refresh.RevokeOnReuse = c.RevokeOnReuse
	cfg.SenderPreflight = c.SenderPreflight
	cfg.Timeouts.Store = c.StoreTimeout
	cfg.Timeouts.Sender = c.SenderTimeout
	cfg.Audit.Enabled = c.AuditLog

	cfg.RateLimit.Enabled = c.RateLimitEnabled
	auth := rate.Budget{Max: c.AuthBudget, Window: c.AuthWindow}
	otp := rate.Budget{Max: c.OTPBudget, Window: c.OTPWindow}
	cfg.RateLimit.Budgets[rate.ScopeRegister] = auth
	cfg.RateLimit.Budgets[rate.ScopeLogin] = auth
	cfg.RateLimit.Budgets[rate.ScopeOTP] = otp

	if err := cfg.Validate(); err != nil {
		return authsvc.Config{}, err
	}
	return cfg, nil
}
