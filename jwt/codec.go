package jwt

import (
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the algorithm a Codec signs and verifies with.
type SigningMethod string

const (
	// MethodHS256 signs with a shared secret.
	MethodHS256 SigningMethod = "hs256"
	// MethodRS256 signs with an RSA private key and verifies with its public key.
	MethodRS256 SigningMethod = "rs256"
	// MethodEd25519 signs with an Ed25519 private key and verifies with its public key.
	MethodEd25519 SigningMethod = "ed25519"
)

const (
	typeAccess  = "access"
	typeRefresh = "refresh"

	minSecretBytes = 32

	// DefaultAccessTTL is the access token lifetime used when Config.AccessTTL is zero.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL is the refresh token lifetime used when Config.RefreshTTL is zero.
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

var (
	// ErrTokenInvalid covers malformed tokens, bad signatures, unexpected
	// algorithms and tokens of the wrong kind.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned for tokens whose signature verifies but whose expiry has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrIssueDisabled is returned by Issue* on a verify-only codec.
	ErrIssueDisabled = errors.New("codec has no signing key")
)

// Config describes the key material and lifetimes of a Codec.
//
// For MethodHS256, AccessSecret signs access tokens and RefreshSecret
// signs refresh tokens; an empty RefreshSecret reuses AccessSecret.
// For the asymmetric methods PrivateKey and PublicKey hold PEM data
// (Ed25519 also accepts raw key bytes). A codec configured with only a
// PublicKey can verify but not issue.
type Config struct {
	SigningMethod SigningMethod
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
	Now           func() time.Time
}

// AccessInput is the identity asserted by an access token.
type AccessInput struct {
	Subject string
	Email   string
	Roles   []string
}

// AccessClaims is the decoded form of an access token.
type AccessClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	Type  string   `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the decoded form of a refresh token. The rotation id
// travels in the jti claim.
type RefreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// RotationID returns the random identifier distinguishing this token from its predecessor.
func (c *RefreshClaims) RotationID() string {
	return c.ID
}

type keyPair struct {
	sign   any
	verify any
}

// Codec signs and verifies access and refresh tokens. It holds no
// mutable state once constructed and is safe for concurrent use.
type Codec struct {
	method     jwt.SigningMethod
	access     keyPair
	refresh    keyPair
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	audience   string
	leeway     time.Duration
	keyID      string
	now        func() time.Time
}

// NewCodec parses the configured key material once and returns an immutable codec.
func NewCodec(cfg Config) (*Codec, error) {
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL == 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.RefreshTTL <= cfg.AccessTTL {
		return nil, errors.New("refresh TTL must exceed access TTL")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	c := &Codec{
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		issuer:     cfg.Issuer,
		audience:   cfg.Audience,
		leeway:     cfg.Leeway,
		keyID:      strings.TrimSpace(cfg.KeyID),
		now:        cfg.Now,
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.AccessSecret) < minSecretBytes {
			return nil, fmt.Errorf("hs256 access secret must be at least %d bytes", minSecretBytes)
		}
		refreshSecret := cfg.RefreshSecret
		if len(refreshSecret) == 0 {
			refreshSecret = cfg.AccessSecret
		}
		if len(refreshSecret) < minSecretBytes {
			return nil, fmt.Errorf("hs256 refresh secret must be at least %d bytes", minSecretBytes)
		}
		c.method = jwt.SigningMethodHS256
		c.access = keyPair{sign: cloneBytes(cfg.AccessSecret), verify: cloneBytes(cfg.AccessSecret)}
		c.refresh = keyPair{sign: cloneBytes(refreshSecret), verify: cloneBytes(refreshSecret)}
	case MethodRS256:
		pair, err := rsaKeys(cfg.PrivateKey, cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		c.method = jwt.SigningMethodRS256
		c.access, c.refresh = pair, pair
	case MethodEd25519:
		pair, err := edKeys(cfg.PrivateKey, cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		c.method = jwt.SigningMethodEdDSA
		c.access, c.refresh = pair, pair
	default:
		return nil, errors.New("unsupported signing method")
	}

	return c, nil
}

// AccessTTL returns the configured access token lifetime.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL returns the configured refresh token lifetime.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// CanIssue reports whether the codec holds signing keys.
func (c *Codec) CanIssue() bool { return c.access.sign != nil }

// NewRotationID returns a fresh random identifier for IssueRefresh.
func NewRotationID() string {
	return uuid.NewString()
}

// IssueAccess signs an access token for in. A nil role set is issued as
// an empty one so verification returns the same value.
func (c *Codec) IssueAccess(in AccessInput) (string, time.Time, error) {
	if in.Subject == "" {
		return "", time.Time{}, errors.New("access token requires subject")
	}
	roles := in.Roles
	if roles == nil {
		roles = []string{}
	}

	now := c.now()
	exp := now.Add(c.accessTTL)
	claims := AccessClaims{
		Email: in.Email,
		Roles: roles,
		Type:  typeAccess,
		RegisteredClaims: c.registered(in.Subject, "", now, exp),
	}

	token, err := c.sign(claims, c.access.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// IssueRefresh signs a refresh token binding subjectID to rotationID.
func (c *Codec) IssueRefresh(subjectID, rotationID string) (string, time.Time, error) {
	if subjectID == "" || rotationID == "" {
		return "", time.Time{}, errors.New("refresh token requires subject and rotation id")
	}

	now := c.now()
	exp := now.Add(c.refreshTTL)
	claims := RefreshClaims{
		Type:             typeRefresh,
		RegisteredClaims: c.registered(subjectID, rotationID, now, exp),
	}

	token, err := c.sign(claims, c.refresh.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, claims.ExpiresAt.Time, nil
}

// VerifyAccess checks signature, algorithm, kind and expiry of an access token.
func (c *Codec) VerifyAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := c.parse(token, claims, c.access.verify); err != nil {
		return nil, err
	}
	if claims.Type != typeAccess || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	if claims.Roles == nil {
		claims.Roles = []string{}
	}
	return claims, nil
}

// VerifyRefresh checks signature, algorithm, kind and expiry of a refresh token.
func (c *Codec) VerifyRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := c.parse(token, claims, c.refresh.verify); err != nil {
		return nil, err
	}
	if claims.Type != typeRefresh || claims.Subject == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func (c *Codec) registered(subject, id string, now, exp time.Time) jwt.RegisteredClaims {
	rc := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        id,
		Issuer:    c.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	if c.audience != "" {
		rc.Audience = jwt.ClaimStrings{c.audience}
	}
	return rc
}

func (c *Codec) sign(claims jwt.Claims, key any) (string, error) {
	if key == nil {
		return "", ErrIssueDisabled
	}
	token := jwt.NewWithClaims(c.method, claims)
	if c.keyID != "" {
		token.Header["kid"] = c.keyID
	}
	return token.SignedString(key)
}

func (c *Codec) parse(tokenStr string, claims jwt.Claims, key any) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.leeway > 0 {
		options = append(options, jwt.WithLeeway(c.leeway))
	}
	if c.issuer != "" {
		options = append(options, jwt.WithIssuer(c.issuer))
	}
	if c.audience != "" {
		options = append(options, jwt.WithAudience(c.audience))
	}

	_, err := jwt.NewParser(options...).ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != c.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		if c.keyID != "" {
			if kid, _ := t.Header["kid"].(string); kid != c.keyID {
				return nil, errors.New("unknown kid")
			}
		}
		return key, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}

func rsaKeys(privatePEM, publicPEM []byte) (keyPair, error) {
	var pair keyPair
	var pub *rsa.PublicKey

	if len(privatePEM) > 0 {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return keyPair{}, errors.New("invalid rsa private key")
		}
		if priv.N.BitLen() < 2048 {
			return keyPair{}, errors.New("rsa key must be at least 2048 bits")
		}
		pair.sign = priv
		pub = &priv.PublicKey
	}
	if len(publicPEM) > 0 {
		parsed, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
		if err != nil {
			return keyPair{}, errors.New("invalid rsa public key")
		}
		if pub != nil && !pub.Equal(parsed) {
			return keyPair{}, errors.New("rsa public key does not match private key")
		}
		pub = parsed
	}
	if pub == nil {
		return keyPair{}, errors.New("rs256 requires private or public key")
	}
	pair.verify = pub
	return pair, nil
}

func edKeys(privateKey, publicKey []byte) (keyPair, error) {
	var pair keyPair
	var pub ed25519.PublicKey

	if len(privateKey) > 0 {
		priv, err := parseEdPrivateKey(privateKey)
		if err != nil {
			return keyPair{}, err
		}
		pair.sign = priv
		pub = priv.Public().(ed25519.PublicKey)
	}
	if len(publicKey) > 0 {
		parsed, err := parseEdPublicKey(publicKey)
		if err != nil {
			return keyPair{}, err
		}
		if pub != nil && !pub.Equal(crypto.PublicKey(parsed)) {
			return keyPair{}, errors.New("ed25519 public key does not match private key")
		}
		pub = parsed
	}
	if pub == nil {
		return keyPair{}, errors.New("ed25519 requires private or public key")
	}
	pair.verify = pub
	return pair, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(cloneBytes(key)), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(cloneBytes(key)), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
