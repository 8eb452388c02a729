// Package ledger records issued refresh tokens and their rotation chain.
//
// A ledger is the single source of truth for whether a refresh token may
// still be exchanged. Tokens are stored by SHA-256 digest; the plain
// token string never reaches storage. Each record points at most once to
// its successor through ReplacedBy, and presenting a record that already
// has a successor is reported as ErrReuseDetected.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for a token.
	ErrNotFound = errors.New("refresh token not found")
	// ErrReuseDetected is returned by Rotate when the token was already rotated.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrExpired is returned by Rotate for records past their expiry.
	ErrExpired = errors.New("refresh token expired")
	// ErrDuplicateToken is returned when a token digest collides with an existing record.
	ErrDuplicateToken = errors.New("duplicate refresh token")
	// ErrUnavailable wraps backend failures.
	ErrUnavailable = errors.New("ledger backend unavailable")
)

// Device describes where a refresh token was issued.
type Device struct {
	UserAgent string
	IP        string
}

// Record is one issued refresh token.
type Record struct {
	TokenHash  string
	SubjectID  string
	Device     Device
	ExpiresAt  time.Time
	ReplacedBy string
	CreatedAt  time.Time
}

// Rotated reports whether the record already has a successor.
func (r *Record) Rotated() bool {
	return r.ReplacedBy != ""
}

// Expired reports whether the record is past its expiry at now.
func (r *Record) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Ledger is implemented by Postgres and Redis.
type Ledger interface {
	Record(ctx context.Context, token, subjectID string, dev Device, expiresAt time.Time) error
	Find(ctx context.Context, token string) (*Record, error)
	// Rotate links oldToken to newToken and inserts the successor as one
	// atomic step. On ErrReuseDetected the returned record is the
	// already-rotated predecessor.
	Rotate(ctx context.Context, oldToken, newToken string, newExpiry time.Time, dev Device) (*Record, error)
	RevokeAll(ctx context.Context, subjectID string) (int, error)
}

// HashToken returns the storage digest of a refresh token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
