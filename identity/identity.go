// Package identity persists user identities and their password hashes.
//
// Uniqueness of email and username is enforced by the storage layer
// itself, so two concurrent registrations for the same address cannot
// both succeed.
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no identity matches a lookup.
	ErrNotFound = errors.New("identity not found")
	// ErrConflict is returned by Create when the email or username is taken.
	ErrConflict = errors.New("identity already exists")
	// ErrUnavailable wraps storage failures.
	ErrUnavailable = errors.New("identity store unavailable")
)

// DefaultRoles is assigned to identities created without explicit roles.
var DefaultRoles = []string{"user"}

// Identity is a stored account.
type Identity struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string
	Verified     bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// HasRole reports whether the identity carries role.
func (i *Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// NewIdentity holds the fields supplied at creation time.
type NewIdentity struct {
	Email        string
	Username     string
	PasswordHash string
	Roles        []string
	Verified     bool
}

// Store is the credential persistence contract used by the session manager.
type Store interface {
	Create(ctx context.Context, in NewIdentity) (*Identity, error)
	FindByEmailOrUsername(ctx context.Context, identifier string) (*Identity, error)
	FindByEmail(ctx context.Context, email string) (*Identity, error)
	FindByID(ctx context.Context, id string) (*Identity, error)
	MarkVerified(ctx context.Context, id string) error
	// UpdatePasswordHash replaces the stored hash, for example after the
	// hasher parameters were raised.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func rolesOrDefault(roles []string) []string {
	if len(roles) == 0 {
		out := make([]string, len(DefaultRoles))
		copy(out, DefaultRoles)
		return out
	}
	out := make([]string, len(roles))
	copy(out, roles)
	return out
}
