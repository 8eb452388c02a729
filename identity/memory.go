package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is an in-process Store for tests and local development.
// Uniqueness is checked and applied under one lock.
type Memory struct {
	mu         sync.RWMutex
	byID       map[string]*Identity
	byEmail    map[string]string
	byUsername map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		byID:       make(map[string]*Identity),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

// Create inserts a new identity or returns ErrConflict.
func (m *Memory) Create(ctx context.Context, in NewIdentity) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	email := NormalizeEmail(in.Email)
	username := strings.TrimSpace(in.Username)
	usernameKey := strings.ToLower(username)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return nil, fmt.Errorf("%w: email", ErrConflict)
	}
	if _, ok := m.byUsername[usernameKey]; ok {
		return nil, fmt.Errorf("%w: username", ErrConflict)
	}

	now := time.Now().UTC()
	ident := &Identity{
		ID:           uuid.NewString(),
		Email:        email,
		Username:     username,
		PasswordHash: in.PasswordHash,
		Verified:     in.Verified,
		Roles:        rolesOrDefault(in.Roles),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.byID[ident.ID] = ident
	m.byEmail[email] = ident.ID
	m.byUsername[usernameKey] = ident.ID

	return clone(ident), nil
}

// FindByEmailOrUsername matches identifier against email or username.
func (m *Memory) FindByEmailOrUsername(ctx context.Context, identifier string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := strings.ToLower(strings.TrimSpace(identifier))

	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.byEmail[key]; ok {
		return clone(m.byID[id]), nil
	}
	if id, ok := m.byUsername[key]; ok {
		return clone(m.byID[id]), nil
	}
	return nil, ErrNotFound
}

// FindByEmail looks an identity up by address.
func (m *Memory) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if id, ok := m.byEmail[NormalizeEmail(email)]; ok {
		return clone(m.byID[id]), nil
	}
	return nil, ErrNotFound
}

// FindByID looks an identity up by id.
func (m *Memory) FindByID(ctx context.Context, id string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if ident, ok := m.byID[id]; ok {
		return clone(ident), nil
	}
	return nil, ErrNotFound
}

// MarkVerified sets the verification flag.
func (m *Memory) MarkVerified(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	ident.Verified = true
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (m *Memory) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ident, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	ident.PasswordHash = hash
	ident.UpdatedAt = time.Now().UTC()
	return nil
}

func clone(ident *Identity) *Identity {
	out := *ident
	out.Roles = append([]string{}, ident.Roles...)
	return &out
}
