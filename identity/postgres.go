package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool used by Postgres.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	identityColumns = `id, email, username, password_hash, verified, roles, created_at, updated_at`

	insertIdentityQuery = `
		INSERT INTO identities (id, email, username, password_hash, verified, roles, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	findByIDQuery = `SELECT ` + identityColumns + `
		FROM identities
		WHERE id = $1`

	findByEmailQuery = `SELECT ` + identityColumns + `
		FROM identities
		WHERE lower(email) = lower($1)`

	findByEmailOrUsernameQuery = `SELECT ` + identityColumns + `
		FROM identities
		WHERE lower(email) = lower($1) OR lower(username) = lower($1)
		LIMIT 1`

	markVerifiedQuery = `
		UPDATE identities
		SET verified = TRUE, updated_at = $2
		WHERE id = $1`

	updatePasswordHashQuery = `
		UPDATE identities
		SET password_hash = $2, updated_at = $3
		WHERE id = $1`
)

// Postgres stores identities in the identities table. Unique indexes on
// lower(email) and lower(username) back ErrConflict.
type Postgres struct {
	db    DB
	now   func() time.Time
	newID func() string
}

var _ Store = (*Postgres)(nil)

// NewPostgres returns a Postgres identity store using db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, now: time.Now, newID: uuid.NewString}
}

// Create inserts a new identity. A unique violation maps to ErrConflict.
func (p *Postgres) Create(ctx context.Context, in NewIdentity) (*Identity, error) {
	now := p.now().UTC()
	ident := &Identity{
		ID:           p.newID(),
		Email:        NormalizeEmail(in.Email),
		Username:     strings.TrimSpace(in.Username),
		PasswordHash: in.PasswordHash,
		Verified:     in.Verified,
		Roles:        rolesOrDefault(in.Roles),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	_, err := p.db.Exec(ctx, insertIdentityQuery,
		ident.ID,
		ident.Email,
		ident.Username,
		ident.PasswordHash,
		ident.Verified,
		ident.Roles,
		ident.CreatedAt,
		ident.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrConflict, conflictField(err))
		}
		return nil, fmt.Errorf("%w: insert identity: %v", ErrUnavailable, err)
	}
	return ident, nil
}

// FindByEmailOrUsername matches identifier against email or username, case-insensitively.
func (p *Postgres) FindByEmailOrUsername(ctx context.Context, identifier string) (*Identity, error) {
	return p.scanIdentity(ctx, findByEmailOrUsernameQuery, strings.TrimSpace(identifier))
}

// FindByEmail looks an identity up by address.
func (p *Postgres) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	return p.scanIdentity(ctx, findByEmailQuery, NormalizeEmail(email))
}

// FindByID looks an identity up by id.
func (p *Postgres) FindByID(ctx context.Context, id string) (*Identity, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	return p.scanIdentity(ctx, findByIDQuery, id)
}

// MarkVerified sets the verification flag. Marking an already verified identity is not an error.
func (p *Postgres) MarkVerified(ctx context.Context, id string) error {
	tag, err := p.db.Exec(ctx, markVerifiedQuery, id, p.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: mark verified: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored hash.
func (p *Postgres) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	tag, err := p.db.Exec(ctx, updatePasswordHashQuery, id, hash, p.now().UTC())
	if err != nil {
		return fmt.Errorf("%w: update password hash: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) scanIdentity(ctx context.Context, query string, arg any) (*Identity, error) {
	var ident Identity
	err := p.db.QueryRow(ctx, query, arg).Scan(
		&ident.ID,
		&ident.Email,
		&ident.Username,
		&ident.PasswordHash,
		&ident.Verified,
		&ident.Roles,
		&ident.CreatedAt,
		&ident.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan identity: %v", ErrUnavailable, err)
	}
	if ident.Roles == nil {
		ident.Roles = []string{}
	}
	return &ident, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func conflictField(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.Contains(pgErr.ConstraintName, "username") {
		return "username"
	}
	return "email"
}
