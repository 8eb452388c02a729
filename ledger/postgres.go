package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of *pgxpool.Pool the Postgres ledger needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

const (
	insertTokenQuery = `
		INSERT INTO refresh_tokens (token_hash, subject_id, user_agent, ip, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	selectTokenColumns = `token_hash, subject_id, user_agent, ip, expires_at, COALESCE(replaced_by, ''), created_at`

	findTokenQuery = `SELECT ` + selectTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	lockTokenQuery = findTokenQuery + `
		FOR UPDATE`

	markReplacedQuery = `
		UPDATE refresh_tokens
		SET replaced_by = $2
		WHERE token_hash = $1 AND replaced_by IS NULL`

	deleteSubjectQuery = `DELETE FROM refresh_tokens WHERE subject_id = $1`
)

// Postgres is a Ledger backed by the refresh_tokens table. Rotation
// locks the predecessor row with SELECT ... FOR UPDATE so concurrent
// rotations of the same token serialize and only the first succeeds.
type Postgres struct {
	db  DB
	now func() time.Time
}

var _ Ledger = (*Postgres)(nil)

// NewPostgres returns a Postgres ledger using db.
func NewPostgres(db DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// WithClock overrides the clock used for expiry checks and created_at.
func (p *Postgres) WithClock(now func() time.Time) *Postgres {
	p.now = now
	return p
}

// Record inserts a new refresh token record.
func (p *Postgres) Record(ctx context.Context, token, subjectID string, dev Device, expiresAt time.Time) error {
	_, err := p.db.Exec(ctx, insertTokenQuery,
		HashToken(token), subjectID, dev.UserAgent, dev.IP, expiresAt.UTC(), p.now().UTC())
	if err != nil {
		return mapWriteErr("insert refresh token", err)
	}
	return nil
}

// Find returns the record for token or ErrNotFound.
func (p *Postgres) Find(ctx context.Context, token string) (*Record, error) {
	rec, err := scanRecord(p.db.QueryRow(ctx, findTokenQuery, HashToken(token)))
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Rotate marks oldToken as replaced by newToken and inserts the successor in one transaction.
func (p *Postgres) Rotate(ctx context.Context, oldToken, newToken string, newExpiry time.Time, dev Device) (*Record, error) {
	tx, err := p.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin rotate: %v", ErrUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	oldHash := HashToken(oldToken)
	rec, err := scanRecord(tx.QueryRow(ctx, lockTokenQuery, oldHash))
	if err != nil {
		return nil, err
	}

	if rec.Rotated() {
		return rec, ErrReuseDetected
	}
	now := p.now()
	if rec.Expired(now) {
		return rec, ErrExpired
	}

	newHash := HashToken(newToken)
	if _, err := tx.Exec(ctx, insertTokenQuery,
		newHash, rec.SubjectID, dev.UserAgent, dev.IP, newExpiry.UTC(), now.UTC()); err != nil {
		return nil, mapWriteErr("insert successor", err)
	}

	tag, err := tx.Exec(ctx, markReplacedQuery, oldHash, newHash)
	if err != nil {
		return nil, mapWriteErr("mark replaced", err)
	}
	if tag.RowsAffected() != 1 {
		// The row lock makes this unreachable unless the row changed under us.
		return rec, ErrReuseDetected
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit rotate: %v", ErrUnavailable, err)
	}

	rec.ReplacedBy = newHash
	return rec, nil
}

// RevokeAll deletes every record owned by subjectID.
func (p *Postgres) RevokeAll(ctx context.Context, subjectID string) (int, error) {
	tag, err := p.db.Exec(ctx, deleteSubjectQuery, subjectID)
	if err != nil {
		return 0, fmt.Errorf("%w: revoke all: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.TokenHash,
		&rec.SubjectID,
		&rec.Device.UserAgent,
		&rec.Device.IP,
		&rec.ExpiresAt,
		&rec.ReplacedBy,
		&rec.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan refresh token: %v", ErrUnavailable, err)
	}
	return &rec, nil
}

func mapWriteErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateToken
	}
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}
