package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (taskboard.refresh_tokens).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed refresh-token store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("token: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a new refresh-token row.
func (s *PostgresStore) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO taskboard.refresh_tokens (
			id, user_id, secret_hash,
			issued_at, expires_at, revoked_at,
			replaced_by_hash, last_used_at
		) VALUES ($1, $2, $3, $4, $5, NULL, NULL, NULL)
	`, rec.ID, rec.UserID, rec.SecretHash, rec.IssuedAt, rec.ExpiresAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("token.Create: %w", ErrSecretHashExists)
	}
	return err
}

// GetBySecretHash loads a refresh-token row by secret hash.
func (s *PostgresStore) GetBySecretHash(ctx context.Context, secretHash string) (Record, error) {
	return scanRecord(s.pool.QueryRow(ctx, selectByHashSQL, secretHash))
}

// Rotate exchanges the row matching oldHash for successor inside a single
// transaction, locking the predecessor row so concurrent rotations of the
// same secret serialize on the database.
func (s *PostgresStore) Rotate(ctx context.Context, now time.Time, oldHash string, successor Record) (Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Record{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	old, err := scanRecord(tx.QueryRow(ctx, selectByHashSQL+" FOR UPDATE", oldHash))
	if err != nil {
		return Record{}, err
	}

	// Expiry check first: an expired token is reported as expired even if it
	// was also revoked, so logs distinguish staleness from replay.
	if !now.Before(old.ExpiresAt) {
		return Record{}, ErrTokenExpired
	}

	if old.RevokedAt != nil {
		// A rotated secret presented again: revoke the owner's whole chain
		// inside this transaction before surfacing the reuse signal.
		if err := revokeAllForUserTx(ctx, tx, now, old.UserID); err != nil {
			return Record{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Record{}, err
		}
		return Record{}, ErrTokenReused
	}

	successor.UserID = old.UserID
	if err := createTx(ctx, tx, successor); err != nil {
		return Record{}, err
	}

	_, err = tx.Exec(ctx, `
		UPDATE taskboard.refresh_tokens
		SET revoked_at = $2,
		    last_used_at = $2,
		    replaced_by_hash = $3
		WHERE id = $1
	`, old.ID, now, successor.SecretHash)
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Record{}, err
	}

	return old, nil
}

// MarkUsed stamps last_used_at for a record.
func (s *PostgresStore) MarkUsed(ctx context.Context, now time.Time, id string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE taskboard.refresh_tokens
		SET last_used_at = $2
		WHERE id = $1
	`, id, now)
	return err
}

// RevokeByHash revokes the record matching the hash (idempotent, best-effort).
func (s *PostgresStore) RevokeByHash(ctx context.Context, now time.Time, secretHash string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE taskboard.refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE secret_hash = $1
	`, secretHash, now)
	return err
}

// RevokeAllForUser revokes all records owned by a user (idempotent).
func (s *PostgresStore) RevokeAllForUser(ctx context.Context, now time.Time, userID string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE taskboard.refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE user_id = $1
	`, userID, now)
	return err
}

const selectByHashSQL = `
	SELECT
		id, user_id, secret_hash,
		issued_at, expires_at, revoked_at,
		replaced_by_hash, last_used_at
	FROM taskboard.refresh_tokens
	WHERE secret_hash = $1
`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.SecretHash,
		&rec.IssuedAt,
		&rec.ExpiresAt,
		&rec.RevokedAt,
		&rec.ReplacedByHash,
		&rec.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrTokenNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func createTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO taskboard.refresh_tokens (
			id, user_id, secret_hash,
			issued_at, expires_at, revoked_at,
			replaced_by_hash, last_used_at
		) VALUES ($1, $2, $3, $4, $5, NULL, NULL, NULL)
	`, rec.ID, rec.UserID, rec.SecretHash, rec.IssuedAt, rec.ExpiresAt)
	return err
}

func revokeAllForUserTx(ctx context.Context, tx pgx.Tx, now time.Time, userID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE taskboard.refresh_tokens
		SET revoked_at = COALESCE(revoked_at, $2)
		WHERE user_id = $1
	`, userID, now)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505"
}
