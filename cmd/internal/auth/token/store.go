package token

import (
	"context"
	"time"
)

// Record mirrors the taskboard.refresh_tokens row.
//
// Records are never deleted; revoked rows are retained so that reuse of a
// rotated secret remains detectable and the rotation chain can be
// reconstructed for forensics.
type Record struct {
	ID         string
	UserID     string
	SecretHash string

	IssuedAt  time.Time
	ExpiresAt time.Time

	RevokedAt      *time.Time
	ReplacedByHash *string
	LastUsedAt     *time.Time
}

// Usable reports whether the record can still be rotated/validated.
func (r Record) Usable(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// Store abstracts persistence for refresh-token state.
//
// Rotate carries the load-bearing invariant: implementations must serialize
// rotation per secret hash (row lock or equivalent) so that exactly one of
// any set of concurrent rotations succeeds and the rest observe
// ErrTokenReused/ErrTokenExpired deterministically. Process-local locks are
// only sufficient for the in-memory store; shared deployments must rely on
// the database's transactional guarantees.
type Store interface {
	// Create inserts a new record. The secret hash is unique; a collision
	// fails creation.
	Create(ctx context.Context, rec Record) error

	// GetBySecretHash loads a record by secret hash.
	// Returns ErrTokenNotFound when no record matches.
	GetBySecretHash(ctx context.Context, secretHash string) (Record, error)

	// Rotate atomically exchanges the record matching oldHash for successor.
	// The successor's UserID is ignored; it is bound to the predecessor's
	// owner inside the transaction. The exchange:
	// validate (not found / expired / reused), insert successor, revoke the
	// predecessor and stamp its replaced_by_hash and last_used_at, all in
	// one transaction. On reuse detection every record belonging to the
	// predecessor's owner is revoked before ErrTokenReused is returned.
	// Returns the predecessor as it was before revocation.
	Rotate(ctx context.Context, now time.Time, oldHash string, successor Record) (Record, error)

	// MarkUsed stamps last_used_at (validation-for-rotation bookkeeping).
	MarkUsed(ctx context.Context, now time.Time, id string) error

	// RevokeByHash revokes the record matching the hash (idempotent);
	// a missing record is not an error.
	RevokeByHash(ctx context.Context, now time.Time, secretHash string) error

	// RevokeAllForUser revokes every record owned by the user (idempotent).
	RevokeAllForUser(ctx context.Context, now time.Time, userID string) error
}
