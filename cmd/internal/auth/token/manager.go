package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"taskboard/cmd/identity/ids"
	sectoken "taskboard/cmd/security/token"
)

// Manager drives the refresh-token lifecycle on top of a Store.
//
// Plaintext secrets exist only in Issued values returned to the caller;
// the store only ever sees hashes.
type Manager struct {
	cfg   Config
	store Store
	now   func() time.Time
}

// Issued is the result of creating or rotating a refresh token: the plaintext
// secret for the client plus the stored record describing it.
type Issued struct {
	Secret string
	Record Record
}

// NewManager creates a Manager. A nil now falls back to time.Now.
func NewManager(cfg Config, store Store, now func() time.Time) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("token: nil store")
	}
	if cfg.RefreshTTL <= 0 || cfg.RefreshSecretBytes < 32 {
		return nil, ErrConfig
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{cfg: cfg, store: store, now: now}, nil
}

// Create mints a fresh refresh token for the user.
func (m *Manager) Create(ctx context.Context, userID string) (Issued, error) {
	now := m.now().UTC()

	issued, err := m.mint(userID, now)
	if err != nil {
		return Issued{}, err
	}
	if err := m.store.Create(ctx, issued.Record); err != nil {
		return Issued{}, fmt.Errorf("token.Create: %w", err)
	}
	return issued, nil
}

// Rotate exchanges a presented refresh secret for a successor token.
//
// Exactly one of any set of concurrent rotations of the same secret wins;
// losers observe ErrTokenReused. Reuse of an already-rotated secret revokes
// the owner's entire token set before the error surfaces.
func (m *Manager) Rotate(ctx context.Context, secret string) (Issued, error) {
	now := m.now().UTC()
	oldHash := sectoken.HashSecretHex(secret)

	// The successor is minted up front so the store can insert it inside
	// the same transaction that revokes the predecessor. Its owner is not
	// known yet; the store binds it to the predecessor's owner.
	successor, err := m.mint("", now)
	if err != nil {
		return Issued{}, err
	}

	old, err := m.store.Rotate(ctx, now, oldHash, successor.Record)
	if err != nil {
		return Issued{}, err
	}

	successor.Record.UserID = old.UserID
	return successor, nil
}

// ValidateAndGet checks a presented refresh secret without rotating it.
//
// Errors mirror Rotate's validation: ErrTokenNotFound, ErrTokenExpired,
// then ErrTokenReused for revoked records. A read-only check (forRotation
// false) leaves the record untouched; with forRotation true a successful
// check stamps last_used_at.
func (m *Manager) ValidateAndGet(ctx context.Context, secret string, forRotation bool) (Record, error) {
	now := m.now().UTC()

	rec, err := m.store.GetBySecretHash(ctx, sectoken.HashSecretHex(secret))
	if err != nil {
		return Record{}, err
	}
	if !now.Before(rec.ExpiresAt) {
		return Record{}, ErrTokenExpired
	}
	if rec.RevokedAt != nil {
		if err := m.store.RevokeAllForUser(ctx, now, rec.UserID); err != nil {
			return Record{}, err
		}
		return Record{}, ErrTokenReused
	}
	if forRotation {
		if err := m.store.MarkUsed(ctx, now, rec.ID); err != nil {
			return Record{}, err
		}
	}
	return rec, nil
}

// Revoke revokes the record matching a presented secret. Unknown secrets
// are ignored so logout stays idempotent.
func (m *Manager) Revoke(ctx context.Context, secret string) error {
	return m.store.RevokeByHash(ctx, m.now().UTC(), sectoken.HashSecretHex(secret))
}

// RevokeAllForUser revokes every refresh token the user owns.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	return m.store.RevokeAllForUser(ctx, m.now().UTC(), userID)
}

func (m *Manager) mint(userID string, now time.Time) (Issued, error) {
	secret, err := newOpaqueSecret(m.cfg.RefreshSecretBytes)
	if err != nil {
		return Issued{}, err
	}
	rec := Record{
		ID:         ids.NewULID(now),
		UserID:     userID,
		SecretHash: sectoken.HashSecretHex(secret),
		IssuedAt:   now,
		ExpiresAt:  now.Add(m.cfg.RefreshTTL),
	}
	return Issued{Secret: secret, Record: rec}, nil
}

// newOpaqueSecret returns n random bytes encoded as unpadded base64url.
func newOpaqueSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("token: generate secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
