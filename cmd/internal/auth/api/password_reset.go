package authapi

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"taskboard/cmd/identity/ids"
	sectoken "taskboard/cmd/security/token"
)

var errResetInvalid = errors.New("password reset token invalid")

// resetRecord is a single-use, time-boxed password reset grant. Only the
// token hash is stored.
type resetRecord struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// ResetStore persists password-reset grants.
type ResetStore interface {
	CreateReset(ctx context.Context, rec resetRecord) error

	// ConsumeReset atomically resolves and burns the grant for tokenHash.
	// Returns errResetInvalid for unknown, expired or already-used grants.
	ConsumeReset(ctx context.Context, now time.Time, tokenHash string) (resetRecord, error)
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authapi: generate reset token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func hashResetToken(plain string) string {
	return sectoken.HashSecretHex(plain)
}

func newResetRecord(userID, token string, now time.Time, ttl time.Duration) resetRecord {
	return resetRecord{
		ID:        ids.NewULID(now),
		UserID:    userID,
		TokenHash: sectoken.HashSecretHex(token),
		ExpiresAt: now.Add(ttl),
	}
}

// PostgresResetStore implements ResetStore on taskboard.password_resets.
type PostgresResetStore struct {
	pool *pgxpool.Pool
}

// NewPostgresResetStore creates a Postgres-backed reset store.
func NewPostgresResetStore(pool *pgxpool.Pool) *PostgresResetStore {
	return &PostgresResetStore{pool: pool}
}

func (s *PostgresResetStore) CreateReset(ctx context.Context, rec resetRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO taskboard.password_resets (id, user_id, token_hash, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, $4, NULL, now())
	`, rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt)
	return err
}

func (s *PostgresResetStore) ConsumeReset(ctx context.Context, now time.Time, tokenHash string) (resetRecord, error) {
	var rec resetRecord
	err := s.pool.QueryRow(ctx, `
		UPDATE taskboard.password_resets
		SET used_at = $2
		WHERE token_hash = $1
		  AND used_at IS NULL
		  AND expires_at > $2
		RETURNING id, user_id, token_hash, expires_at, used_at
	`, tokenHash, now).Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.UsedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return resetRecord{}, errResetInvalid
	}
	if err != nil {
		return resetRecord{}, err
	}
	return rec, nil
}

// MemoryResetStore is the in-process ResetStore for development and tests.
type MemoryResetStore struct {
	mu     sync.Mutex
	byHash map[string]*resetRecord
}

// NewMemoryResetStore creates an empty in-memory reset store.
func NewMemoryResetStore() *MemoryResetStore {
	return &MemoryResetStore{byHash: make(map[string]*resetRecord)}
}

func (s *MemoryResetStore) CreateReset(_ context.Context, rec resetRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := rec
	s.byHash[rec.TokenHash] = &cp
	return nil
}

func (s *MemoryResetStore) ConsumeReset(_ context.Context, now time.Time, tokenHash string) (resetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[tokenHash]
	if !ok || rec.UsedAt != nil || !now.Before(rec.ExpiresAt) {
		return resetRecord{}, errResetInvalid
	}
	stamp := now
	rec.UsedAt = &stamp
	return *rec, nil
}
