package token

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-process Store for development mode and tests.
// All operations serialize on a single mutex, so Rotate gets the same
// single-winner guarantee the Postgres store gets from row locks.
type MemoryStore struct {
	mu     sync.Mutex
	byHash map[string]*Record
	byUser map[string][]*Record
}

// NewMemoryStore creates an empty in-memory refresh-token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byHash: make(map[string]*Record),
		byUser: make(map[string][]*Record),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked(rec)
}

func (s *MemoryStore) createLocked(rec Record) error {
	// Mirrors the unique constraint on secret_hash.
	if _, exists := s.byHash[rec.SecretHash]; exists {
		return ErrSecretHashExists
	}
	cp := rec
	s.byHash[rec.SecretHash] = &cp
	s.byUser[rec.UserID] = append(s.byUser[rec.UserID], &cp)
	return nil
}

func (s *MemoryStore) GetBySecretHash(_ context.Context, secretHash string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[secretHash]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	return *rec, nil
}

func (s *MemoryStore) Rotate(_ context.Context, now time.Time, oldHash string, successor Record) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.byHash[oldHash]
	if !ok {
		return Record{}, ErrTokenNotFound
	}
	if !now.Before(old.ExpiresAt) {
		return Record{}, ErrTokenExpired
	}
	if old.RevokedAt != nil {
		s.revokeAllLocked(now, old.UserID)
		return Record{}, ErrTokenReused
	}

	successor.UserID = old.UserID
	if err := s.createLocked(successor); err != nil {
		return Record{}, err
	}

	// Snapshot before stamping so the caller sees the pre-revocation row.
	before := *old

	revokedAt := now
	lastUsed := now
	replacedBy := successor.SecretHash
	old.RevokedAt = &revokedAt
	old.LastUsedAt = &lastUsed
	old.ReplacedByHash = &replacedBy

	return before, nil
}

func (s *MemoryStore) MarkUsed(_ context.Context, now time.Time, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.byHash {
		if rec.ID == id {
			stamp := now
			rec.LastUsedAt = &stamp
			return nil
		}
	}
	return ErrTokenNotFound
}

func (s *MemoryStore) RevokeByHash(_ context.Context, now time.Time, secretHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byHash[secretHash]
	if !ok {
		return nil
	}
	if rec.RevokedAt == nil {
		stamp := now
		rec.RevokedAt = &stamp
	}
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, now time.Time, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokeAllLocked(now, userID)
	return nil
}

func (s *MemoryStore) revokeAllLocked(now time.Time, userID string) {
	for _, rec := range s.byUser[userID] {
		if rec.RevokedAt == nil {
			stamp := now
			rec.RevokedAt = &stamp
		}
	}
}
