package identity

import (
	"context"
	"sync"
	"time"

	"taskboard/cmd/identity/ids"
)

// MemoryStore is an in-process Store for development mode and tests.
type MemoryStore struct {
	mu      sync.Mutex
	byID    map[string]*UserAuth
	byEmail map[string]string
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[string]*UserAuth),
		byEmail: make(map[string]string),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, in CreateUserInput) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := NormalizeEmail(in.Email)
	if _, exists := s.byEmail[norm]; exists {
		return User{}, &ConflictError{Op: "identity.CreateUser", Field: "email"}
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	now := in.Now.UTC()
	u := User{
		ID:        ids.NewULID(now),
		Email:     in.Email,
		EmailNorm: norm,
		Name:      in.Name,
		Roles:     append([]string(nil), roles...),
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.byID[u.ID] = &UserAuth{User: u, PasswordHash: in.PasswordHash}
	s.byEmail[norm] = u.ID
	return u, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[id]
	if !ok {
		return User{}, &OpError{Op: "identity.GetUserByID", Kind: ErrNotFound, Msg: "user not found"}
	}
	return ua.User, nil
}

func (s *MemoryStore) GetUserAuthByEmail(_ context.Context, email string) (UserAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, &OpError{Op: "identity.GetUserAuthByEmail", Kind: ErrNotFound, Msg: "user not found"}
	}
	return *s.byID[id], nil
}

func (s *MemoryStore) UpdatePasswordHash(_ context.Context, userID string, hash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ua, ok := s.byID[userID]
	if !ok {
		return &OpError{Op: "identity.UpdatePasswordHash", Kind: ErrNotFound, Msg: "user not found"}
	}
	ua.PasswordHash = hash
	ua.User.UpdatedAt = now.UTC()
	return nil
}
