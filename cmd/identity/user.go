package identity

import (
	"context"
	"time"
)

// User is taskboard's canonical security principal.
type User struct {
	ID        string
	Email     string
	EmailNorm string
	Name      string
	Roles     []string
	Active    bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserAuth couples a user with its stored credential hash.
// The hash never leaves the auth layer.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput describes a registration request.
type CreateUserInput struct {
	Email        string
	Name         string
	Roles        []string
	PasswordHash string
	Now          time.Time
}

// Store is the user persistence boundary.
type Store interface {
	// CreateUser inserts a new user. Returns a ConflictError on duplicate email.
	CreateUser(ctx context.Context, in CreateUserInput) (User, error)

	// GetUserByID loads a user by ID. Returns ErrNotFound when missing.
	GetUserByID(ctx context.Context, id string) (User, error)

	// GetUserAuthByEmail loads a user plus password hash by normalized email.
	GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error)

	// UpdatePasswordHash replaces the stored credential hash (rehash upgrade, password reset).
	UpdatePasswordHash(ctx context.Context, userID string, hash string, now time.Time) error
}
