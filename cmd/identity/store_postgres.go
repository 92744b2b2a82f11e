package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskboard/cmd/identity/ids"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store using PostgreSQL (taskboard.users).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed user store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// CreateUser inserts a new user row.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	email := strings.TrimSpace(in.Email)
	if email == "" || in.PasswordHash == "" {
		return User{}, OpError{Op: op, Kind: ErrInvalidInput, Msg: "email and password hash are required"}
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id := ids.NewULID(now)

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{"user"}
	}

	u := User{
		ID:        id,
		Email:     email,
		EmailNorm: NormalizeEmail(email),
		Name:      strings.TrimSpace(in.Name),
		Roles:     roles,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO taskboard.users (
			id, email, email_norm, name, roles, active,
			password_hash, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`, u.ID, u.Email, u.EmailNorm, u.Name, u.Roles, u.Active, in.PasswordHash, now)
	if err != nil {
		if field, ok := pgClassifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// GetUserByID loads a user row by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.GetUserByID"

	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, email_norm, name, roles, active, created_at, updated_at
		FROM taskboard.users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Email, &u.EmailNorm, &u.Name, &u.Roles, &u.Active, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// GetUserAuthByEmail loads a user plus credential hash by normalized email.
func (s *PostgresStore) GetUserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.GetUserAuthByEmail"

	var ua UserAuth
	err := s.pool.QueryRow(ctx, `
		SELECT id, email, email_norm, name, roles, active, created_at, updated_at, password_hash
		FROM taskboard.users
		WHERE email_norm = $1
	`, NormalizeEmail(email)).Scan(
		&ua.User.ID,
		&ua.User.Email,
		&ua.User.EmailNorm,
		&ua.User.Name,
		&ua.User.Roles,
		&ua.User.Active,
		&ua.User.CreatedAt,
		&ua.User.UpdatedAt,
		&ua.PasswordHash,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, OpError{Op: op, Kind: ErrNotFound}
	}
	if err != nil {
		return UserAuth{}, fmt.Errorf("%s: %w", op, err)
	}

	return ua, nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, userID string, hash string, now time.Time) error {
	const op = "identity.UpdatePasswordHash"

	if hash == "" {
		return OpError{Op: op, Kind: ErrInvalidInput, Msg: "empty hash"}
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE taskboard.users
		SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, userID, hash, now)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return OpError{Op: op, Kind: ErrNotFound}
	}
	return nil
}

func pgClassifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	if pgErr.Code != "23505" { // unique_violation
		return "", false
	}

	// Prefer stable schema constraint names; fall back to substring matching.
	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case c == "uq_users_email_norm" || strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "secret") && strings.Contains(c, "hash"):
		return "secret_hash", true
	default:
		return "unique", true
	}
}
