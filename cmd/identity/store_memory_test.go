package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	t.Parallel()

	require.Equal(t, "ada@example.test", NormalizeEmail("  Ada@Example.TEST "))
	require.Equal(t, "", NormalizeEmail("   "))
}

func TestMemoryStore_CreateAndGet(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	u, err := st.CreateUser(ctx, CreateUserInput{
		Email:        "Ada@Example.test",
		Name:         "Ada",
		PasswordHash: "$argon2id$fake",
		Now:          now,
	})
	require.NoError(t, err)
	require.NotEmpty(t, u.ID)
	require.Equal(t, "ada@example.test", u.EmailNorm)
	require.Equal(t, []string{"user"}, u.Roles)
	require.True(t, u.Active)

	got, err := st.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	// Lookup is case-insensitive and carries the credential hash.
	auth, err := st.GetUserAuthByEmail(ctx, "ADA@example.TEST")
	require.NoError(t, err)
	require.Equal(t, u.ID, auth.User.ID)
	require.Equal(t, "$argon2id$fake", auth.PasswordHash)
}

func TestMemoryStore_DuplicateEmailConflicts(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	_, err := st.CreateUser(ctx, CreateUserInput{Email: "ada@example.test", Name: "Ada", PasswordHash: "h", Now: now})
	require.NoError(t, err)

	_, err = st.CreateUser(ctx, CreateUserInput{Email: " ADA@Example.Test ", Name: "Imposter", PasswordHash: "h", Now: now})
	require.True(t, IsConflict(err))
}

func TestMemoryStore_NotFound(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()

	_, err := st.GetUserByID(ctx, "missing")
	require.True(t, IsNotFound(err))

	_, err = st.GetUserAuthByEmail(ctx, "nobody@example.test")
	require.True(t, IsNotFound(err))
}

func TestMemoryStore_UpdatePasswordHash(t *testing.T) {
	t.Parallel()

	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now().UTC()

	u, err := st.CreateUser(ctx, CreateUserInput{Email: "ada@example.test", Name: "Ada", PasswordHash: "old", Now: now})
	require.NoError(t, err)

	later := now.Add(time.Minute)
	require.NoError(t, st.UpdatePasswordHash(ctx, u.ID, "new", later))

	auth, err := st.GetUserAuthByEmail(ctx, "ada@example.test")
	require.NoError(t, err)
	require.Equal(t, "new", auth.PasswordHash)
	require.True(t, auth.User.UpdatedAt.Equal(later))

	err = st.UpdatePasswordHash(ctx, "missing", "new", later)
	require.True(t, IsNotFound(err))
}
