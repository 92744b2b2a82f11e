package token

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T) (*Manager, *MemoryStore, *testClock) {
	t.Helper()

	cfg := DefaultConfig()
	clock := newTestClock()
	store := NewMemoryStore()

	mgr, err := NewManager(cfg, store, clock.Now)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr, store, clock
}

func TestManager_Create(t *testing.T) {
	t.Parallel()

	mgr, store, clock := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if issued.Secret == "" {
		t.Fatalf("expected plaintext secret")
	}
	if issued.Record.SecretHash == issued.Secret {
		t.Fatalf("secret stored unhashed")
	}
	if got, want := issued.Record.ExpiresAt, clock.Now().Add(mgr.cfg.RefreshTTL); !got.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", got, want)
	}

	rec, err := store.GetBySecretHash(ctx, issued.Record.SecretHash)
	if err != nil {
		t.Fatalf("GetBySecretHash: %v", err)
	}
	if rec.UserID != "user-1" || rec.RevokedAt != nil {
		t.Fatalf("unexpected stored record: %+v", rec)
	}
}

func TestManager_Rotate_OldSecretUnusable(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := mgr.Rotate(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if next.Secret == issued.Secret {
		t.Fatalf("rotation returned the same secret")
	}
	if next.Record.UserID != "user-1" {
		t.Fatalf("successor owner = %q, want user-1", next.Record.UserID)
	}

	// The predecessor must be dead the moment rotation returns.
	if _, err := mgr.Rotate(ctx, issued.Secret); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("replaying rotated secret: got %v, want ErrTokenReused", err)
	}
}

func TestManager_Rotate_NoValidityGap(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := mgr.Rotate(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// The successor is usable immediately, with no intermediate state in
	// which neither secret works.
	rec, err := mgr.ValidateAndGet(ctx, next.Secret, true)
	if err != nil {
		t.Fatalf("ValidateAndGet(successor): %v", err)
	}
	if rec.LastUsedAt == nil {
		t.Fatalf("expected last_used_at stamped")
	}
}

func TestManager_ValidateAndGet_ReadOnlyMode(t *testing.T) {
	t.Parallel()

	mgr, store, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	// A plain validity check must not touch the record.
	if _, err := mgr.ValidateAndGet(ctx, issued.Secret, false); err != nil {
		t.Fatalf("ValidateAndGet(read-only): %v", err)
	}
	rec, err := store.GetBySecretHash(ctx, issued.Record.SecretHash)
	if err != nil {
		t.Fatalf("GetBySecretHash: %v", err)
	}
	if rec.LastUsedAt != nil {
		t.Fatalf("read-only validation stamped last_used_at = %v", rec.LastUsedAt)
	}

	// The rotation-bound check is the one that stamps usage.
	if _, err := mgr.ValidateAndGet(ctx, issued.Secret, true); err != nil {
		t.Fatalf("ValidateAndGet(for rotation): %v", err)
	}
	rec, err = store.GetBySecretHash(ctx, issued.Record.SecretHash)
	if err != nil {
		t.Fatalf("GetBySecretHash: %v", err)
	}
	if rec.LastUsedAt == nil {
		t.Fatalf("expected last_used_at stamped for rotation-bound check")
	}
}

func TestManager_Rotate_ChainLinksAndFreshExpiry(t *testing.T) {
	t.Parallel()

	mgr, store, clock := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(48 * time.Hour)

	next, err := mgr.Rotate(ctx, issued.Secret)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}

	// Successor expiry is stamped from rotation time, never inherited.
	if got, want := next.Record.ExpiresAt, clock.Now().Add(mgr.cfg.RefreshTTL); !got.Equal(want) {
		t.Fatalf("successor ExpiresAt = %v, want %v", got, want)
	}

	old, err := store.GetBySecretHash(ctx, issued.Record.SecretHash)
	if err != nil {
		t.Fatalf("load predecessor: %v", err)
	}
	if old.RevokedAt == nil || old.ReplacedByHash == nil {
		t.Fatalf("predecessor not revoked/linked: %+v", old)
	}
	if *old.ReplacedByHash != next.Record.SecretHash {
		t.Fatalf("replaced_by_hash = %q, want %q", *old.ReplacedByHash, next.Record.SecretHash)
	}
	if !old.ExpiresAt.Equal(issued.Record.ExpiresAt) {
		t.Fatalf("predecessor expiry changed")
	}
}

func TestManager_Rotate_Expired(t *testing.T) {
	t.Parallel()

	mgr, _, clock := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	clock.Advance(mgr.cfg.RefreshTTL)

	if _, err := mgr.Rotate(ctx, issued.Secret); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("got %v, want ErrTokenExpired", err)
	}
}

func TestManager_Rotate_NotFound(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)

	if _, err := mgr.Rotate(context.Background(), "never-issued"); !errors.Is(err, ErrTokenNotFound) {
		t.Fatalf("got %v, want ErrTokenNotFound", err)
	}
}

func TestManager_ReuseRevokesWholeUserSet(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	// Two devices for the same user.
	a, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create a: %v", err)
	}
	b, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create b: %v", err)
	}

	next, err := mgr.Rotate(ctx, a.Secret)
	if err != nil {
		t.Fatalf("Rotate a: %v", err)
	}

	// Replay of the rotated secret is the theft signal; the whole set goes.
	if _, err := mgr.Rotate(ctx, a.Secret); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("replay: got %v, want ErrTokenReused", err)
	}
	if _, err := mgr.ValidateAndGet(ctx, next.Secret, false); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("successor after reuse: got %v, want ErrTokenReused", err)
	}
	if _, err := mgr.ValidateAndGet(ctx, b.Secret, false); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("sibling after reuse: got %v, want ErrTokenReused", err)
	}
}

func TestManager_ConcurrentRotation_SingleWinner(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	const attempts = 16
	results := make(chan error, attempts)

	var start sync.WaitGroup
	start.Add(1)
	for i := 0; i < attempts; i++ {
		go func() {
			start.Wait()
			_, err := mgr.Rotate(ctx, issued.Secret)
			results <- err
		}()
	}
	start.Done()

	var wins, reused int
	for i := 0; i < attempts; i++ {
		switch err := <-results; {
		case err == nil:
			wins++
		case errors.Is(err, ErrTokenReused):
			reused++
		default:
			t.Fatalf("unexpected rotation error: %v", err)
		}
	}
	if wins != 1 {
		t.Fatalf("winners = %d, want exactly 1", wins)
	}
	if reused != attempts-1 {
		t.Fatalf("reuse failures = %d, want %d", reused, attempts-1)
	}
}

func TestManager_Revoke_Idempotent(t *testing.T) {
	t.Parallel()

	mgr, _, _ := newTestManager(t)
	ctx := context.Background()

	issued, err := mgr.Create(ctx, "user-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := mgr.Revoke(ctx, issued.Secret); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if _, err := mgr.ValidateAndGet(ctx, issued.Secret, false); !errors.Is(err, ErrTokenReused) {
		t.Fatalf("revoked secret: got %v, want ErrTokenReused", err)
	}

	// Unknown and repeated revokes are not errors (logout stays idempotent).
	if err := mgr.Revoke(ctx, issued.Secret); err != nil {
		t.Fatalf("second Revoke: %v", err)
	}
	if err := mgr.Revoke(ctx, "never-issued"); err != nil {
		t.Fatalf("Revoke unknown: %v", err)
	}
}
