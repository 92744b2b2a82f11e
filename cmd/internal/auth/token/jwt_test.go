package token

import (
	"errors"
	"testing"
	"time"
)

func testJWTConfig() Config {
	cfg := DefaultConfig()
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func TestJWTIssuer_IssueAndVerify(t *testing.T) {
	t.Parallel()

	iss, err := NewJWTIssuer(testJWTConfig())
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tok, exp, err := iss.Issue("01JZZZZZZZZZZZZZZZZZZZZZZZ", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.After(now) {
		t.Fatalf("expected exp after now")
	}

	claims, err := iss.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.UserID != "01JZZZZZZZZZZZZZZZZZZZZZZZ" {
		t.Fatalf("UserID = %q", claims.UserID)
	}
	if claims.Issuer != "taskboard" {
		t.Fatalf("Issuer = %q", claims.Issuer)
	}
	if !claims.ExpiresAt.Equal(exp) {
		t.Fatalf("ExpiresAt = %v, want %v", claims.ExpiresAt, exp)
	}
}

func TestJWTIssuer_Verify_Expired(t *testing.T) {
	t.Parallel()

	cfg := testJWTConfig()
	iss, err := NewJWTIssuer(cfg)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tok, _, err := iss.Issue("user-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	// Within skew still verifies; past skew does not.
	atEdge := now.Add(cfg.AccessTokenTTL + cfg.ClockSkew/2)
	if _, err := iss.Verify(tok, atEdge); err != nil {
		t.Fatalf("Verify within skew: %v", err)
	}

	late := now.Add(cfg.AccessTokenTTL + cfg.ClockSkew + time.Second)
	if _, err := iss.Verify(tok, late); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("got %v, want ErrInvalidAccessToken", err)
	}
}

func TestJWTIssuer_Verify_WrongKey(t *testing.T) {
	t.Parallel()

	a, err := NewJWTIssuer(testJWTConfig())
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	other := testJWTConfig()
	other.JWTSecret = "ffffffffffffffffffffffffffffffff"
	b, err := NewJWTIssuer(other)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	now := time.Now().UTC()
	tok, _, err := a.Issue("user-1", now)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if _, err := b.Verify(tok, now); !errors.Is(err, ErrInvalidAccessToken) {
		t.Fatalf("got %v, want ErrInvalidAccessToken", err)
	}
}

func TestJWTIssuer_Verify_Garbage(t *testing.T) {
	t.Parallel()

	iss, err := NewJWTIssuer(testJWTConfig())
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	for _, tok := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := iss.Verify(tok, time.Now().UTC()); !errors.Is(err, ErrInvalidAccessToken) {
			t.Fatalf("Verify(%q): got %v, want ErrInvalidAccessToken", tok, err)
		}
	}
}
