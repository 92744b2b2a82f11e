package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessClaims is the verified content of an access token.
type AccessClaims struct {
	UserID    string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// AccessTokenIssuer signs and verifies short-lived access tokens.
type AccessTokenIssuer interface {
	// Issue signs an access token for the user as of now.
	Issue(userID string, now time.Time) (token string, expiresAt time.Time, err error)

	// Verify checks signature, issuer and time claims.
	// Returns ErrInvalidAccessToken on any failure.
	Verify(token string, now time.Time) (AccessClaims, error)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
}

// JWTIssuer implements AccessTokenIssuer with HS256-signed JWTs.
type JWTIssuer struct {
	issuer string
	ttl    time.Duration
	skew   time.Duration
	key    []byte
}

// NewJWTIssuer creates an HS256 issuer from config.
func NewJWTIssuer(cfg Config) (*JWTIssuer, error) {
	if len(cfg.JWTSecret) < 32 {
		return nil, ErrConfig
	}
	if cfg.AccessTokenTTL <= 0 {
		return nil, ErrConfig
	}
	return &JWTIssuer{
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTokenTTL,
		skew:   cfg.ClockSkew,
		key:    []byte(cfg.JWTSecret),
	}, nil
}

func (i *JWTIssuer) Issue(userID string, now time.Time) (string, time.Time, error) {
	now = now.UTC()
	expiresAt := now.Add(i.ttl)

	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID: userID,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

func (i *JWTIssuer) Verify(tokenString string, now time.Time) (AccessClaims, error) {
	var claims jwtClaims

	parsed, err := jwt.ParseWithClaims(tokenString, &claims,
		func(*jwt.Token) (any, error) { return i.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(i.skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !parsed.Valid || claims.UserID == "" {
		return AccessClaims{}, ErrInvalidAccessToken
	}

	out := AccessClaims{
		UserID: claims.UserID,
		Issuer: claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
