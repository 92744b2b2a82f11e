package token

import "errors"

var (
	// ErrTokenNotFound is returned when a refresh secret does not match any record.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenExpired is returned when the record is past its expiry.
	ErrTokenExpired = errors.New("refresh token expired")

	// ErrTokenReused is returned when an already-revoked (rotated) refresh
	// secret is presented again. This is the theft/replay signal; the caller
	// should treat it as a security event, not a routine failure.
	ErrTokenReused = errors.New("refresh token reuse detected")

	// ErrSecretHashExists is returned when a record with the same secret
	// hash already exists.
	ErrSecretHashExists = errors.New("refresh token secret hash already exists")

	// ErrInvalidAccessToken is returned when an access token fails verification.
	ErrInvalidAccessToken = errors.New("invalid access token")

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
