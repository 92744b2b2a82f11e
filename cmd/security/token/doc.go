// Package token provides secret hashing primitives for taskboard.
//
// It is the single source of truth for refresh-token and reset-token hashing:
// only digests of opaque secrets ever reach storage, never the plaintext.
//
// Modes:
// - Default dev/back-compat mode: SHA-256(secret) when no HMAC key is configured.
// - Production-enforced mode: HMAC-SHA256(secret, key) when policy requires it.
// - Stable 64-char hex output for storage and unique-index lookups.
//
// Environment:
// - TASKBOARD_TOKEN_HMAC_KEY: when set, enables HMAC mode.
package token
