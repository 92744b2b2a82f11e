// Package token implements the refresh-token lifecycle for taskboard.
//
// It issues opaque refresh secrets (stored only as hashes), rotates them on
// use with reuse detection, and signs short-lived JWT access tokens.
//
// Rotation is atomic: the predecessor is revoked and chained to its successor
// in the same storage transaction that creates the successor, so two
// concurrent rotations of the same secret can never both succeed.
package token
