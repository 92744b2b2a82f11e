// Package identity implements taskboard's user store and credential checks.
//
// It owns the users table, email canonicalization, and password hashing
// (delegated to cmd/security/password), and is consumed by the auth HTTP layer.
//
// This package is intentionally dependency-light and security-first.
package identity
