// Package password provides password hashing and verification for taskboard.
//
// It implements Argon2id hashing using a PHC-style encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - Password policy validation
// - Strict hash decoding and verification with anti-DoS bounds
// - Rehash detection so credentials can be upgraded on successful login
//
// Legacy bcrypt hashes are still verifiable; NeedsRehash reports them so the
// caller can replace them with Argon2id transparently.
//
// Security notes:
// - Hash strings are treated as untrusted input during Verify and are validated accordingly.
// - Verification refuses hashes with parameters that exceed reasonable bounds.
package password
