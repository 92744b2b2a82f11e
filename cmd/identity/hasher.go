package identity

import (
	"taskboard/cmd/security/password"
)

// Hasher wraps the password package with a fixed configuration so that
// hash/verify/rehash decisions are consistent across the process.
type Hasher struct {
	cfg password.Config
}

// NewHasher builds a Hasher from env-driven password configuration.
func NewHasher() (Hasher, error) {
	cfg, err := password.FromEnv()
	if err != nil {
		return Hasher{}, err
	}
	return Hasher{cfg: cfg}, nil
}

// NewHasherWithConfig builds a Hasher from an explicit configuration.
func NewHasherWithConfig(cfg password.Config) Hasher {
	return Hasher{cfg: cfg}
}

// HashPassword returns a PHC-style Argon2id hash string.
func (h Hasher) HashPassword(plain string) (string, error) {
	return h.cfg.Hash(plain)
}

// VerifyPassword checks a password against a stored hash (Argon2id or legacy bcrypt).
func (h Hasher) VerifyPassword(plain, encoded string) (bool, error) {
	return h.cfg.Verify(encoded, plain)
}

// NeedsRehash reports whether the stored hash should be upgraded after a
// successful verification (legacy algorithm or weaker parameters).
func (h Hasher) NeedsRehash(encoded string) bool {
	return h.cfg.NeedsRehash(encoded)
}
