package app

import "errors"

// ValidateSecurityConfig enforces the production security policy at startup.
// Fail-fast: a server that would silently run with a weak signing key or
// non-Secure session cookies must not come up at all.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.StrictSecurity {
		return nil
	}

	// Measured in bytes, not runes; the key is used as raw HMAC key material.
	if len(EnvString("TASKBOARD_JWT_SECRET", "")) < 32 {
		return errors.New("security policy: TASKBOARD_STRICT_SECURITY=true but TASKBOARD_JWT_SECRET is missing or shorter than 32 bytes")
	}

	if !EnvBool("TASKBOARD_COOKIE_SECURE", false) {
		return errors.New("security policy: TASKBOARD_STRICT_SECURITY=true requires TASKBOARD_COOKIE_SECURE=true")
	}

	if EnvString("TASKBOARD_CSRF_STRATEGY", "") == "signed" &&
		len(EnvString("TASKBOARD_CSRF_SIGNING_KEY", "")) < 32 {
		return errors.New("security policy: signed CSRF strategy requires TASKBOARD_CSRF_SIGNING_KEY of at least 32 bytes")
	}

	return nil
}
