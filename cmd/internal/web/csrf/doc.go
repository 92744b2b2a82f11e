// Package csrf guards mutating API requests against cross-site request
// forgery.
//
// The default strategy is stateless double-submit: the server publishes only
// a cookie-name hint, the browser mints the secret itself, stores it as a
// cookie named "<hint>_<secret>" with the secret as its value, and echoes the
// secret in the X-CSRF-Token header. A cross-origin attacker cannot read the
// victim's cookie jar, so it cannot learn the secret to forge the header.
//
// A second strategy validates server-signed HMAC tokens instead; the guard is
// polymorphic over the two and the strategy is chosen once at startup.
package csrf
