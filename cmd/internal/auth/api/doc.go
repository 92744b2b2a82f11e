// Package authapi exposes the HTTP session boundary: login, register,
// refresh, logout, the CSRF hint endpoint and password recovery.
//
// The refresh secret travels only in an HttpOnly cookie; the access token
// only in response bodies and Authorization headers. Failures below the
// handler layer are translated exactly once, here, into the uniform error
// envelope.
package authapi
