// Package client is the browser-equivalent request layer for taskboard's
// API: it attaches the access token and CSRF proof, coalesces identical
// in-flight fetches, debounces rapid query changes to a single trailing
// execution, discards stale out-of-order responses, and transparently
// retries exactly once after a silent token refresh (401) or CSRF anchor
// renewal (419).
package client
