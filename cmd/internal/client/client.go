package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnauthenticated is terminal: the retry budget for 401 is spent and
	// the caller should treat the session as ended.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrCSRFRejected is terminal: a replay after anchor renewal was
	// rejected again.
	ErrCSRFRejected = errors.New("csrf rejected")
)

const statusCSRFRejected = 419

// Client is the authenticated API transport.
type Client struct {
	baseURL string
	http    *http.Client
	anchor  *Anchor

	mu          sync.Mutex
	accessToken string

	refreshFlight singleflight.Group
	getFlight     singleflight.Group
}

// New creates a Client for baseURL. The underlying transport carries a
// cookie jar; the refresh token never surfaces to callers.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Jar: jar, Timeout: 30 * time.Second},
		anchor:  &Anchor{},
	}, nil
}

// Session is the login/refresh envelope exposed to callers. It mirrors UI
// state and is not a security boundary.
type Session struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresIn int64     `json:"expires_in"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
	User      User      `json:"user"`
}

// User is the principal as presented by the API.
type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	Roles  []string `json:"roles"`
	Active bool     `json:"active"`
}

// APIError is a non-2xx response decoded from the uniform error envelope.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Login authenticates and stores the access token for subsequent requests.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var sess Session
	if err := c.postJSON(ctx, "/api/login", map[string]string{
		"email": email, "password": password,
	}, &sess); err != nil {
		return Session{}, err
	}
	c.setAccessToken(sess.Token)
	return sess, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, email, name, password string) error {
	return c.postJSON(ctx, "/api/register", map[string]string{
		"email": email, "name": name, "password": password,
	}, nil)
}

// Refresh rotates the refresh cookie and replaces the access token.
// Concurrent callers coalesce into one refresh request.
func (c *Client) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshFlight.Do("refresh", func() (any, error) {
		var sess Session
		if err := c.postJSON(ctx, "/api/auth/token/refresh", nil, &sess); err != nil {
			return nil, err
		}
		c.setAccessToken(sess.Token)
		return nil, nil
	})
	return err
}

// Logout revokes the refresh chain, then clears all client-held auth state
// regardless of the server's answer.
func (c *Client) Logout(ctx context.Context) error {
	err := c.postJSON(ctx, "/api/auth/logout", nil, nil)
	c.setAccessToken("")
	c.anchor.Invalidate()
	return err
}

// Get fetches path?query and decodes into out. Identical concurrent calls
// (same fingerprint) coalesce into a single network request whose result is
// shared by every caller.
func (c *Client) Get(ctx context.Context, path, rawQuery string, out any) error {
	fp := fingerprint(path, rawQuery)
	raw, err, _ := c.getFlight.Do(fp, func() (any, error) {
		target := path
		if rawQuery != "" {
			target += "?" + rawQuery
		}
		body, err := c.do(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw.(json.RawMessage), out)
}

// Post sends a mutating request with CSRF proof and decodes into out.
func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.mutate(ctx, http.MethodPost, path, in, out)
}

// Patch sends a partial update with CSRF proof and decodes into out.
func (c *Client) Patch(ctx context.Context, path string, in, out any) error {
	return c.mutate(ctx, http.MethodPatch, path, in, out)
}

// Delete sends a delete with CSRF proof.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.mutate(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) mutate(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	raw, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// do runs one logical request with the bounded retry contract: at most one
// replay after a silent refresh (401) or anchor renewal (419); a second
// failure of the same kind is terminal.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (json.RawMessage, error) {
	retried401 := false
	retried419 := false

	for {
		raw, status, err := c.roundTrip(ctx, method, path, body)
		if err != nil {
			return nil, err
		}

		switch {
		case status == http.StatusUnauthorized:
			if retried401 {
				c.setAccessToken("")
				return nil, ErrUnauthenticated
			}
			retried401 = true
			if err := c.Refresh(ctx); err != nil {
				c.setAccessToken("")
				return nil, ErrUnauthenticated
			}
			continue

		case status == statusCSRFRejected:
			if retried419 {
				return nil, ErrCSRFRejected
			}
			retried419 = true
			c.anchor.Invalidate()
			continue

		case status >= 400:
			return nil, decodeAPIError(status, raw)
		}
		return raw, nil
	}
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) (json.RawMessage, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.getAccessToken(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	if isMutating(method) && !isExemptPath(path) {
		if err := c.ensureAnchor(ctx); err != nil {
			return nil, 0, err
		}
		req.Header.Set("X-CSRF-Token", c.anchor.Secret())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	raw, status, err := c.roundTrip(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeAPIError(status, raw)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

func (c *Client) setAccessToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = tok
}

func (c *Client) getAccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// isExemptPath mirrors the server's CSRF allow-list; no anchor is minted for
// endpoints that must work before any CSRF state exists.
func isExemptPath(path string) bool {
	switch path {
	case "/api/login", "/api/register",
		"/api/auth/token/refresh", "/api/auth/logout",
		"/api/auth/password/forgot", "/api/auth/password/reset":
		return true
	}
	return false
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

func fingerprint(path, rawQuery string) string {
	return path + "?" + rawQuery
}

func decodeAPIError(status int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	_ = json.Unmarshal(raw, &body)
	if body.Error == "" {
		body.Error = http.StatusText(status)
	}
	return &APIError{Status: status, Message: body.Error}
}

func decodeInto(r io.Reader, dst any) error {
	return json.NewDecoder(io.LimitReader(r, 1<<20)).Decode(dst)
}
