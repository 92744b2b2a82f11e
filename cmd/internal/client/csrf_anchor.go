package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
)

// Anchor is the client-held CSRF state: the server's cookie-name hint plus
// the locally minted secret. It is an explicit per-client object with a
// defined lifecycle: minted lazily on first need, cleared on a 419 response
// or logout.
type Anchor struct {
	mu     sync.Mutex
	hint   string
	secret string
}

// Secret returns the current secret, or "" when no anchor is held.
func (a *Anchor) Secret() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.secret
}

// CookieName returns the derived cookie name, or "" when no anchor is held.
func (a *Anchor) CookieName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.hint == "" || a.secret == "" {
		return ""
	}
	return a.hint + "_" + a.secret
}

// Invalidate drops the anchor so the next mutating request mints a new one.
func (a *Anchor) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hint, a.secret = "", ""
}

func (a *Anchor) set(hint, secret string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hint, a.secret = hint, secret
}

func (a *Anchor) held() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hint != "" && a.secret != ""
}

// ensureAnchor mints the anchor if none is held: fetch the hint, generate
// the secret locally and plant the derived cookie in the jar, mirroring what
// the browser client does with document.cookie.
func (c *Client) ensureAnchor(ctx context.Context) error {
	if c.anchor.held() {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/csrf", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: fetch csrf hint: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: fetch csrf hint: status %d", resp.StatusCode)
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := decodeInto(resp.Body, &body); err != nil || body.Token == "" {
		return fmt.Errorf("client: bad csrf hint response")
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Errorf("client: mint csrf secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)
	c.anchor.set(body.Token, secret)

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return err
	}
	c.http.Jar.SetCookies(u, []*http.Cookie{{
		Name:  body.Token + "_" + secret,
		Value: secret,
		Path:  "/",
	}})
	return nil
}
