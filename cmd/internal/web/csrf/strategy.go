package csrf

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"net/http"
	"strings"
	"time"

	sectoken "taskboard/cmd/security/token"
)

// Strategy validates the CSRF proof on a mutating request and mints whatever
// the hint endpoint hands to clients: the cookie-name hint for double-submit,
// a complete signed token for the signed variant.
type Strategy interface {
	// IssueToken returns the value served by GET /api/csrf.
	IssueToken(now time.Time) (string, error)

	// Validate reports whether the request carries acceptable CSRF proof.
	Validate(r *http.Request, now time.Time) bool
}

// DoubleSubmitStrategy implements stateless double-submit validation.
//
// The expected cookie name is derived from the header value, never the other
// way around, so stale cookies from previous sessions cannot cause a false
// accept: only the cookie named for the exact secret in the header counts.
type DoubleSubmitStrategy struct {
	hintName   string
	headerName string
}

// NewDoubleSubmitStrategy creates the double-submit validator.
func NewDoubleSubmitStrategy(cfg Config) *DoubleSubmitStrategy {
	return &DoubleSubmitStrategy{hintName: cfg.HintName, headerName: cfg.HeaderName}
}

func (s *DoubleSubmitStrategy) IssueToken(time.Time) (string, error) {
	return s.hintName, nil
}

func (s *DoubleSubmitStrategy) Validate(r *http.Request, _ time.Time) bool {
	hv := strings.TrimSpace(r.Header.Get(s.headerName))
	if hv == "" {
		return false
	}

	name := s.hintName + "_" + hv
	c, err := r.Cookie(name)
	if err != nil {
		// Under HTTPS the client may have set the host-locked variant.
		c, err = r.Cookie("__Host-" + name)
	}
	if err != nil {
		return false
	}

	cv := strings.TrimSpace(c.Value)
	if cv == "" {
		return false
	}
	return secureStringEqual(cv, hv)
}

// SignedTokenStrategy validates server-minted HMAC tokens carried in the
// header alone. Tokens are "payload.signature" where payload is base64url
// nonce plus mint time, and signature is HMAC-SHA256 over the payload.
type SignedTokenStrategy struct {
	key        []byte
	headerName string
	maxAge     time.Duration
}

// NewSignedTokenStrategy creates the signed-token validator.
func NewSignedTokenStrategy(cfg Config) (*SignedTokenStrategy, error) {
	if len(cfg.SigningKey) < 32 {
		return nil, ErrConfig
	}
	return &SignedTokenStrategy{
		key:        []byte(cfg.SigningKey),
		headerName: cfg.HeaderName,
		maxAge:     12 * time.Hour,
	}, nil
}

func (s *SignedTokenStrategy) IssueToken(now time.Time) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf[:16]); err != nil {
		return "", fmt.Errorf("csrf: mint token: %w", err)
	}
	binary.BigEndian.PutUint64(buf[16:], uint64(now.UTC().Unix()))

	payload := base64.RawURLEncoding.EncodeToString(buf)
	return payload + "." + sectoken.HashHMACSHA256Hex(payload, s.key), nil
}

func (s *SignedTokenStrategy) Validate(r *http.Request, now time.Time) bool {
	hv := strings.TrimSpace(r.Header.Get(s.headerName))
	payload, sig, ok := strings.Cut(hv, ".")
	if !ok || payload == "" {
		return false
	}
	if !secureStringEqual(sig, sectoken.HashHMACSHA256Hex(payload, s.key)) {
		return false
	}

	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil || len(raw) != 24 {
		return false
	}
	minted := time.Unix(int64(binary.BigEndian.Uint64(raw[16:])), 0)
	age := now.UTC().Sub(minted)
	return age >= 0 && age <= s.maxAge
}

// NewStrategy builds the configured strategy.
func NewStrategy(cfg Config) (Strategy, error) {
	switch cfg.Strategy {
	case StrategyDoubleSubmit:
		return NewDoubleSubmitStrategy(cfg), nil
	case StrategySigned:
		return NewSignedTokenStrategy(cfg)
	default:
		return nil, ErrConfig
	}
}

func secureStringEqual(a, b string) bool {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
