package csrf

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// StatusRejected is the non-standard status code used for CSRF failures, so
// clients can distinguish them from 401 and re-mint their anchor instead of
// refreshing credentials.
const StatusRejected = 419

// Guard wraps an http.Handler and rejects mutating API requests that fail
// CSRF validation.
type Guard struct {
	cfg      Config
	strategy Strategy
	logger   *slog.Logger
	now      func() time.Time
	exempt   map[string]struct{}
}

// NewGuard creates a Guard. A nil logger falls back to slog.Default and a
// nil now to time.Now.
func NewGuard(cfg Config, strategy Strategy, logger *slog.Logger) (*Guard, error) {
	if strategy == nil {
		return nil, ErrConfig
	}
	if logger == nil {
		logger = slog.Default()
	}
	exempt := make(map[string]struct{}, len(cfg.ExemptPaths))
	for _, p := range cfg.ExemptPaths {
		exempt[p] = struct{}{}
	}
	return &Guard{
		cfg:      cfg,
		strategy: strategy,
		logger:   logger,
		now:      time.Now,
		exempt:   exempt,
	}, nil
}

// IssueToken returns the value the hint endpoint serves.
func (g *Guard) IssueToken() (string, error) {
	return g.strategy.IssueToken(g.now())
}

// Middleware returns the guarding wrapper for next.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.requiresProof(r) {
			next.ServeHTTP(w, r)
			return
		}
		if !g.strategy.Validate(r, g.now()) {
			g.logger.Warn("csrf rejected",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
			)
			writeRejected(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *Guard) requiresProof(r *http.Request) bool {
	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return false
	}
	path := r.URL.Path
	if !strings.HasPrefix(path, g.cfg.APIPrefix) {
		return false
	}
	if _, ok := g.exempt[strings.TrimSuffix(path, "/")]; ok {
		return false
	}
	return true
}

func writeRejected(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(StatusRejected)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": "CSRF token rejected",
		"code":  StatusRejected,
	})
}
