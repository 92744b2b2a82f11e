package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"taskboard/cmd/identity"
	"taskboard/cmd/internal/auth/token"
	"taskboard/cmd/internal/web/csrf"
	"taskboard/cmd/security/password"
)

type contextKey string

const userIDKey contextKey = "authapi.userID"

// UserIDFromContext returns the authenticated user's ID set by RequireAuth.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok
}

// Handler wires the HTTP session boundary to identity and token services.
type Handler struct {
	log *slog.Logger
	cfg Config

	users  identity.Store
	hasher identity.Hasher
	tokens *token.Manager
	access token.AccessTokenIssuer
	guard  *csrf.Guard

	limiter *LoginLimiter
	resets  ResetStore
	mailer  EmailSender

	dummyHash string
	now       func() time.Time
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithLoginLimiter enables the Redis login throttle.
func WithLoginLimiter(l *LoginLimiter) HandlerOption {
	return func(h *Handler) { h.limiter = l }
}

// WithEmailSender overrides the default no-op password-reset mailer.
func WithEmailSender(sender EmailSender) HandlerOption {
	return func(h *Handler) {
		if sender != nil {
			h.mailer = sender
		}
	}
}

// WithResetStore overrides the default in-memory reset store.
func WithResetStore(store ResetStore) HandlerOption {
	return func(h *Handler) {
		if store != nil {
			h.resets = store
		}
	}
}

// WithClock overrides the handler clock.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler constructs the auth Handler.
func NewHandler(
	log *slog.Logger,
	cfg Config,
	users identity.Store,
	hasher identity.Hasher,
	tokens *token.Manager,
	access token.AccessTokenIssuer,
	guard *csrf.Guard,
	opts ...HandlerOption,
) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if users == nil || tokens == nil || access == nil || guard == nil {
		return nil, errors.New("authapi: missing dependency")
	}

	h := &Handler{
		log:    log,
		cfg:    cfg,
		users:  users,
		hasher: hasher,
		tokens: tokens,
		access: access,
		guard:  guard,
		resets: NewMemoryResetStore(),
		mailer: NoopEmailSender{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}

	// Dummy hash for timing-resistant login checks against unknown emails.
	if hash, err := hasher.HashPassword("dummy-password-for-timing-only"); err == nil {
		h.dummyHash = hash
	}
	return h, nil
}

// Register wires the auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("POST /api/register", h.handleRegister)
	mux.HandleFunc("POST /api/auth/token/refresh", h.handleRefresh)
	mux.HandleFunc("POST /api/auth/logout", h.handleLogout)
	mux.HandleFunc("POST /api/auth/password/forgot", h.handleForgotPassword)
	mux.HandleFunc("POST /api/auth/password/reset", h.handleResetPassword)
	mux.HandleFunc("GET /api/csrf", h.handleCSRF)
	mux.HandleFunc("GET /api/me", h.handleMe)
}

// RequireAuth verifies the Bearer access token and injects the user ID into
// the request context.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := h.verifyBearer(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) verifyBearer(r *http.Request) (token.AccessClaims, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return token.AccessClaims{}, false
	}
	claims, err := h.access.Verify(strings.TrimSpace(auth[len(prefix):]), h.now().UTC())
	if err != nil {
		return token.AccessClaims{}, false
	}
	return claims, true
}

// ---- handlers ----

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()
	ip := clientIP(r, h.cfg.TrustProxy)

	if err := h.limiter.Enforce(ctx, ip); err != nil {
		if errors.Is(err, errLoginRateLimited) {
			writeRateLimited(w, h.limiter.RetryAfter())
			return
		}
		h.log.Error("auth.login.throttle.fail", "err", err)
		writeError(w, http.StatusServiceUnavailable, "please retry later")
		return
	}

	ua, err := h.users.GetUserAuthByEmail(ctx, email)
	if err != nil {
		// Timing resistance: run a dummy verify when the user is missing so
		// unknown and known emails cost the same.
		if h.dummyHash != "" {
			_, _ = h.hasher.VerifyPassword(req.Password, h.dummyHash)
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	okPw, err := h.hasher.VerifyPassword(req.Password, ua.PasswordHash)
	if err != nil || !okPw {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if !ua.User.Active {
		writeError(w, http.StatusForbidden, "account disabled")
		return
	}

	// Transparent credential upgrade when hashing parameters have moved.
	if h.hasher.NeedsRehash(ua.PasswordHash) {
		if newHash, err := h.hasher.HashPassword(req.Password); err == nil {
			if err := h.users.UpdatePasswordHash(ctx, ua.User.ID, newHash, now); err != nil {
				h.log.Warn("auth.login.rehash.fail", "err", err)
			}
		}
	}

	issued, err := h.tokens.Create(ctx, ua.User.ID)
	if err != nil {
		h.log.Error("auth.login.issue_refresh.fail", "err", err)
		h.writeInternal(w, err)
		return
	}

	h.log.Info("auth.login.success", "user_id", ua.User.ID)
	h.setRefreshCookie(w, issued.Secret, issued.Record.ExpiresAt)
	h.writeSessionEnvelope(w, http.StatusOK, ua.User, now)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := map[string]string{}
	email := strings.TrimSpace(req.Email)
	name := strings.TrimSpace(req.Name)
	if _, err := mail.ParseAddress(email); email == "" || err != nil {
		fields["email"] = "a valid email address is required"
	}
	if name == "" {
		fields["name"] = "name is required"
	}
	if len(fields) > 0 {
		writeErrorExtra(w, http.StatusBadRequest, "validation failed", map[string]any{"fields": fields})
		return
	}

	hash, err := h.hasher.HashPassword(req.Password)
	if err != nil {
		if isPasswordPolicyViolation(err) {
			writeErrorExtra(w, http.StatusBadRequest, "validation failed", map[string]any{
				"fields": map[string]string{"password": err.Error()},
			})
			return
		}
		h.log.Error("auth.register.hash.fail", "err", err)
		h.writeInternal(w, err)
		return
	}

	ctx := r.Context()
	now := h.now().UTC()

	u, err := h.users.CreateUser(ctx, identity.CreateUserInput{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Now:          now,
	})
	if err != nil {
		if identity.IsConflict(err) {
			writeError(w, http.StatusConflict, "email is already registered")
			return
		}
		h.log.Error("auth.register.create.fail", "err", err)
		h.writeInternal(w, err)
		return
	}

	h.log.Info("auth.register.success", "user_id", u.ID)
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserResponse(u)})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	secret, ok := h.refreshSecretFromCookie(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "refresh invalid")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()

	issued, err := h.tokens.Rotate(ctx, secret)
	if err != nil {
		// The client sees one undifferentiated 401; the log keeps the
		// distinction for incident response.
		switch {
		case errors.Is(err, token.ErrTokenReused):
			h.log.Warn("auth.refresh.reuse_detected")
		case errors.Is(err, token.ErrTokenExpired):
			h.log.Info("auth.refresh.expired")
		case errors.Is(err, token.ErrTokenNotFound):
			h.log.Info("auth.refresh.unknown_secret")
		default:
			h.log.Error("auth.refresh.fail", "err", err)
			h.writeInternal(w, err)
			return
		}
		h.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "refresh invalid")
		return
	}

	u, err := h.users.GetUserByID(ctx, issued.Record.UserID)
	if err != nil {
		h.log.Error("auth.refresh.load_user.fail", "err", err)
		h.clearRefreshCookie(w)
		writeError(w, http.StatusUnauthorized, "refresh invalid")
		return
	}

	h.setRefreshCookie(w, issued.Secret, issued.Record.ExpiresAt)
	h.writeSessionEnvelope(w, http.StatusOK, u, now)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	// The cookie is cleared no matter what; revocation is best-effort and a
	// missing or unknown secret is not an error.
	if secret, ok := h.refreshSecretFromCookie(r); ok {
		if err := h.tokens.Revoke(r.Context(), secret); err != nil {
			h.log.Warn("auth.logout.revoke.fail", "err", err)
		}
	}
	h.clearRefreshCookie(w)
	w.Header().Set("Clear-Site-Data", `"cookies"`)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logout ok"})
}

func (h *Handler) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ctx := r.Context()
	now := h.now().UTC()

	// The response never reveals whether the email exists.
	ua, err := h.users.GetUserAuthByEmail(ctx, strings.TrimSpace(req.Email))
	if err == nil {
		plain, tokenErr := newResetToken()
		if tokenErr == nil {
			rec := newResetRecord(ua.User.ID, plain, now, h.cfg.PasswordResetTTL)
			if err := h.resets.CreateReset(ctx, rec); err != nil {
				h.log.Error("auth.password.forgot.store.fail", "err", err)
			} else if err := h.mailer.SendPasswordReset(ctx, PasswordResetEmail{
				Email: ua.User.Email,
				Name:  ua.User.Name,
				Token: plain,
			}); err != nil {
				h.log.Error("auth.password.forgot.mail.fail", "err", err)
			}
		}
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "if the address is registered, a reset link has been sent",
	})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	hash, err := h.hasher.HashPassword(req.Password)
	if err != nil {
		if isPasswordPolicyViolation(err) {
			writeErrorExtra(w, http.StatusBadRequest, "validation failed", map[string]any{
				"fields": map[string]string{"password": err.Error()},
			})
			return
		}
		h.writeInternal(w, err)
		return
	}

	ctx := r.Context()
	now := h.now().UTC()

	rec, err := h.resets.ConsumeReset(ctx, now, hashResetToken(req.Token))
	if err != nil {
		if errors.Is(err, errResetInvalid) {
			writeError(w, http.StatusBadRequest, "reset token is invalid or expired")
			return
		}
		h.writeInternal(w, err)
		return
	}

	if err := h.users.UpdatePasswordHash(ctx, rec.UserID, hash, now); err != nil {
		h.log.Error("auth.password.reset.update.fail", "err", err)
		h.writeInternal(w, err)
		return
	}

	// A reset invalidates every outstanding refresh token for the account.
	if err := h.tokens.RevokeAllForUser(ctx, rec.UserID); err != nil {
		h.log.Warn("auth.password.reset.revoke.fail", "err", err)
	}

	h.log.Info("auth.password.reset.success", "user_id", rec.UserID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

func (h *Handler) handleCSRF(w http.ResponseWriter, r *http.Request) {
	tok, err := h.guard.IssueToken()
	if err != nil {
		h.writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, csrfResponse{Token: tok})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, ok := h.verifyBearer(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated")
		return
	}

	u, err := h.users.GetUserByID(r.Context(), claims.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			writeError(w, http.StatusUnauthorized, "unauthenticated")
			return
		}
		h.writeInternal(w, err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: toUserResponse(u)})
}

// ---- helpers ----

func isPasswordPolicyViolation(err error) bool {
	return errors.Is(err, password.ErrPasswordTooShort) || errors.Is(err, password.ErrPasswordTooLong)
}

func (h *Handler) writeSessionEnvelope(w http.ResponseWriter, status int, u identity.User, now time.Time) {
	access, exp, err := h.access.Issue(u.ID, now)
	if err != nil {
		h.log.Error("auth.issue_access.fail", "err", err)
		h.writeInternal(w, err)
		return
	}
	writeJSON(w, status, sessionEnvelope{
		Token:     access,
		TokenType: "Bearer",
		ExpiresIn: int64(exp.Sub(now).Seconds()),
		IssuedAt:  now,
		ExpiresAt: exp,
		User:      toUserResponse(u),
	})
}

func (h *Handler) writeInternal(w http.ResponseWriter, err error) {
	if h.cfg.DebugErrors && err != nil {
		writeErrorExtra(w, http.StatusInternalServerError, "internal error", map[string]any{
			"detail": err.Error(),
		})
		return
	}
	writeError(w, http.StatusInternalServerError, "internal error")
}
