package tasks

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taskboard/cmd/identity"
	authapi "taskboard/cmd/internal/auth/api"
	"taskboard/cmd/internal/auth/token"
	"taskboard/cmd/internal/web/csrf"
	"taskboard/cmd/security/password"
)

// session is an authenticated browser context for tests: an access token plus
// client-minted CSRF state.
type session struct {
	accessToken string
	csrfSecret  string
	csrfCookie  *http.Cookie
}

type stack struct {
	server *httptest.Server
	store  *MemoryStore
}

func newStack(t *testing.T) *stack {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tokenCfg := token.DefaultConfig()
	tokenCfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	mgr, err := token.NewManager(tokenCfg, token.NewMemoryStore(), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	issuer, err := token.NewJWTIssuer(tokenCfg)
	if err != nil {
		t.Fatalf("NewJWTIssuer: %v", err)
	}

	guardCfg := csrf.DefaultConfig()
	guard, err := csrf.NewGuard(guardCfg, csrf.NewDoubleSubmitStrategy(guardCfg), logger)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	pwCfg := password.DefaultConfig()
	pwCfg.Params.MemoryKiB = 8 * 1024
	pwCfg.Params.Iterations = 1
	pwCfg.Params.Parallelism = 1

	authCfg := authapi.Config{
		MaxBodyBytes:      1 << 20,
		RefreshCookieName: "refresh_token",
		CookiePath:        "/",
		PasswordResetTTL:  time.Hour,
	}
	auth, err := authapi.NewHandler(logger, authCfg, identity.NewMemoryStore(),
		identity.NewHasherWithConfig(pwCfg), mgr, issuer, guard)
	if err != nil {
		t.Fatalf("NewHandler(auth): %v", err)
	}

	store := NewMemoryStore()
	th, err := NewHandler(logger, store, auth)
	if err != nil {
		t.Fatalf("NewHandler(tasks): %v", err)
	}

	mux := http.NewServeMux()
	auth.Register(mux)
	th.Register(mux)
	srv := httptest.NewServer(guard.Middleware(mux))
	t.Cleanup(srv.Close)

	return &stack{server: srv, store: store}
}

func (s *stack) login(t *testing.T, email string) session {
	t.Helper()

	do := func(path string, body any) *http.Response {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
		resp, err := s.server.Client().Post(s.server.URL+path, "application/json", &buf)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		return resp
	}

	resp := do("/api/register", map[string]string{
		"email": email, "name": "Test User", "password": "correct horse battery",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register: status %d", resp.StatusCode)
	}

	resp = do("/api/login", map[string]string{
		"email": email, "password": "correct horse battery",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	var env struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	// Derive the browser-side CSRF state from the hint, the way the web
	// client does it.
	hintResp, err := s.server.Client().Get(s.server.URL + "/api/csrf")
	if err != nil {
		t.Fatalf("GET /api/csrf: %v", err)
	}
	defer hintResp.Body.Close()
	var hint struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(hintResp.Body).Decode(&hint); err != nil {
		t.Fatalf("decode hint: %v", err)
	}

	secret := "dGVzdC1zZWNyZXQtZm9yLSId" + email[:1]
	return session{
		accessToken: env.Token,
		csrfSecret:  secret,
		csrfCookie:  &http.Cookie{Name: hint.Token + "_" + secret, Value: secret},
	}
}

func (s *stack) request(t *testing.T, sess session, method, path string, body any, withCSRF bool) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, s.server.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+sess.accessToken)
	if withCSRF {
		req.AddCookie(sess.csrfCookie)
		req.Header.Set("X-CSRF-Token", sess.csrfSecret)
	}
	resp, err := s.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func createTask(t *testing.T, s *stack, sess session, title string) taskResponse {
	t.Helper()

	resp := s.request(t, sess, http.MethodPost, "/api/tasks", map[string]string{"title": title}, true)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create task: status %d", resp.StatusCode)
	}
	var out taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return out
}

func TestTasks_CSRFRoundTrip(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	sess := s.login(t, "ada@example.test")

	// With the derived cookie/header pair the mutation is accepted.
	created := createTask(t, s, sess, "write report")
	if created.Status != "todo" || created.Priority != "medium" {
		t.Fatalf("task defaults: %+v", created)
	}

	// Same request with a mismatched header is rejected with 419.
	bad := sess
	bad.csrfSecret = "a-completely-different-value"
	resp := s.request(t, bad, http.MethodPost, "/api/tasks", map[string]string{"title": "x"}, true)
	resp.Body.Close()
	if resp.StatusCode != csrf.StatusRejected {
		t.Fatalf("mismatched csrf: status %d, want %d", resp.StatusCode, csrf.StatusRejected)
	}

	// And with no CSRF state at all.
	resp = s.request(t, sess, http.MethodPost, "/api/tasks", map[string]string{"title": "x"}, false)
	resp.Body.Close()
	if resp.StatusCode != csrf.StatusRejected {
		t.Fatalf("missing csrf: status %d, want %d", resp.StatusCode, csrf.StatusRejected)
	}
}

func TestTasks_CRUD(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	sess := s.login(t, "ada@example.test")

	created := createTask(t, s, sess, "write report")

	// Update status and priority.
	resp := s.request(t, sess, http.MethodPatch, "/api/tasks/"+created.ID, map[string]string{
		"status": "in_progress", "priority": "high",
	}, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: status %d", resp.StatusCode)
	}
	var updated taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if updated.Status != "in_progress" || updated.Priority != "high" {
		t.Fatalf("update result: %+v", updated)
	}

	// Unknown enum values are rejected.
	resp = s.request(t, sess, http.MethodPatch, "/api/tasks/"+created.ID, map[string]string{
		"status": "completed",
	}, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad status value: status %d", resp.StatusCode)
	}

	// Archived tasks drop out of the default listing.
	resp = s.request(t, sess, http.MethodPatch, "/api/tasks/"+created.ID, map[string]string{
		"status": "archived",
	}, true)
	resp.Body.Close()

	resp = s.request(t, sess, http.MethodGet, "/api/tasks", nil, false)
	var list taskListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(list.Tasks) != 0 {
		t.Fatalf("default list includes archived: %+v", list.Tasks)
	}

	resp = s.request(t, sess, http.MethodGet, "/api/tasks?status=archived", nil, false)
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(list.Tasks) != 1 {
		t.Fatalf("archived filter: %+v", list.Tasks)
	}

	// Delete.
	resp = s.request(t, sess, http.MethodDelete, "/api/tasks/"+created.ID, nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("delete: status %d", resp.StatusCode)
	}
	resp = s.request(t, sess, http.MethodGet, "/api/tasks/"+created.ID, nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("get after delete: status %d", resp.StatusCode)
	}
}

func TestTasks_OwnerScoped(t *testing.T) {
	t.Parallel()

	s := newStack(t)
	ada := s.login(t, "ada@example.test")
	bob := s.login(t, "bob@example.test")

	created := createTask(t, s, ada, "private task")

	// Another user cannot see, update or delete it; the response is the same
	// 404 as for a task that does not exist.
	resp := s.request(t, bob, http.MethodGet, "/api/tasks/"+created.ID, nil, false)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-owner get: status %d, want 404", resp.StatusCode)
	}
	resp = s.request(t, bob, http.MethodDelete, "/api/tasks/"+created.ID, nil, true)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("cross-owner delete: status %d, want 404", resp.StatusCode)
	}

	resp = s.request(t, bob, http.MethodGet, "/api/tasks", nil, false)
	var list taskListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	resp.Body.Close()
	if len(list.Tasks) != 0 {
		t.Fatalf("cross-owner list: %+v", list.Tasks)
	}
}

func TestTasks_RequireAuth(t *testing.T) {
	t.Parallel()

	s := newStack(t)

	resp, err := s.server.Client().Get(s.server.URL + "/api/tasks")
	if err != nil {
		t.Fatalf("GET /api/tasks: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("unauthenticated list: status %d, want 401", resp.StatusCode)
	}
}
