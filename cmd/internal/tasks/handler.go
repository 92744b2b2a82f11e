package tasks

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	authapi "taskboard/cmd/internal/auth/api"
)

// Handler exposes the guarded task CRUD surface.
type Handler struct {
	log   *slog.Logger
	store Store
	auth  *authapi.Handler
	now   func() time.Time

	maxBodyBytes int64
}

// NewHandler constructs the task Handler.
func NewHandler(log *slog.Logger, store Store, auth *authapi.Handler) (*Handler, error) {
	if store == nil || auth == nil {
		return nil, errors.New("tasks: missing dependency")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		log:          log,
		store:        store,
		auth:         auth,
		now:          time.Now,
		maxBodyBytes: 1 << 20,
	}, nil
}

// Register wires the task routes onto the provided mux. Every route requires
// a valid access token.
func (h *Handler) Register(mux *http.ServeMux) {
	guard := func(fn http.HandlerFunc) http.Handler { return h.auth.RequireAuth(fn) }

	mux.Handle("GET /api/tasks", guard(h.handleList))
	mux.Handle("POST /api/tasks", guard(h.handleCreate))
	mux.Handle("GET /api/tasks/{id}", guard(h.handleGet))
	mux.Handle("PATCH /api/tasks/{id}", guard(h.handleUpdate))
	mux.Handle("DELETE /api/tasks/{id}", guard(h.handleDelete))
}

type taskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	DueAt       *string `json:"due_at"`
}

type taskResponse struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Priority    string     `json:"priority"`
	DueAt       *time.Time `json:"due_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type taskListResponse struct {
	Tasks []taskResponse `json:"tasks"`
}

func toTaskResponse(t Task) taskResponse {
	return taskResponse{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		DueAt:       t.DueAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := authapi.UserIDFromContext(r.Context())

	f := ListFilter{OwnerID: ownerID, Search: r.URL.Query().Get("q")}
	if v := r.URL.Query().Get("status"); v != "" {
		st := Status(v)
		if !st.Valid() {
			writeTaskError(w, http.StatusBadRequest, "unknown status")
			return
		}
		f.Status = &st
	}
	if v := r.URL.Query().Get("priority"); v != "" {
		p := Priority(v)
		if !p.Valid() {
			writeTaskError(w, http.StatusBadRequest, "unknown priority")
			return
		}
		f.Priority = &p
	}

	list, err := h.store.List(r.Context(), f)
	if err != nil {
		h.log.Error("tasks.list.fail", "err", err)
		writeTaskError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]taskResponse, 0, len(list))
	for _, t := range list {
		out = append(out, toTaskResponse(t))
	}
	writeTaskJSON(w, http.StatusOK, taskListResponse{Tasks: out})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := authapi.UserIDFromContext(r.Context())

	var req taskRequest
	if err := decodeTaskJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeTaskError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		writeTaskError(w, http.StatusBadRequest, "title is required")
		return
	}

	in := CreateTaskInput{
		OwnerID:  ownerID,
		Title:    strings.TrimSpace(*req.Title),
		Priority: PriorityMedium,
		Now:      h.now().UTC(),
	}
	if req.Description != nil {
		in.Description = *req.Description
	}
	if req.Priority != nil {
		p := Priority(*req.Priority)
		if !p.Valid() {
			writeTaskError(w, http.StatusBadRequest, "unknown priority")
			return
		}
		in.Priority = p
	}
	if req.DueAt != nil {
		due, err := time.Parse(time.RFC3339, *req.DueAt)
		if err != nil {
			writeTaskError(w, http.StatusBadRequest, "due_at must be RFC 3339")
			return
		}
		in.DueAt = &due
	}

	t, err := h.store.Create(r.Context(), in)
	if err != nil {
		h.log.Error("tasks.create.fail", "err", err)
		writeTaskError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeTaskJSON(w, http.StatusCreated, toTaskResponse(t))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := authapi.UserIDFromContext(r.Context())

	t, err := h.store.Get(r.Context(), ownerID, r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, err, "tasks.get.fail")
		return
	}
	writeTaskJSON(w, http.StatusOK, toTaskResponse(t))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := authapi.UserIDFromContext(r.Context())

	var req taskRequest
	if err := decodeTaskJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeTaskError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := UpdateTaskInput{
		OwnerID: ownerID,
		ID:      r.PathValue("id"),
		Now:     h.now().UTC(),
	}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			writeTaskError(w, http.StatusBadRequest, "title must not be empty")
			return
		}
		in.Title = &title
	}
	in.Description = req.Description
	if req.Status != nil {
		st := Status(*req.Status)
		if !st.Valid() {
			writeTaskError(w, http.StatusBadRequest, "unknown status")
			return
		}
		in.Status = &st
	}
	if req.Priority != nil {
		p := Priority(*req.Priority)
		if !p.Valid() {
			writeTaskError(w, http.StatusBadRequest, "unknown priority")
			return
		}
		in.Priority = &p
	}
	if req.DueAt != nil {
		if *req.DueAt == "" {
			in.ClearDueAt = true
		} else {
			due, err := time.Parse(time.RFC3339, *req.DueAt)
			if err != nil {
				writeTaskError(w, http.StatusBadRequest, "due_at must be RFC 3339")
				return
			}
			in.DueAt = &due
		}
	}

	t, err := h.store.Update(r.Context(), in)
	if err != nil {
		h.writeStoreError(w, err, "tasks.update.fail")
		return
	}
	writeTaskJSON(w, http.StatusOK, toTaskResponse(t))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, _ := authapi.UserIDFromContext(r.Context())

	if err := h.store.Delete(r.Context(), ownerID, r.PathValue("id")); err != nil {
		h.writeStoreError(w, err, "tasks.delete.fail")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error, event string) {
	if errors.Is(err, ErrNotFound) {
		writeTaskError(w, http.StatusNotFound, "task not found")
		return
	}
	h.log.Error(event, "err", err)
	writeTaskError(w, http.StatusInternalServerError, "internal error")
}

func writeTaskJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeTaskError(w http.ResponseWriter, status int, msg string) {
	writeTaskJSON(w, status, map[string]any{"error": msg, "code": status})
}

func decodeTaskJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
