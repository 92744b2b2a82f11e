package tasks

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for development mode and tests.
type MemoryStore struct {
	mu   sync.Mutex
	byID map[string]*Task
}

// NewMemoryStore constructs an empty in-memory task store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Task)}
}

func (s *MemoryStore) Create(_ context.Context, in CreateTaskInput) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := in.Now.UTC()
	t := Task{
		ID:          uuid.NewString(),
		OwnerID:     in.OwnerID,
		Title:       in.Title,
		Description: in.Description,
		Status:      StatusTodo,
		Priority:    in.Priority,
		DueAt:       in.DueAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[t.ID] = &t
	return t, nil
}

func (s *MemoryStore) Get(_ context.Context, ownerID, id string) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok || t.OwnerID != ownerID {
		return Task{}, ErrNotFound
	}
	return *t, nil
}

func (s *MemoryStore) List(_ context.Context, f ListFilter) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q := strings.ToLower(strings.TrimSpace(f.Search))
	out := make([]Task, 0)
	for _, t := range s.byID {
		if t.OwnerID != f.OwnerID {
			continue
		}
		if f.Status != nil {
			if t.Status != *f.Status {
				continue
			}
		} else if t.Status == StatusArchived {
			continue
		}
		if f.Priority != nil && t.Priority != *f.Priority {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(t.Title), q) &&
			!strings.Contains(strings.ToLower(t.Description), q) {
			continue
		}
		out = append(out, *t)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, in UpdateTaskInput) (Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[in.ID]
	if !ok || t.OwnerID != in.OwnerID {
		return Task{}, ErrNotFound
	}
	if in.Title != nil {
		t.Title = *in.Title
	}
	if in.Description != nil {
		t.Description = *in.Description
	}
	if in.Status != nil {
		t.Status = *in.Status
	}
	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	if in.ClearDueAt {
		t.DueAt = nil
	} else if in.DueAt != nil {
		t.DueAt = in.DueAt
	}
	t.UpdatedAt = in.Now.UTC()
	return *t, nil
}

func (s *MemoryStore) Delete(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok || t.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(s.byID, id)
	return nil
}
