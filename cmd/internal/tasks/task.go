// Package tasks contains taskboard's task domain: the model, persistence and
// the guarded HTTP surface.
package tasks

import (
	"context"
	"errors"
	"time"
)

// Status is a task's lifecycle state. Archived is a state, not a flag, so a
// task is never both "done" and "archived" ambiguously.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusArchived   Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone, StatusArchived:
		return true
	}
	return false
}

// Priority orders tasks for presentation.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is an owner-scoped work item.
type Task struct {
	ID          string
	OwnerID     string
	Title       string
	Description string
	Status      Status
	Priority    Priority
	DueAt       *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ErrNotFound is returned when no task matches for the owner. Tasks of other
// owners are indistinguishable from missing ones.
var ErrNotFound = errors.New("task not found")

// CreateTaskInput describes a task creation request.
type CreateTaskInput struct {
	OwnerID     string
	Title       string
	Description string
	Priority    Priority
	DueAt       *time.Time
	Now         time.Time
}

// UpdateTaskInput carries a partial update; nil fields are left unchanged.
type UpdateTaskInput struct {
	OwnerID     string
	ID          string
	Title       *string
	Description *string
	Status      *Status
	Priority    *Priority
	DueAt       *time.Time
	ClearDueAt  bool
	Now         time.Time
}

// ListFilter narrows List results. Zero values match everything except
// archived tasks, which are only returned when asked for explicitly.
type ListFilter struct {
	OwnerID  string
	Status   *Status
	Priority *Priority
	Search   string
	Limit    int
}

// Store persists tasks.
type Store interface {
	Create(ctx context.Context, in CreateTaskInput) (Task, error)
	Get(ctx context.Context, ownerID, id string) (Task, error)
	List(ctx context.Context, f ListFilter) ([]Task, error)
	Update(ctx context.Context, in UpdateTaskInput) (Task, error)
	Delete(ctx context.Context, ownerID, id string) error
}
