package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL (taskboard.tasks).
//
// The store does not own the pgx pool; the caller closes it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed task store.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("tasks: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const taskColumns = `id, owner_id, title, description, status, priority, due_at, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, in CreateTaskInput) (Task, error) {
	now := in.Now.UTC()
	row := s.pool.QueryRow(ctx, `
		INSERT INTO taskboard.tasks (id, owner_id, title, description, status, priority, due_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING `+taskColumns,
		uuid.NewString(), in.OwnerID, in.Title, in.Description,
		string(StatusTodo), string(in.Priority), in.DueAt, now,
	)
	return scanTask(row)
}

func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (Task, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM taskboard.tasks
		WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	return scanTask(row)
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]Task, error) {
	var (
		where = []string{"owner_id = $1"}
		args  = []any{f.OwnerID}
	)
	if f.Status != nil {
		args = append(args, string(*f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	} else {
		where = append(where, "status <> 'archived'")
	}
	if f.Priority != nil {
		args = append(args, string(*f.Priority))
		where = append(where, fmt.Sprintf("priority = $%d", len(args)))
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		args = append(args, "%"+q+"%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", len(args), len(args)))
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM taskboard.tasks
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d
	`, taskColumns, strings.Join(where, " AND "), len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Task, 0, limit)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, in UpdateTaskInput) (Task, error) {
	set := []string{"updated_at = $3"}
	args := []any{in.OwnerID, in.ID, in.Now.UTC()}

	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if in.Title != nil {
		add("title", *in.Title)
	}
	if in.Description != nil {
		add("description", *in.Description)
	}
	if in.Status != nil {
		add("status", string(*in.Status))
	}
	if in.Priority != nil {
		add("priority", string(*in.Priority))
	}
	if in.ClearDueAt {
		set = append(set, "due_at = NULL")
	} else if in.DueAt != nil {
		add("due_at", *in.DueAt)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		UPDATE taskboard.tasks
		SET %s
		WHERE owner_id = $1 AND id = $2
		RETURNING %s
	`, strings.Join(set, ", "), taskColumns), args...)
	return scanTask(row)
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM taskboard.tasks WHERE owner_id = $1 AND id = $2
	`, ownerID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTask(row pgx.Row) (Task, error) {
	var (
		t        Task
		status   string
		priority string
	)
	err := row.Scan(&t.ID, &t.OwnerID, &t.Title, &t.Description, &status, &priority, &t.DueAt, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	t.Status = Status(status)
	t.Priority = Priority(priority)
	return t, nil
}
