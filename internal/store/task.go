package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TaskStatus is one of the four task lifecycle states.
type TaskStatus string

const (
	TaskStatusDraft      TaskStatus = "draft"
	TaskStatusReady      TaskStatus = "ready"
	TaskStatusInProgress TaskStatus = "in-progress"
	TaskStatusCompleted  TaskStatus = "completed"
)

// validTaskTransitions enumerates the allowed status transitions:
// draft<->ready, draft|ready->in-progress->completed; completed is
// terminal.
var validTaskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskStatusDraft:      {TaskStatusReady: true, TaskStatusInProgress: true},
	TaskStatusReady:      {TaskStatusDraft: true, TaskStatusInProgress: true},
	TaskStatusInProgress: {TaskStatusCompleted: true},
	TaskStatusCompleted:  {},
}

// ErrInvalidTransition is returned when a task status change isn't allowed
// from its current status.
var ErrInvalidTransition = fmt.Errorf("store: invalid task status transition")

// Task is a workspace-scoped unit of work tracked against a repository.
type Task struct {
	TaskID       string
	Scope        Scope
	RepositoryID string // "" means null
	Title        string
	Description  string
	Status       TaskStatus
	OrderIndex   int
	CompletedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CreateTask inserts a new task at the tail of the active ordering.
func (s *Store) CreateTask(ctx context.Context, scope Scope, repositoryID, title, description string) (Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Task{}, err
	}
	defer tx.Rollback()

	var maxOrder sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(order_index) FROM tasks WHERE tenant_id = ? AND user_id = ? AND workspace_id = ? AND status != ?
	`, scope.TenantID, scope.UserID, scope.WorkspaceID, string(TaskStatusCompleted)).Scan(&maxOrder); err != nil {
		return Task{}, err
	}

	now := time.Now().UTC()
	t := Task{
		TaskID:      uuid.NewString(),
		Scope:       scope,
		Title:       title,
		Description: description,
		Status:      TaskStatusDraft,
		OrderIndex:  int(maxOrder.Int64) + 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if repositoryID != "" {
		t.RepositoryID = repositoryID
	}

	var repoArg any
	if t.RepositoryID != "" {
		repoArg = t.RepositoryID
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (task_id, tenant_id, user_id, workspace_id, repository_id, title, description, status, order_index, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, t.TaskID, scope.TenantID, scope.UserID, scope.WorkspaceID, repoArg, title, description, string(t.Status), t.OrderIndex, now.Format(time.RFC3339), now.Format(time.RFC3339)); err != nil {
		return Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return Task{}, err
	}
	s.publish(Event{Kind: "task-created", Data: map[string]any{"taskId": t.TaskID}})
	return t, nil
}

// UpdateTask rewrites title/description for an existing task; it does not
// touch status or orderIndex.
func (s *Store) UpdateTask(ctx context.Context, scope Scope, taskID, title, description string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, updated_at = ?
		WHERE task_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ?
	`, title, description, nowISO(), taskID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "task-updated", Data: map[string]any{"taskId": taskID}})
	return nil
}

// transitionTask validates and applies a status change within one
// transaction, setting completedAt iff the new status is completed.
func (s *Store) transitionTask(ctx context.Context, scope Scope, taskID string, to TaskStatus, eventKind string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current TaskStatus
	var statusStr string
	if err := tx.QueryRowContext(ctx, `
		SELECT status FROM tasks WHERE task_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ?
	`, taskID, scope.TenantID, scope.UserID, scope.WorkspaceID).Scan(&statusStr); err != nil {
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		return err
	}
	current = TaskStatus(statusStr)
	if current == to {
		if err := tx.Commit(); err != nil {
			return err
		}
		return nil
	}
	if !validTaskTransitions[current][to] {
		return ErrInvalidTransition
	}

	var completedAt any
	if to == TaskStatusCompleted {
		completedAt = nowISO()
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = ?, updated_at = ? WHERE task_id = ?
	`, string(to), completedAt, nowISO(), taskID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: eventKind, Data: map[string]any{"taskId": taskID, "status": string(to)}})
	return nil
}

func (s *Store) ReadyTask(ctx context.Context, scope Scope, taskID string) error {
	return s.transitionTask(ctx, scope, taskID, TaskStatusReady, "task-updated")
}

func (s *Store) DraftTask(ctx context.Context, scope Scope, taskID string) error {
	return s.transitionTask(ctx, scope, taskID, TaskStatusDraft, "task-updated")
}

func (s *Store) StartTask(ctx context.Context, scope Scope, taskID string) error {
	return s.transitionTask(ctx, scope, taskID, TaskStatusInProgress, "task-updated")
}

func (s *Store) CompleteTask(ctx context.Context, scope Scope, taskID string) error {
	return s.transitionTask(ctx, scope, taskID, TaskStatusCompleted, "task-updated")
}

// DeleteTask permanently removes a task row.
func (s *Store) DeleteTask(ctx context.Context, scope Scope, taskID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM tasks WHERE task_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ?
	`, taskID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "task-deleted", Data: map[string]any{"taskId": taskID}})
	return nil
}

// Reorder rewrites orderIndex to 0..n-1 in the order given by orderedTaskIDs;
// tasks not named keep their relative order, appended after the named ones
// as a dense tail.
func (s *Store) Reorder(ctx context.Context, scope Scope, orderedTaskIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT task_id FROM tasks WHERE tenant_id = ? AND user_id = ? AND workspace_id = ? AND status != ? ORDER BY order_index
	`, scope.TenantID, scope.UserID, scope.WorkspaceID, string(TaskStatusCompleted))
	if err != nil {
		return err
	}
	var allActive []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		allActive = append(allActive, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	named := make(map[string]bool, len(orderedTaskIDs))
	for _, id := range orderedTaskIDs {
		named[id] = true
	}
	final := append([]string{}, orderedTaskIDs...)
	for _, id := range allActive {
		if !named[id] {
			final = append(final, id)
		}
	}

	for i, id := range final {
		if _, err := tx.ExecContext(ctx, `UPDATE tasks SET order_index = ?, updated_at = ? WHERE task_id = ?`, i, nowISO(), id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "task-reordered", Data: map[string]any{"order": final}})
	return nil
}

// ListTasks returns tasks in scope ordered by orderIndex ascending.
func (s *Store) ListTasks(ctx context.Context, scope Scope, includeCompleted bool, limit int) ([]Task, error) {
	query := `SELECT task_id, repository_id, title, description, status, order_index, completed_at, created_at, updated_at FROM tasks WHERE tenant_id = ? AND user_id = ? AND workspace_id = ?`
	args := []any{scope.TenantID, scope.UserID, scope.WorkspaceID}
	if !includeCompleted {
		query += ` AND status != ?`
		args = append(args, string(TaskStatusCompleted))
	}
	query += ` ORDER BY order_index ASC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		var repoID, statusStr, createdAt, updatedAt string
		var completedAt sql.NullString
		var repoNull sql.NullString
		if err := rows.Scan(&t.TaskID, &repoNull, &t.Title, &t.Description, &statusStr, &t.OrderIndex, &completedAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if repoNull.Valid {
			repoID = repoNull.String
		}
		t.Scope = scope
		t.RepositoryID = repoID
		t.Status = TaskStatus(statusStr)
		if t2, err := time.Parse(time.RFC3339, createdAt); err == nil {
			t.CreatedAt = t2
		}
		if t2, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			t.UpdatedAt = t2
		}
		if completedAt.Valid {
			if t2, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				t.CompletedAt = &t2
			}
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
