package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrConflict is returned when a mutation would violate a uniqueness
// invariant: (scope,path) for directories, (scope,normalizedRemoteUrl)
// for repositories.
var ErrConflict = errors.New("store: conflict")

// ErrNotFound is returned when a mutation targets an entity id that does
// not exist in the given scope.
var ErrNotFound = errors.New("store: not found")

// Directory is a workspace-scoped filesystem path the harness tracks.
type Directory struct {
	DirectoryID string
	Scope       Scope
	Path        string
	ArchivedAt  *time.Time
}

// UpsertDirectory creates a directory row for (scope, path) if none exists
// among non-archived rows, or returns the existing one unchanged: repeated
// upserts yield one row and one directoryId, though each call still
// publishes its own event. The observed event is published only after the
// transaction commits.
func (s *Store) UpsertDirectory(ctx context.Context, scope Scope, path string) (Directory, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Directory{}, err
	}
	defer tx.Rollback()

	var existing Directory
	err = tx.QueryRowContext(ctx, `
		SELECT directory_id, path FROM directories
		WHERE tenant_id = ? AND user_id = ? AND workspace_id = ? AND path = ? AND archived_at IS NULL
	`, scope.TenantID, scope.UserID, scope.WorkspaceID, path).Scan(&existing.DirectoryID, &existing.Path)

	switch {
	case err == nil:
		if commitErr := tx.Commit(); commitErr != nil {
			return Directory{}, commitErr
		}
		existing.Scope = scope
		s.publish(Event{Kind: "directory-upserted", Data: map[string]any{"directoryId": existing.DirectoryID, "path": path}})
		return existing, nil
	case errors.Is(err, sql.ErrNoRows):
		// fall through to insert
	default:
		return Directory{}, err
	}

	d := Directory{DirectoryID: uuid.NewString(), Scope: scope, Path: path}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO directories (directory_id, tenant_id, user_id, workspace_id, path, archived_at)
		VALUES (?, ?, ?, ?, ?, NULL)
	`, d.DirectoryID, scope.TenantID, scope.UserID, scope.WorkspaceID, path); err != nil {
		return Directory{}, err
	}
	if err := tx.Commit(); err != nil {
		return Directory{}, err
	}
	s.publish(Event{Kind: "directory-upserted", Data: map[string]any{"directoryId": d.DirectoryID, "path": path}})
	return d, nil
}

// ArchiveDirectory marks a directory archived. No-op error if not found.
func (s *Store) ArchiveDirectory(ctx context.Context, scope Scope, directoryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE directories SET archived_at = ?
		WHERE directory_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ? AND archived_at IS NULL
	`, nowISO(), directoryID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "directory-archived", Data: map[string]any{"directoryId": directoryID}})
	return nil
}

// ListDirectories returns up to limit directories in the scope, ordered by
// path. includeArchived=false restricts to non-archived rows.
func (s *Store) ListDirectories(ctx context.Context, scope Scope, includeArchived bool, limit int) ([]Directory, error) {
	query := `SELECT directory_id, path, archived_at FROM directories WHERE tenant_id = ? AND user_id = ? AND workspace_id = ?`
	args := []any{scope.TenantID, scope.UserID, scope.WorkspaceID}
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY path LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Directory
	for rows.Next() {
		var d Directory
		var archivedAt sql.NullString
		if err := rows.Scan(&d.DirectoryID, &d.Path, &archivedAt); err != nil {
			return nil, err
		}
		d.Scope = scope
		if archivedAt.Valid {
			if t, err := time.Parse(time.RFC3339, archivedAt.String); err == nil {
				d.ArchivedAt = &t
			}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) publish(e Event) {
	if s.emit != nil {
		s.emit(e)
	}
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}
