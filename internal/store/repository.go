package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Repository is a workspace-scoped git remote the harness tracks.
type Repository struct {
	RepositoryID        string
	Scope               Scope
	Name                string
	NormalizedRemoteURL string
	DefaultBranch       string
	Metadata            map[string]any
	CreatedAt           time.Time
	ArchivedAt          *time.Time
}

// UpsertRepository creates or updates the repository for (scope,
// normalizedRemoteUrl) among non-archived rows.
func (s *Store) UpsertRepository(ctx context.Context, scope Scope, name, normalizedRemoteURL, defaultBranch string, metadata map[string]any) (Repository, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return Repository{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Repository{}, err
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRowContext(ctx, `
		SELECT repository_id FROM repositories
		WHERE tenant_id = ? AND user_id = ? AND workspace_id = ? AND normalized_remote_url = ? AND archived_at IS NULL
	`, scope.TenantID, scope.UserID, scope.WorkspaceID, normalizedRemoteURL).Scan(&existingID)

	var r Repository
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE repositories SET name = ?, default_branch = ?, metadata = ? WHERE repository_id = ?
		`, name, defaultBranch, string(metaJSON), existingID); err != nil {
			return Repository{}, err
		}
		r = Repository{RepositoryID: existingID, Scope: scope, Name: name, NormalizedRemoteURL: normalizedRemoteURL, DefaultBranch: defaultBranch, Metadata: metadata}
	case errors.Is(err, sql.ErrNoRows):
		r = Repository{RepositoryID: uuid.NewString(), Scope: scope, Name: name, NormalizedRemoteURL: normalizedRemoteURL, DefaultBranch: defaultBranch, Metadata: metadata, CreatedAt: time.Now().UTC()}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO repositories (repository_id, tenant_id, user_id, workspace_id, name, normalized_remote_url, default_branch, metadata, created_at, archived_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		`, r.RepositoryID, scope.TenantID, scope.UserID, scope.WorkspaceID, name, normalizedRemoteURL, defaultBranch, string(metaJSON), r.CreatedAt.Format(time.RFC3339)); err != nil {
			return Repository{}, err
		}
	default:
		return Repository{}, err
	}

	if err := tx.Commit(); err != nil {
		return Repository{}, err
	}
	s.publish(Event{Kind: "repository-upserted", Data: map[string]any{"repositoryId": r.RepositoryID}})
	return r, nil
}

// UpdateRepository rewrites name/defaultBranch/metadata for an existing
// repository by id, distinct from UpsertRepository's create-or-match-by-URL
// semantics.
func (s *Store) UpdateRepository(ctx context.Context, scope Scope, repositoryID, name, defaultBranch string, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE repositories SET name = ?, default_branch = ?, metadata = ?
		WHERE repository_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ?
	`, name, defaultBranch, string(metaJSON), repositoryID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "repository-upserted", Data: map[string]any{"repositoryId": repositoryID}})
	return nil
}

// ArchiveRepository marks a repository archived.
func (s *Store) ArchiveRepository(ctx context.Context, scope Scope, repositoryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE repositories SET archived_at = ?
		WHERE repository_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ? AND archived_at IS NULL
	`, nowISO(), repositoryID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "repository-archived", Data: map[string]any{"repositoryId": repositoryID}})
	return nil
}

// ListRepositories returns repositories in scope, ordered by
// metadata.homePriority ascending (nulls/absent last), then name.
func (s *Store) ListRepositories(ctx context.Context, scope Scope, includeArchived bool, limit int) ([]Repository, error) {
	query := `SELECT repository_id, name, normalized_remote_url, default_branch, metadata, created_at, archived_at FROM repositories WHERE tenant_id = ? AND user_id = ? AND workspace_id = ?`
	args := []any{scope.TenantID, scope.UserID, scope.WorkspaceID}
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY name LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Repository
	for rows.Next() {
		var r Repository
		var metaJSON, createdAt string
		var archivedAt sql.NullString
		if err := rows.Scan(&r.RepositoryID, &r.Name, &r.NormalizedRemoteURL, &r.DefaultBranch, &metaJSON, &createdAt, &archivedAt); err != nil {
			return nil, err
		}
		r.Scope = scope
		r.Metadata = map[string]any{}
		_ = json.Unmarshal([]byte(metaJSON), &r.Metadata)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			r.CreatedAt = t
		}
		if archivedAt.Valid {
			if t, err := time.Parse(time.RFC3339, archivedAt.String); err == nil {
				r.ArchivedAt = &t
			}
		}
		out = append(out, r)
	}
	out = sortByHomePriority(out)
	return out, rows.Err()
}

// sortByHomePriority reorders repositories so any with metadata.homePriority
// sort ascending by that value, with repositories lacking it kept in their
// existing (name-ordered) relative position at the tail.
func sortByHomePriority(repos []Repository) []Repository {
	var prioritized, rest []Repository
	for _, r := range repos {
		if _, ok := homePriority(r.Metadata); ok {
			prioritized = append(prioritized, r)
		} else {
			rest = append(rest, r)
		}
	}
	sort.SliceStable(prioritized, func(i, j int) bool {
		pi, _ := homePriority(prioritized[i].Metadata)
		pj, _ := homePriority(prioritized[j].Metadata)
		return pi < pj
	})
	return append(prioritized, rest...)
}

func homePriority(metadata map[string]any) (int, bool) {
	v, ok := metadata["homePriority"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}
