package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AgentType enumerates the supported agent adapters.
type AgentType string

const (
	AgentTypeCodex    AgentType = "codex"
	AgentTypeClaude   AgentType = "claude"
	AgentTypeCursor   AgentType = "cursor"
	AgentTypeTerminal AgentType = "terminal"
	AgentTypeCritique AgentType = "critique"
)

// Conversation is a persisted session record. ConversationID
// doubles as the sessionId of any running PTY for it.
type Conversation struct {
	ConversationID string
	DirectoryID    string
	Scope          Scope
	Title          string
	AgentType      AgentType
	AdapterState   map[string]any
	ArchivedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CreateConversation inserts a new conversation row under directoryID.
func (s *Store) CreateConversation(ctx context.Context, scope Scope, directoryID, title string, agentType AgentType, adapterState map[string]any) (Conversation, error) {
	if title == "" {
		existing, err := s.ListConversations(ctx, scope, "", true, 100000)
		if err != nil {
			return Conversation{}, err
		}
		title = defaultTitle(collectTitles(existing))
	}
	if adapterState == nil {
		adapterState = map[string]any{}
	}
	stateJSON, err := json.Marshal(adapterState)
	if err != nil {
		return Conversation{}, err
	}
	now := time.Now().UTC()
	c := Conversation{
		ConversationID: uuid.NewString(),
		DirectoryID:    directoryID,
		Scope:          scope,
		Title:          title,
		AgentType:      agentType,
		AdapterState:   adapterState,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Conversation{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO conversations (conversation_id, directory_id, tenant_id, user_id, workspace_id, title, agent_type, adapter_state, archived_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)
	`, c.ConversationID, directoryID, scope.TenantID, scope.UserID, scope.WorkspaceID, title, string(agentType), string(stateJSON), now.Format(time.RFC3339), now.Format(time.RFC3339)); err != nil {
		return Conversation{}, err
	}
	if err := tx.Commit(); err != nil {
		return Conversation{}, err
	}
	s.publish(Event{Kind: "conversation-created", Data: map[string]any{"conversationId": c.ConversationID}})
	return c, nil
}

// UpdateConversation rewrites title/adapterState for an existing conversation.
func (s *Store) UpdateConversation(ctx context.Context, scope Scope, conversationID, title string, adapterState map[string]any) error {
	stateJSON, err := json.Marshal(adapterState)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET title = ?, adapter_state = ?, updated_at = ?
		WHERE conversation_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ?
	`, title, string(stateJSON), nowISO(), conversationID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "conversation-updated", Data: map[string]any{"conversationId": conversationID}})
	return nil
}

// ArchiveConversation marks a conversation archived.
func (s *Store) ArchiveConversation(ctx context.Context, scope Scope, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE conversations SET archived_at = ?, updated_at = ?
		WHERE conversation_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ? AND archived_at IS NULL
	`, nowISO(), nowISO(), conversationID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "conversation-archived", Data: map[string]any{"conversationId": conversationID}})
	return nil
}

// DeleteConversation permanently removes a conversation row.
func (s *Store) DeleteConversation(ctx context.Context, scope Scope, conversationID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		DELETE FROM conversations WHERE conversation_id = ? AND tenant_id = ? AND user_id = ? AND workspace_id = ?
	`, conversationID, scope.TenantID, scope.UserID, scope.WorkspaceID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.publish(Event{Kind: "conversation-deleted", Data: map[string]any{"conversationId": conversationID}})
	return nil
}

// ListConversations returns conversations in scope, optionally restricted to
// one directory (empty directoryID means all directories).
func (s *Store) ListConversations(ctx context.Context, scope Scope, directoryID string, includeArchived bool, limit int) ([]Conversation, error) {
	query := `SELECT conversation_id, directory_id, title, agent_type, adapter_state, archived_at, created_at, updated_at FROM conversations WHERE tenant_id = ? AND user_id = ? AND workspace_id = ?`
	args := []any{scope.TenantID, scope.UserID, scope.WorkspaceID}
	if directoryID != "" {
		query += ` AND directory_id = ?`
		args = append(args, directoryID)
	}
	if !includeArchived {
		query += ` AND archived_at IS NULL`
	}
	query += ` ORDER BY updated_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var agentType, stateJSON, createdAt, updatedAt string
		var archivedAt sql.NullString
		if err := rows.Scan(&c.ConversationID, &c.DirectoryID, &c.Title, &agentType, &stateJSON, &archivedAt, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		c.Scope = scope
		c.AgentType = AgentType(agentType)
		c.AdapterState = map[string]any{}
		_ = json.Unmarshal([]byte(stateJSON), &c.AdapterState)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			c.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339, updatedAt); err == nil {
			c.UpdatedAt = t
		}
		if archivedAt.Valid {
			if t, err := time.Parse(time.RFC3339, archivedAt.String); err == nil {
				c.ArchivedAt = &t
			}
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
