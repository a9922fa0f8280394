// Package store implements the Workspace Store: persistence for
// Directories, Repositories, Conversations, and Tasks, scoped by
// (tenantId, userId, workspaceId), backed by embedded SQLite. Opened in WAL
// mode with foreign keys on and SetMaxOpenConns(1) as the single-mutator
// discipline, with goose migrations embedded alongside. Queries here are
// hand-written against database/sql rather than sqlc-generated, since code
// generation can't run as part of building this module.
package store

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Open opens a SQLite database at path (":memory:" for an ephemeral store,
// used by tests) and configures it for the harness's single-mutator
// discipline.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Migrate brings db's schema up to the latest embedded goose migration.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("store: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Scope is the (tenantId, userId, workspaceId) tuple every persisted entity
// belongs to.
type Scope struct {
	TenantID    string
	UserID      string
	WorkspaceID string
}

// Store wraps the single *sql.DB connection and publishes an observed event
// after every successful mutation's commit.
type Store struct {
	db   *sql.DB
	emit func(Event)
}

// Event is the observed-event shape the Workspace Store publishes; the
// Stream Server re-wraps these into its own envelope format.
type Event struct {
	Kind string // e.g. "directory-upserted", "conversation-archived"
	Data map[string]any
}

// New wraps db. emit is called after every successful commit; it must not
// block.
func New(db *sql.DB, emit func(Event)) *Store {
	return &Store{db: db, emit: emit}
}
