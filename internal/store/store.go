// Package store provides the on-device persistence layer.
//
// Domain entities are kept as named JSON documents in an embedded SQLite
// database opened in WAL mode. Documents are opaque blobs to the sync core;
// the typed accessors here are thin marshal/unmarshal wrappers over one
// documents table, so schema evolution is a document-shape concern rather
// than a migration concern.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

// ErrNotFound is returned when the named document has never been saved.
var ErrNotFound = errors.New("document not found")

// Well-known document names.
const (
	DocPet       = "pet"
	DocStreak    = "streak"
	DocTasks     = "tasks"
	DocEvents    = "events"
	DocSyncState = "sync_state"
)

// Store is the local document store.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the given path, creating parent directories and
// the schema as needed. The caller must Close when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping store: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL keeps reads concurrent with the sync daemon's writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// Close checkpoints the WAL and closes the connection.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close store: %w", err)
	}
	s.conn = nil
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveDocument upserts a named document, serializing v to JSON.
func (s *Store) SaveDocument(name string, v any) error {
	return s.SaveDocumentContext(context.Background(), name, v)
}

// SaveDocumentContext upserts a named document with context support.
func (s *Store) SaveDocumentContext(ctx context.Context, name string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal document %s: %w", name, err)
	}

	query := `
	INSERT INTO documents (name, body, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		body = excluded.body,
		updated_at = excluded.updated_at
	`
	if _, err := s.conn.ExecContext(ctx, query, name, string(body), time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to save document %s: %w", name, err)
	}
	return nil
}

// LoadDocument reads a named document into v. A document that was never
// saved maps to ErrNotFound.
func (s *Store) LoadDocument(name string, v any) error {
	return s.LoadDocumentContext(context.Background(), name, v)
}

// LoadDocumentContext reads a named document with context support.
func (s *Store) LoadDocumentContext(ctx context.Context, name string, v any) error {
	var body string
	err := s.conn.QueryRowContext(ctx, "SELECT body FROM documents WHERE name = ?", name).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to load document %s: %w", name, err)
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("failed to parse document %s: %w", name, err)
	}
	return nil
}

// DeleteDocument removes a named document. Returns nil if the document
// doesn't exist (idempotent).
func (s *Store) DeleteDocument(name string) error {
	return s.DeleteDocumentContext(context.Background(), name)
}

// DeleteDocumentContext removes a named document with context support.
func (s *Store) DeleteDocumentContext(ctx context.Context, name string) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM documents WHERE name = ?", name); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", name, err)
	}
	return nil
}

// ClearAll wipes every document.
func (s *Store) ClearAll() error {
	return s.ClearAllContext(context.Background())
}

// ClearAllContext wipes every document with context support.
func (s *Store) ClearAllContext(ctx context.Context) error {
	if _, err := s.conn.ExecContext(ctx, "DELETE FROM documents"); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// Typed accessors over the document table.

// SavePet persists the pet document.
func (s *Store) SavePet(ctx context.Context, pet *model.Pet) error {
	return s.SaveDocumentContext(ctx, DocPet, pet)
}

// LoadPet reads the pet document. Returns ErrNotFound before first adoption.
func (s *Store) LoadPet(ctx context.Context) (*model.Pet, error) {
	var pet model.Pet
	if err := s.LoadDocumentContext(ctx, DocPet, &pet); err != nil {
		return nil, err
	}
	return &pet, nil
}

// SaveStreak persists the streak document.
func (s *Store) SaveStreak(ctx context.Context, streak *model.Streak) error {
	return s.SaveDocumentContext(ctx, DocStreak, streak)
}

// LoadStreak reads the streak document.
func (s *Store) LoadStreak(ctx context.Context) (*model.Streak, error) {
	var streak model.Streak
	if err := s.LoadDocumentContext(ctx, DocStreak, &streak); err != nil {
		return nil, err
	}
	return &streak, nil
}

// SaveTasks persists the task collection.
func (s *Store) SaveTasks(ctx context.Context, tasks []model.TaskItem) error {
	return s.SaveDocumentContext(ctx, DocTasks, tasks)
}

// LoadTasks reads the task collection. An empty store yields an empty slice
// rather than an error, so read paths never fail on a fresh install.
func (s *Store) LoadTasks(ctx context.Context) ([]model.TaskItem, error) {
	var tasks []model.TaskItem
	err := s.LoadDocumentContext(ctx, DocTasks, &tasks)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tasks, nil
}

// SaveEvents persists the merged event timeline.
func (s *Store) SaveEvents(ctx context.Context, events []model.CalendarEvent) error {
	return s.SaveDocumentContext(ctx, DocEvents, events)
}

// LoadEvents reads the merged event timeline. An empty store yields an
// empty slice.
func (s *Store) LoadEvents(ctx context.Context) ([]model.CalendarEvent, error) {
	var events []model.CalendarEvent
	err := s.LoadDocumentContext(ctx, DocEvents, &events)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return events, nil
}

// SaveSyncState persists the coordinator's bookkeeping record.
func (s *Store) SaveSyncState(ctx context.Context, state *model.SyncState) error {
	return s.SaveDocumentContext(ctx, DocSyncState, state)
}

// LoadSyncState reads the bookkeeping record, returning a fresh zero record
// on a new install.
func (s *Store) LoadSyncState(ctx context.Context) (*model.SyncState, error) {
	var state model.SyncState
	err := s.LoadDocumentContext(ctx, DocSyncState, &state)
	if errors.Is(err, ErrNotFound) {
		return model.NewSyncState(), nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}
