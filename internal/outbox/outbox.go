// Package outbox spools remote pushes that failed, as one JSON file per
// entry, so the sync daemon can retry them without holding anything in
// memory across restarts.
//
// Filename convention: {created-unix-nanos}--{kind}.json. Entries that
// exhaust their retry budget are dropped with a log line; the next full
// sync reconciles whatever state the failed pushes would have carried.
package outbox

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MaxRetries is the default retry budget per entry.
const MaxRetries = 5

// Entry kinds.
const (
	KindPet            = "pet"
	KindStreak         = "streak"
	KindTaskCompletion = "task_completion"
)

// TaskCompletion is the payload shape for KindTaskCompletion entries.
type TaskCompletion struct {
	ListID    string `json:"list_id"`
	TaskID    string `json:"task_id"`
	Completed bool   `json:"completed"`
}

// Entry is one queued remote push.
type Entry struct {
	Kind       string          `json:"kind"`
	UserID     string          `json:"user_id,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	RetryCount int             `json:"retry_count"`
	CreatedAt  time.Time       `json:"created_at"`

	// path is where the entry lives on disk; empty until enqueued.
	path string
}

// Validate checks the entry's required fields.
func (e *Entry) Validate() error {
	switch e.Kind {
	case KindPet, KindStreak, KindTaskCompletion:
	default:
		return fmt.Errorf("invalid entry kind: %s", e.Kind)
	}
	if len(e.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	if e.CreatedAt.IsZero() {
		return fmt.Errorf("created_at is required")
	}
	return nil
}

// fileName generates the on-disk name for this entry.
func (e *Entry) fileName() string {
	return fmt.Sprintf("%d--%s.json", e.CreatedAt.UnixNano(), e.Kind)
}

// Outbox is a directory-backed spool.
type Outbox struct {
	dir        string
	maxRetries int
}

// New creates an outbox rooted at dir. maxRetries <= 0 means MaxRetries.
func New(dir string, maxRetries int) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create outbox directory: %w", err)
	}
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	return &Outbox{dir: dir, maxRetries: maxRetries}, nil
}

// Dir returns the spool directory.
func (o *Outbox) Dir() string {
	return o.dir
}

// Enqueue writes a new entry to the spool.
func (o *Outbox) Enqueue(kind, userID string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal outbox payload: %w", err)
	}
	entry := &Entry{
		Kind:      kind,
		UserID:    userID,
		Payload:   raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("invalid outbox entry: %w", err)
	}
	return o.write(entry, filepath.Join(o.dir, entry.fileName()))
}

// write persists an entry atomically via a temp file rename.
func (o *Outbox) write(entry *Entry, path string) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode outbox entry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write outbox entry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit outbox entry: %w", err)
	}
	entry.path = path
	return nil
}

// List reads every queued entry in creation order. Unparseable files are
// skipped, not fatal.
func (o *Outbox) List() ([]*Entry, error) {
	dirEntries, err := os.ReadDir(o.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox directory: %w", err)
	}

	var entries []*Entry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(o.dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			continue
		}
		if err := entry.Validate(); err != nil {
			continue
		}
		entry.path = path
		entries = append(entries, &entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// Len reports the number of queued entries.
func (o *Outbox) Len() (int, error) {
	entries, err := o.List()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Remove deletes a delivered entry. Idempotent.
func (o *Outbox) Remove(entry *Entry) error {
	if entry.path == "" {
		return nil
	}
	if err := os.Remove(entry.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove outbox entry: %w", err)
	}
	return nil
}

// MarkFailed bumps the entry's retry count, dropping it once the budget is
// exhausted. Returns true when the entry was dropped.
func (o *Outbox) MarkFailed(entry *Entry) (bool, error) {
	entry.RetryCount++
	if entry.RetryCount >= o.maxRetries {
		if err := o.Remove(entry); err != nil {
			return false, err
		}
		return true, nil
	}
	if err := o.write(entry, entry.path); err != nil {
		return false, err
	}
	return false, nil
}
