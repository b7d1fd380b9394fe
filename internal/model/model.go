// Package model defines the shared domain types for the companion sync core.
//
// These types are what the rest of the application trades in: calendar events
// and tasks aggregated from remote providers, plus the small gamification
// aggregates (pet, streak) that are reconciled between the local store and the
// remote profile store. All types serialize to JSON for persistence.
package model

import (
	"fmt"
	"time"
)

// EventSource tags where an event or task was fetched from.
type EventSource string

const (
	SourceGoogle EventSource = "google"
	SourceLocal  EventSource = "local"
)

// Participant is an attendee on a calendar event.
type Participant struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// CalendarEvent is one merged timeline entry.
//
// ID is the provider-assigned event identifier and is unique within any merged
// result set. LastModified carries the provider's "updated" timestamp and is
// the tie-break when the same event is reported by more than one calendar.
type CalendarEvent struct {
	ID           string        `json:"id"`
	Title        string        `json:"title"`
	Start        time.Time     `json:"start"`
	End          time.Time     `json:"end"`
	AllDay       bool          `json:"all_day,omitempty"`
	Source       EventSource   `json:"source"`
	Participants []Participant `json:"participants,omitempty"`
	Description  string        `json:"description,omitempty"`
	Location     string        `json:"location,omitempty"`
	LastModified time.Time     `json:"last_modified"`
}

// Validate checks the event invariants.
func (e *CalendarEvent) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	if e.End.Before(e.Start) {
		return fmt.Errorf("event %s ends before it starts", e.ID)
	}
	return nil
}

// Duration returns the event length.
func (e *CalendarEvent) Duration() time.Duration {
	return e.End.Sub(e.Start)
}

// TaskPriority orders tasks within a day view.
type TaskPriority int

const (
	PriorityLow TaskPriority = iota
	PriorityMedium
	PriorityHigh
)

// TaskItem is a task either created locally or fetched from a remote list.
//
// RemoteListID and RemoteTaskID are empty for tasks that exist only on this
// device; both must be set before a completion toggle can be pushed upstream.
type TaskItem struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Notes        string       `json:"notes,omitempty"`
	Completed    bool         `json:"completed"`
	Due          *time.Time   `json:"due,omitempty"`
	Source       EventSource  `json:"source"`
	RemoteListID string       `json:"remote_list_id,omitempty"`
	RemoteTaskID string       `json:"remote_task_id,omitempty"`
	Priority     TaskPriority `json:"priority"`
	LastModified time.Time    `json:"last_modified"`
}

// HasRemoteIDs reports whether the task is linked to a remote list/task pair.
func (t *TaskItem) HasRemoteIDs() bool {
	return t.RemoteListID != "" && t.RemoteTaskID != ""
}

// Pet is the virtual companion's persistent state.
//
// LastInteraction is the last-write-wins comparison point when local and
// remote copies diverge.
type Pet struct {
	Name            string    `json:"name"`
	Pronouns        string    `json:"pronouns"`
	AgeDays         int       `json:"age_days"`
	Mood            string    `json:"mood"`
	Stage           string    `json:"stage"`
	Progress        float64   `json:"progress"`
	Points          int       `json:"points"`
	AdventuresCount int       `json:"adventures_count"`
	LastInteraction time.Time `json:"last_interaction"`
}

// NewPet returns a freshly adopted pet.
func NewPet(name, pronouns string) *Pet {
	return &Pet{
		Name:            name,
		Pronouns:        pronouns,
		AgeDays:         1,
		Mood:            "happy",
		Stage:           "baby",
		LastInteraction: time.Now().UTC(),
	}
}

// Streak tracks consecutive active days.
//
// Both counters are monotonically informative: a larger value from either
// replica is always at least as correct as a smaller one, which is why streak
// conflicts merge field-wise by maximum instead of whole-record replacement.
type Streak struct {
	Current        int        `json:"current_streak"`
	Longest        int        `json:"longest_streak"`
	LastActiveDate *time.Time `json:"last_active_date,omitempty"`
}

// MergeStreaks combines two streak replicas by point-wise maximum.
// Nil inputs are treated as absent sides; nil LastActiveDate values are
// excluded from the max.
func MergeStreaks(local, remote *Streak) *Streak {
	if local == nil {
		return remote
	}
	if remote == nil {
		return local
	}
	merged := &Streak{
		Current: max(local.Current, remote.Current),
		Longest: max(local.Longest, remote.Longest),
	}
	switch {
	case local.LastActiveDate == nil:
		merged.LastActiveDate = remote.LastActiveDate
	case remote.LastActiveDate == nil:
		merged.LastActiveDate = local.LastActiveDate
	case remote.LastActiveDate.After(*local.LastActiveDate):
		merged.LastActiveDate = remote.LastActiveDate
	default:
		merged.LastActiveDate = local.LastActiveDate
	}
	return merged
}

// SyncStatus describes whether local state has fully propagated.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusPending SyncStatus = "pending"
)

// SyncState is the coordinator's bookkeeping record. It is owned exclusively
// by the sync coordinator; other components read it through the coordinator.
type SyncState struct {
	LastSyncTime      *time.Time `json:"last_sync_time,omitempty"`
	CalendarSyncToken string     `json:"calendar_sync_token,omitempty"`
	TasksSyncToken    string     `json:"tasks_sync_token,omitempty"`
	PendingChanges    int        `json:"pending_changes"`
	Status            SyncStatus `json:"status"`
}

// NewSyncState returns the zero bookkeeping record for a fresh install.
func NewSyncState() *SyncState {
	return &SyncState{Status: StatusSynced}
}
