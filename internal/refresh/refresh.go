// Package refresh pulls remote calendar events and tasks into the local
// store. It is the read half of the sync pipeline: the daemon runs it on a
// schedule, and the CLI runs it on demand before rendering the timeline.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/gcal"
	"github.com/LJMStark/outku3-sub001/internal/model"
)

// Default fetch window around now.
const (
	DefaultWindowPast   = 7 * 24 * time.Hour
	DefaultWindowFuture = 30 * 24 * time.Hour
)

// CalendarSource aggregates events across the user's calendars. The sync
// token it returns belongs to the primary calendar and seeds the cursor for
// incremental fetches.
type CalendarSource interface {
	FetchMerged(ctx context.Context, timeMin, timeMax time.Time) ([]model.CalendarEvent, string, error)
}

// DeltaSource supports cursor-based incremental fetches against a single
// calendar. It matches the calendar gateway.
type DeltaSource interface {
	SyncIncremental(ctx context.Context, calendarID, syncToken string) (gcal.Delta, error)
}

// TaskSource aggregates tasks across the user's task lists.
type TaskSource interface {
	FetchAll(ctx context.Context) ([]model.TaskItem, error)
}

// Store is the slice of the local store the refresher writes to.
type Store interface {
	LoadEvents(ctx context.Context) ([]model.CalendarEvent, error)
	SaveEvents(ctx context.Context, events []model.CalendarEvent) error
	SaveTasks(ctx context.Context, tasks []model.TaskItem) error
	LoadSyncState(ctx context.Context) (*model.SyncState, error)
	SaveSyncState(ctx context.Context, state *model.SyncState) error
}

// Config tunes the refresher.
type Config struct {
	// WindowPast and WindowFuture bound the full-fetch time range around now.
	WindowPast   time.Duration
	WindowFuture time.Duration
}

// DefaultConfig returns the default fetch window.
func DefaultConfig() Config {
	return Config{WindowPast: DefaultWindowPast, WindowFuture: DefaultWindowFuture}
}

// Service refreshes local event and task snapshots from the remote
// providers.
type Service struct {
	calendars CalendarSource
	delta     DeltaSource
	tasks     TaskSource
	store     Store
	cfg       Config
	logger    *log.Logger
	now       func() time.Time
}

// NewService creates a refresher. delta may be nil, in which case every
// event refresh is a full window fetch. If logger is nil, logs go to stderr.
func NewService(calendars CalendarSource, delta DeltaSource, tasks TaskSource, store Store, cfg Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(os.Stderr, "[refresh] ", log.LstdFlags)
	}
	if cfg.WindowPast <= 0 {
		cfg.WindowPast = DefaultWindowPast
	}
	if cfg.WindowFuture <= 0 {
		cfg.WindowFuture = DefaultWindowFuture
	}
	return &Service{
		calendars: calendars,
		delta:     delta,
		tasks:     tasks,
		store:     store,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// RefreshEvents updates the stored event snapshot. With a valid sync cursor
// it applies the primary calendar's delta on top of the snapshot; otherwise
// it fetches the full window across all calendars. An expired cursor is
// discarded and the refresh falls back to a full fetch in the same call.
func (s *Service) RefreshEvents(ctx context.Context) error {
	state, err := s.store.LoadSyncState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}

	if state.CalendarSyncToken != "" && s.delta != nil {
		err := s.refreshIncremental(ctx, state)
		if err == nil {
			return nil
		}
		if !errors.Is(err, gcal.ErrSyncTokenExpired) {
			return err
		}
		s.logger.Printf("Warning: sync cursor expired, falling back to full fetch")
		state.CalendarSyncToken = ""
	}

	return s.refreshFull(ctx, state)
}

func (s *Service) refreshIncremental(ctx context.Context, state *model.SyncState) error {
	delta, err := s.delta.SyncIncremental(ctx, "primary", state.CalendarSyncToken)
	if err != nil {
		if errors.Is(err, gcal.ErrSyncTokenExpired) {
			return err
		}
		return fmt.Errorf("incremental fetch failed: %w", err)
	}
	if len(delta.Events) == 0 && len(delta.Deleted) == 0 && delta.SyncToken == state.CalendarSyncToken {
		return nil
	}

	existing, err := s.store.LoadEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored events: %w", err)
	}
	merged := applyDelta(existing, delta)
	if err := s.store.SaveEvents(ctx, merged); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}

	if delta.SyncToken != "" {
		state.CalendarSyncToken = delta.SyncToken
	}
	if err := s.store.SaveSyncState(ctx, state); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	s.logger.Printf("applied %d incremental event changes, %d deletions", len(delta.Events), len(delta.Deleted))
	return nil
}

func (s *Service) refreshFull(ctx context.Context, state *model.SyncState) error {
	now := s.now()
	timeMin := now.Add(-s.cfg.WindowPast)
	timeMax := now.Add(s.cfg.WindowFuture)

	events, token, err := s.calendars.FetchMerged(ctx, timeMin, timeMax)
	if err != nil {
		return fmt.Errorf("event refresh failed: %w", err)
	}
	if err := s.store.SaveEvents(ctx, events); err != nil {
		return fmt.Errorf("failed to save events: %w", err)
	}

	// The merged fetch already carried the primary calendar's sync token;
	// an empty token means the primary fetch failed, so keep whatever
	// cursor the state had.
	if token != "" {
		state.CalendarSyncToken = token
	}
	if err := s.store.SaveSyncState(ctx, state); err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	s.logger.Printf("refreshed %d events", len(events))
	return nil
}

// RefreshTasks replaces the stored task snapshot with the remote lists.
func (s *Service) RefreshTasks(ctx context.Context) error {
	tasks, err := s.tasks.FetchAll(ctx)
	if err != nil {
		return fmt.Errorf("task refresh failed: %w", err)
	}
	if err := s.store.SaveTasks(ctx, tasks); err != nil {
		return fmt.Errorf("failed to save tasks: %w", err)
	}
	s.logger.Printf("refreshed %d tasks", len(tasks))
	return nil
}

// applyDelta upserts changed events into the snapshot by ID, newest copy
// winning, removes the events deleted upstream, and restores the start-time
// ordering.
func applyDelta(existing []model.CalendarEvent, delta gcal.Delta) []model.CalendarEvent {
	byID := make(map[string]model.CalendarEvent, len(existing)+len(delta.Events))
	for _, ev := range existing {
		byID[ev.ID] = ev
	}
	for _, ev := range delta.Events {
		if prev, ok := byID[ev.ID]; ok && !ev.LastModified.After(prev.LastModified) {
			continue
		}
		byID[ev.ID] = ev
	}
	for _, id := range delta.Deleted {
		delete(byID, id)
	}

	merged := make([]model.CalendarEvent, 0, len(byID))
	for _, ev := range byID {
		merged = append(merged, ev)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Start.Equal(merged[j].Start) {
			return merged[i].ID < merged[j].ID
		}
		return merged[i].Start.Before(merged[j].Start)
	})
	return merged
}
