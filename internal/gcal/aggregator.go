package gcal

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

// CalendarSource is the slice of the gateway the aggregator needs, split out
// so tests can substitute a fake.
type CalendarSource interface {
	ListCalendars(ctx context.Context) ([]CalendarInfo, error)
	FetchAllPages(ctx context.Context, calendarID string, q Query) ([]model.CalendarEvent, string, error)
}

// AggregateError reports that every calendar fetch failed. Its message
// carries each per-calendar failure.
type AggregateError struct {
	Failures map[string]error
}

func (e *AggregateError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return "all calendar fetches failed: " + strings.Join(parts, "; ")
}

// Aggregator merges events from every calendar the user has exposed into one
// deduplicated, time-ordered list.
type Aggregator struct {
	source CalendarSource
	logger *log.Logger
}

// NewAggregator creates a multi-calendar aggregator. If logger is nil, logs
// go to stderr.
func NewAggregator(source CalendarSource, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(os.Stderr, "[gcal] ", log.LstdFlags)
	}
	return &Aggregator{source: source, logger: logger}
}

// FetchMerged fetches every target calendar concurrently and merges the
// results. Individual calendar failures are logged and tolerated; only when
// every calendar fails does the call return an error. The second return
// value is the primary calendar's sync token, usable as the cursor for
// subsequent incremental fetches, empty if the primary fetch failed.
func (a *Aggregator) FetchMerged(ctx context.Context, timeMin, timeMax time.Time) ([]model.CalendarEvent, string, error) {
	targets, primaryID := a.targetCalendars(ctx)

	var (
		mu        sync.Mutex
		merged    = make(map[string]model.CalendarEvent)
		failures  = make(map[string]error)
		syncToken string
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range targets {
		g.Go(func() error {
			events, token, err := a.source.FetchAllPages(gctx, id, Query{TimeMin: timeMin, TimeMax: timeMax})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Printf("Warning: calendar %s fetch failed: %v", id, err)
				failures[id] = err
				return nil
			}
			if id == primaryID {
				syncToken = token
			}
			for _, ev := range events {
				// Shared events appear in more than one calendar; keep
				// the most recently modified copy.
				if prev, ok := merged[ev.ID]; ok && !ev.LastModified.After(prev.LastModified) {
					continue
				}
				merged[ev.ID] = ev
			}
			return nil
		})
	}
	// Fetch closures never return errors; Wait is a join barrier.
	_ = g.Wait()

	if len(failures) == len(targets) {
		return nil, "", &AggregateError{Failures: failures}
	}

	events := make([]model.CalendarEvent, 0, len(merged))
	for _, ev := range merged {
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].Start.Equal(events[j].Start) {
			return events[i].ID < events[j].ID
		}
		return events[i].Start.Before(events[j].Start)
	})
	return events, syncToken, nil
}

// targetCalendars determines which calendar IDs to fetch: the selected and
// not hidden entries of the calendar list, the full list when nothing is
// marked selected, and always the primary calendar. When the calendar list
// itself cannot be fetched, the target set degrades to primary alone. The
// second return value is the primary calendar's ID within the target set.
func (a *Aggregator) targetCalendars(ctx context.Context) ([]string, string) {
	calendars, err := a.source.ListCalendars(ctx)
	if err != nil {
		a.logger.Printf("Warning: calendar list fetch failed, falling back to primary: %v", err)
		return []string{"primary"}, "primary"
	}

	var ids []string
	primaryID := ""
	for _, cal := range calendars {
		if cal.Selected && !cal.Hidden {
			ids = append(ids, cal.ID)
			if cal.Primary {
				primaryID = cal.ID
			}
		}
	}
	if len(ids) == 0 {
		for _, cal := range calendars {
			ids = append(ids, cal.ID)
			if cal.Primary {
				primaryID = cal.ID
			}
		}
	}
	if primaryID == "" {
		primaryID = "primary"
		ids = append(ids, primaryID)
	}
	return dedupe(ids), primaryID
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
