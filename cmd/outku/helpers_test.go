package main

import (
	"strings"
	"testing"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

func TestTaskIndexBounds(t *testing.T) {
	if _, err := taskIndex("0", 3); err == nil {
		t.Error("index 0 accepted")
	}
	if _, err := taskIndex("4", 3); err == nil {
		t.Error("index past the end accepted")
	}
	if _, err := taskIndex("x", 3); err == nil {
		t.Error("non-numeric index accepted")
	}
	idx, err := taskIndex("3", 3)
	if err != nil || idx != 2 {
		t.Errorf("taskIndex(3) = %d, %v", idx, err)
	}
}

func TestParseDueExactDate(t *testing.T) {
	due, err := parseDue("2026-04-01")
	if err != nil {
		t.Fatalf("parseDue failed: %v", err)
	}
	if due.Year() != 2026 || due.Month() != time.April || due.Day() != 1 {
		t.Errorf("parseDue = %v", due)
	}
}

func TestParseDueNaturalLanguage(t *testing.T) {
	due, err := parseDue("tomorrow at 5pm")
	if err != nil {
		t.Fatalf("parseDue failed: %v", err)
	}
	if !due.After(time.Now()) {
		t.Errorf("tomorrow resolved to the past: %v", due)
	}
	if due.Hour() != 17 {
		t.Errorf("hour = %d, want 17", due.Hour())
	}
}

func TestParseDueGarbage(t *testing.T) {
	if _, err := parseDue("the heat death of the universe"); err == nil {
		t.Error("expected parse failure")
	}
}

func TestWindowedFiltersByDay(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	mk := func(id string, startOffset time.Duration) model.CalendarEvent {
		start := now.Add(startOffset)
		return model.CalendarEvent{ID: id, Start: start, End: start.Add(time.Hour)}
	}
	events := []model.CalendarEvent{
		mk("past", -48*time.Hour),
		mk("earlier-today", -3*time.Hour),
		mk("tomorrow", 20*time.Hour),
		mk("far", 10*24*time.Hour),
	}

	got := windowed(events, now, 2)
	var ids []string
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	if strings.Join(ids, ",") != "earlier-today,tomorrow" {
		t.Errorf("windowed = %v", ids)
	}

	if n := len(windowed(events, now, 0)); n != len(events) {
		t.Errorf("zero days filtered to %d events", n)
	}
}

func TestTouchStreak(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2026, 3, d, 0, 0, 0, 0, time.UTC) }
	noon := func(d int) time.Time { return time.Date(2026, 3, d, 12, 0, 0, 0, time.UTC) }

	st := touchStreak(nil, noon(2))
	if st.Current != 1 || st.Longest != 1 {
		t.Fatalf("first touch = %+v", st)
	}
	if !st.LastActiveDate.Equal(day(2)) {
		t.Fatalf("last active = %v", st.LastActiveDate)
	}

	// Same day again is a no-op.
	st = touchStreak(st, noon(2))
	if st.Current != 1 {
		t.Errorf("same-day touch bumped streak: %+v", st)
	}

	// Next day extends.
	st = touchStreak(st, noon(3))
	if st.Current != 2 || st.Longest != 2 {
		t.Errorf("next-day touch = %+v", st)
	}

	// A gap resets current but keeps longest.
	st = touchStreak(st, noon(6))
	if st.Current != 1 || st.Longest != 2 {
		t.Errorf("post-gap touch = %+v", st)
	}
}

func TestStageProgressWraps(t *testing.T) {
	if got := stageProgress(150); got != 0.5 {
		t.Errorf("stageProgress(150) = %v", got)
	}
	if got := stageProgress(0); got != 0 {
		t.Errorf("stageProgress(0) = %v", got)
	}
}

func TestEventsToICSRoundTrippableFields(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	events := []model.CalendarEvent{
		{
			ID: "ev1", Title: "Standup", Start: start, End: start.Add(time.Hour),
			Location: "Room 4", LastModified: start,
			Participants: []model.Participant{{Name: "Sam", Email: "sam@example.com"}},
		},
		{ID: "ev2", Title: "Conference", Start: start, End: start.Add(24 * time.Hour), AllDay: true, LastModified: start},
	}

	out := eventsToICS(events)
	for _, want := range []string{"BEGIN:VCALENDAR", "SUMMARY:Standup", "LOCATION:Room 4", "sam@example.com", "SUMMARY:Conference"} {
		if !strings.Contains(out, want) {
			t.Errorf("ICS missing %q", want)
		}
	}
}
