package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "outku.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
	})
	return s
}

func TestPetRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if _, err := s.LoadPet(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LoadPet on empty store = %v, want ErrNotFound", err)
	}

	pet := model.NewPet("Waffle", "they/them")
	pet.Points = 42
	if err := s.SavePet(ctx, pet); err != nil {
		t.Fatalf("SavePet failed: %v", err)
	}

	got, err := s.LoadPet(ctx)
	if err != nil {
		t.Fatalf("LoadPet failed: %v", err)
	}
	if got.Name != "Waffle" || got.Points != 42 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestStreakRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	last := time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
	want := &model.Streak{Current: 3, Longest: 7, LastActiveDate: &last}
	if err := s.SaveStreak(ctx, want); err != nil {
		t.Fatalf("SaveStreak failed: %v", err)
	}

	got, err := s.LoadStreak(ctx)
	if err != nil {
		t.Fatalf("LoadStreak failed: %v", err)
	}
	if got.Current != 3 || got.Longest != 7 {
		t.Errorf("round trip mismatch: %+v", got)
	}
	if got.LastActiveDate == nil || !got.LastActiveDate.Equal(last) {
		t.Errorf("LastActiveDate = %v, want %v", got.LastActiveDate, last)
	}
}

func TestTasksEmptyStoreYieldsNoError(t *testing.T) {
	s := setupStore(t)
	tasks, err := s.LoadTasks(context.Background())
	if err != nil {
		t.Fatalf("LoadTasks on empty store failed: %v", err)
	}
	if tasks != nil {
		t.Errorf("expected nil tasks on fresh install, got %v", tasks)
	}
}

func TestEventsRoundTrip(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	start := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	events := []model.CalendarEvent{
		{
			ID:           "ev1",
			Title:        "Standup",
			Start:        start,
			End:          start.Add(30 * time.Minute),
			Source:       model.SourceGoogle,
			LastModified: start,
		},
	}
	if err := s.SaveEvents(ctx, events); err != nil {
		t.Fatalf("SaveEvents failed: %v", err)
	}

	got, err := s.LoadEvents(ctx)
	if err != nil {
		t.Fatalf("LoadEvents failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "ev1" || !got[0].Start.Equal(start) {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestSyncStateDefaultsOnFreshInstall(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	state, err := s.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("LoadSyncState failed: %v", err)
	}
	if state.Status != model.StatusSynced || state.PendingChanges != 0 {
		t.Errorf("fresh sync state = %+v", state)
	}

	now := time.Now().UTC()
	state.LastSyncTime = &now
	state.PendingChanges = 2
	state.Status = model.StatusPending
	if err := s.SaveSyncState(ctx, state); err != nil {
		t.Fatalf("SaveSyncState failed: %v", err)
	}

	got, err := s.LoadSyncState(ctx)
	if err != nil {
		t.Fatalf("LoadSyncState failed: %v", err)
	}
	if got.PendingChanges != 2 || got.Status != model.StatusPending {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestClearAll(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.SavePet(ctx, model.NewPet("Waffle", "they/them")); err != nil {
		t.Fatalf("SavePet failed: %v", err)
	}
	if err := s.SaveStreak(ctx, &model.Streak{Current: 1}); err != nil {
		t.Fatalf("SaveStreak failed: %v", err)
	}

	if err := s.ClearAll(); err != nil {
		t.Fatalf("ClearAll failed: %v", err)
	}
	if _, err := s.LoadPet(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadPet after ClearAll = %v, want ErrNotFound", err)
	}
	if _, err := s.LoadStreak(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LoadStreak after ClearAll = %v, want ErrNotFound", err)
	}
}

func TestDocumentUpsertOverwrites(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	if err := s.SaveDocumentContext(ctx, "scratch", map[string]int{"v": 1}); err != nil {
		t.Fatalf("SaveDocument failed: %v", err)
	}
	if err := s.SaveDocumentContext(ctx, "scratch", map[string]int{"v": 2}); err != nil {
		t.Fatalf("SaveDocument overwrite failed: %v", err)
	}

	var got map[string]int
	if err := s.LoadDocumentContext(ctx, "scratch", &got); err != nil {
		t.Fatalf("LoadDocument failed: %v", err)
	}
	if got["v"] != 2 {
		t.Errorf("document = %v, want overwritten value", got)
	}
}
