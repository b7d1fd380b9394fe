package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/httpx"
	"github.com/LJMStark/outku3-sub001/internal/model"
)

type fakeTokens struct{}

func (fakeTokens) Token(ctx context.Context) (string, error)   { return "user-jwt", nil }
func (fakeTokens) Refresh(ctx context.Context) (string, error) { return "user-jwt", nil }

func newTestStore(t *testing.T, handler http.Handler) *Store {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewStore(httpx.New(), fakeTokens{}, Config{BaseURL: srv.URL, APIKey: "anon-key"})
}

func TestUpsertPetSendsMergeDuplicates(t *testing.T) {
	var (
		gotPrefer string
		gotAPIKey string
		gotQuery  string
		gotBody   map[string]any
	)
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPrefer = r.Header.Get("Prefer")
		gotAPIKey = r.Header.Get("apikey")
		gotQuery = r.URL.RawQuery
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("bad body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
	}))

	pet := model.NewPet("Waffle", "they/them")
	if err := s.UpsertPet(context.Background(), "user-1", pet); err != nil {
		t.Fatalf("UpsertPet failed: %v", err)
	}
	if gotPrefer != "resolution=merge-duplicates" {
		t.Errorf("Prefer = %q", gotPrefer)
	}
	if gotAPIKey != "anon-key" {
		t.Errorf("apikey = %q", gotAPIKey)
	}
	if gotQuery != "on_conflict=user_id" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotBody["user_id"] != "user-1" || gotBody["name"] != "Waffle" {
		t.Errorf("body = %v", gotBody)
	}
}

func TestFetchPetFiltersOnUserID(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user_id"); got != "eq.user-1" {
			t.Errorf("user_id filter = %q, want eq.user-1", got)
		}
		fmt.Fprint(w, `[{"user_id":"user-1","name":"Waffle","pronouns":"they/them","points":7,"last_interaction":"2026-08-30T12:00:00Z"}]`)
	}))

	pet, err := s.FetchPet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchPet failed: %v", err)
	}
	if pet == nil || pet.Name != "Waffle" || pet.Points != 7 {
		t.Errorf("pet = %+v", pet)
	}
	want := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	if !pet.LastInteraction.Equal(want) {
		t.Errorf("LastInteraction = %v, want %v", pet.LastInteraction, want)
	}
}

func TestFetchPetAbsent(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))

	pet, err := s.FetchPet(context.Background(), "user-2")
	if err != nil {
		t.Fatalf("FetchPet failed: %v", err)
	}
	if pet != nil {
		t.Errorf("expected nil pet for absent record, got %+v", pet)
	}
}

func TestStreakRoundTripShape(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("bad body: %v", err)
			}
			if body["current_streak"] != float64(4) {
				t.Errorf("current_streak = %v", body["current_streak"])
			}
			w.WriteHeader(http.StatusCreated)
		case http.MethodGet:
			fmt.Fprint(w, `[{"user_id":"user-1","current_streak":4,"longest_streak":9}]`)
		}
	}))

	if err := s.UpsertStreak(context.Background(), "user-1", &model.Streak{Current: 4, Longest: 9}); err != nil {
		t.Fatalf("UpsertStreak failed: %v", err)
	}
	streak, err := s.FetchStreak(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchStreak failed: %v", err)
	}
	if streak.Current != 4 || streak.Longest != 9 {
		t.Errorf("streak = %+v", streak)
	}
}

func TestFetchSyncStateAbsent(t *testing.T) {
	s := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	state, err := s.FetchSyncState(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("FetchSyncState failed: %v", err)
	}
	if state != nil {
		t.Errorf("expected nil state for absent record, got %+v", state)
	}
}
