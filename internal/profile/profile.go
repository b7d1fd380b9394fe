// Package profile talks to the cloud per-user record store.
//
// Pet, streak, and sync-state records are kept in a PostgREST-style API
// keyed by an opaque user identifier. Upserts resolve conflicts with the
// store's own latest-write semantics; the sync coordinator performs its
// conflict comparison before calling upsert, so the store never needs to.
package profile

import (
	"context"
	"fmt"
	"net/url"

	"github.com/LJMStark/outku3-sub001/internal/httpx"
	"github.com/LJMStark/outku3-sub001/internal/model"
)

// Config holds the record store endpoint parameters.
type Config struct {
	// BaseURL is the REST root, e.g. https://project.supabase.co/rest/v1.
	BaseURL string
	// APIKey is the project API key sent on every request.
	APIKey string
}

// Store is the remote per-user record store.
type Store struct {
	client *httpx.Client
	tokens httpx.TokenSource
	cfg    Config
}

// NewStore creates a remote profile store.
func NewStore(client *httpx.Client, tokens httpx.TokenSource, cfg Config) *Store {
	return &Store{client: client, tokens: tokens, cfg: cfg}
}

type petRow struct {
	UserID string `json:"user_id"`
	model.Pet
}

type streakRow struct {
	UserID string `json:"user_id"`
	model.Streak
}

type syncStateRow struct {
	UserID string `json:"user_id"`
	model.SyncState
}

func (s *Store) headers() map[string]string {
	return map[string]string{"apikey": s.cfg.APIKey}
}

func (s *Store) upsert(ctx context.Context, table string, row any) error {
	h := s.headers()
	h["Prefer"] = "resolution=merge-duplicates"
	endpoint := fmt.Sprintf("%s/%s?on_conflict=user_id", s.cfg.BaseURL, table)
	req := httpx.Request{Method: "POST", URL: endpoint, Header: h, Body: row}
	if err := s.client.DoAuthenticated(ctx, req, s.tokens, &httpx.NoContent{}); err != nil {
		return fmt.Errorf("failed to upsert %s record: %w", table, err)
	}
	return nil
}

func (s *Store) selectRows(ctx context.Context, table, userID string, out any) error {
	params := url.Values{}
	params.Set("user_id", "eq."+userID)
	params.Set("select", "*")
	endpoint := fmt.Sprintf("%s/%s?%s", s.cfg.BaseURL, table, params.Encode())
	req := httpx.Request{Method: "GET", URL: endpoint, Header: s.headers()}
	if err := s.client.DoAuthenticated(ctx, req, s.tokens, out); err != nil {
		return fmt.Errorf("failed to fetch %s record: %w", table, err)
	}
	return nil
}

// UpsertPet writes the user's pet record.
func (s *Store) UpsertPet(ctx context.Context, userID string, pet *model.Pet) error {
	return s.upsert(ctx, "pets", petRow{UserID: userID, Pet: *pet})
}

// FetchPet reads the user's pet record. A user without one yields (nil, nil).
func (s *Store) FetchPet(ctx context.Context, userID string) (*model.Pet, error) {
	var rows []petRow
	if err := s.selectRows(ctx, "pets", userID, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	pet := rows[0].Pet
	return &pet, nil
}

// UpsertStreak writes the user's streak record.
func (s *Store) UpsertStreak(ctx context.Context, userID string, streak *model.Streak) error {
	return s.upsert(ctx, "streaks", streakRow{UserID: userID, Streak: *streak})
}

// FetchStreak reads the user's streak record. Absent yields (nil, nil).
func (s *Store) FetchStreak(ctx context.Context, userID string) (*model.Streak, error) {
	var rows []streakRow
	if err := s.selectRows(ctx, "streaks", userID, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	streak := rows[0].Streak
	return &streak, nil
}

// UpsertSyncState mirrors the bookkeeping record to the cloud.
func (s *Store) UpsertSyncState(ctx context.Context, userID string, state *model.SyncState) error {
	return s.upsert(ctx, "sync_states", syncStateRow{UserID: userID, SyncState: *state})
}

// FetchSyncState reads the mirrored bookkeeping record. Absent yields
// (nil, nil).
func (s *Store) FetchSyncState(ctx context.Context, userID string) (*model.SyncState, error) {
	var rows []syncStateRow
	if err := s.selectRows(ctx, "sync_states", userID, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	state := rows[0].SyncState
	return &state, nil
}
