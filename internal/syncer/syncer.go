// Package syncer reconciles gamification state between the on-device store
// and the cloud profile store.
//
// The Coordinator is the only component allowed to read from both stores and
// write merged results back to both. It serializes full sync runs (at most
// one in flight), resolves pet conflicts last-write-wins by the pet's own
// interaction timestamp, and merges streaks field-wise by maximum. Local
// durability is the hard guarantee: a remote-store failure never aborts a
// local write that already succeeded, it only bumps the pending-change
// bookkeeping so the next full sync retries the propagation.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/store"
)

// ErrAlreadySyncing is returned when a full sync is requested while another
// is in flight. Callers must retry later; requests are not queued.
var ErrAlreadySyncing = errors.New("sync already in progress")

// LocalStore is the on-device persistence the coordinator reconciles.
type LocalStore interface {
	LoadPet(ctx context.Context) (*model.Pet, error)
	SavePet(ctx context.Context, pet *model.Pet) error
	LoadStreak(ctx context.Context) (*model.Streak, error)
	SaveStreak(ctx context.Context, streak *model.Streak) error
	LoadSyncState(ctx context.Context) (*model.SyncState, error)
	SaveSyncState(ctx context.Context, state *model.SyncState) error
}

// RemoteStore is the cloud per-user record store.
type RemoteStore interface {
	FetchPet(ctx context.Context, userID string) (*model.Pet, error)
	UpsertPet(ctx context.Context, userID string, pet *model.Pet) error
	FetchStreak(ctx context.Context, userID string) (*model.Streak, error)
	UpsertStreak(ctx context.Context, userID string, streak *model.Streak) error
	UpsertSyncState(ctx context.Context, userID string, state *model.SyncState) error
}

// Event describes a sync lifecycle transition, for observers such as the
// dashboard.
type Event struct {
	Kind     string          `json:"kind"`
	UserID   string          `json:"user_id,omitempty"`
	Failures int             `json:"failures,omitempty"`
	State    model.SyncState `json:"state"`
	At       time.Time       `json:"at"`
}

// Event kinds.
const (
	EventSyncStarted  = "sync_started"
	EventSyncFinished = "sync_finished"
	EventSaveQueued   = "save_queued"
)

// Coordinator orchestrates bidirectional reconciliation.
type Coordinator struct {
	local  LocalStore
	remote RemoteStore
	logger *log.Logger

	mu      sync.Mutex
	syncing bool

	// stateMu serializes every SyncState read-modify-write cycle. The
	// bookkeeping record has two writers, markPending and the tail of
	// PerformFullSync, and an unguarded interleaving would let a finishing
	// sync overwrite a pending mark recorded while it ran.
	stateMu sync.Mutex

	notifyMu sync.Mutex
	notify   func(Event)

	background sync.WaitGroup
}

// New creates a sync coordinator. If logger is nil, logs go to stderr.
func New(local LocalStore, remote RemoteStore, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.New(os.Stderr, "[sync] ", log.LstdFlags)
	}
	return &Coordinator{local: local, remote: remote, logger: logger}
}

// SetNotify installs an observer for sync lifecycle events.
func (c *Coordinator) SetNotify(fn func(Event)) {
	c.notifyMu.Lock()
	c.notify = fn
	c.notifyMu.Unlock()
}

func (c *Coordinator) emit(ev Event) {
	c.notifyMu.Lock()
	fn := c.notify
	c.notifyMu.Unlock()
	if fn != nil {
		ev.At = time.Now().UTC()
		fn(ev)
	}
}

// begin atomically claims the in-flight slot.
func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.syncing {
		return ErrAlreadySyncing
	}
	c.syncing = true
	return nil
}

func (c *Coordinator) end() {
	c.mu.Lock()
	c.syncing = false
	c.mu.Unlock()
}

// PerformFullSync reconciles pet and streak state with the remote store.
// A second concurrent call is rejected with ErrAlreadySyncing before any
// network I/O happens. Per-entity failures are counted and reflected in the
// resulting sync status, not raised.
func (c *Coordinator) PerformFullSync(ctx context.Context, userID string) error {
	if err := c.begin(); err != nil {
		return err
	}
	defer c.end()

	state, err := c.local.LoadSyncState(ctx)
	if err != nil {
		return fmt.Errorf("failed to load sync state: %w", err)
	}
	pendingAtStart := state.PendingChanges
	c.emit(Event{Kind: EventSyncStarted, UserID: userID, State: *state})

	failures := 0
	if err := c.syncPet(ctx, userID); err != nil {
		c.logger.Printf("Warning: pet sync failed: %v", err)
		failures++
	}
	if err := c.syncStreak(ctx, userID); err != nil {
		c.logger.Printf("Warning: streak sync failed: %v", err)
		failures++
	}

	state, err = c.finishSync(ctx, pendingAtStart, failures)
	if err != nil {
		return err
	}
	if err := c.remote.UpsertSyncState(ctx, userID, state); err != nil {
		c.logger.Printf("Warning: failed to mirror sync state: %v", err)
	}

	c.emit(Event{Kind: EventSyncFinished, UserID: userID, Failures: failures, State: *state})
	return nil
}

// finishSync writes the post-sync bookkeeping record. It re-loads the state
// under stateMu so pending marks recorded while the sync ran are carried
// forward instead of being clobbered; only the marks the sync started with
// are considered settled.
func (c *Coordinator) finishSync(ctx context.Context, pendingAtStart, failures int) (*model.SyncState, error) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	state, err := c.local.LoadSyncState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to reload sync state: %w", err)
	}

	carried := state.PendingChanges - pendingAtStart
	if carried < 0 {
		carried = 0
	}

	now := time.Now().UTC()
	state.LastSyncTime = &now
	state.PendingChanges = carried
	if failures == 0 && carried == 0 {
		state.Status = model.StatusSynced
	} else {
		state.Status = model.StatusPending
	}

	if err := c.local.SaveSyncState(ctx, state); err != nil {
		return nil, fmt.Errorf("failed to persist sync state: %w", err)
	}
	return state, nil
}

// syncPet resolves pet divergence last-write-wins by LastInteraction.
func (c *Coordinator) syncPet(ctx context.Context, userID string) error {
	local, err := c.local.LoadPet(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load local pet: %w", err)
	}
	remote, err := c.remote.FetchPet(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote pet: %w", err)
	}

	switch {
	case local == nil && remote == nil:
		return nil
	case local == nil:
		return c.local.SavePet(ctx, remote)
	case remote == nil:
		return c.remote.UpsertPet(ctx, userID, local)
	case remote.LastInteraction.After(local.LastInteraction):
		return c.local.SavePet(ctx, remote)
	default:
		return c.remote.UpsertPet(ctx, userID, local)
	}
}

// syncStreak merges both replicas field-wise by maximum and writes the
// result back to both stores so they converge.
func (c *Coordinator) syncStreak(ctx context.Context, userID string) error {
	local, err := c.local.LoadStreak(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load local streak: %w", err)
	}
	remote, err := c.remote.FetchStreak(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to fetch remote streak: %w", err)
	}

	merged := model.MergeStreaks(local, remote)
	if merged == nil {
		return nil
	}
	if err := c.local.SaveStreak(ctx, merged); err != nil {
		return fmt.Errorf("failed to save merged streak: %w", err)
	}
	if err := c.remote.UpsertStreak(ctx, userID, merged); err != nil {
		return fmt.Errorf("failed to upsert merged streak: %w", err)
	}
	return nil
}

// SavePet writes through to the local store, then pushes to the remote
// store best-effort. A remote failure is recorded as a pending change, not
// surfaced.
func (c *Coordinator) SavePet(ctx context.Context, userID string, pet *model.Pet) error {
	if err := c.local.SavePet(ctx, pet); err != nil {
		return fmt.Errorf("failed to save pet locally: %w", err)
	}
	if err := c.remote.UpsertPet(ctx, userID, pet); err != nil {
		c.logger.Printf("Warning: pet remote push failed, queued for next sync: %v", err)
		c.markPending(ctx, userID)
	}
	return nil
}

// SaveStreak writes through to the local store, then pushes to the remote
// store best-effort.
func (c *Coordinator) SaveStreak(ctx context.Context, userID string, streak *model.Streak) error {
	if err := c.local.SaveStreak(ctx, streak); err != nil {
		return fmt.Errorf("failed to save streak locally: %w", err)
	}
	if err := c.remote.UpsertStreak(ctx, userID, streak); err != nil {
		c.logger.Printf("Warning: streak remote push failed, queued for next sync: %v", err)
		c.markPending(ctx, userID)
	}
	return nil
}

// markPending bumps the pending-change counter after a failed remote push.
func (c *Coordinator) markPending(ctx context.Context, userID string) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()

	state, err := c.local.LoadSyncState(ctx)
	if err != nil {
		c.logger.Printf("Warning: failed to load sync state for bookkeeping: %v", err)
		return
	}
	state.PendingChanges++
	state.Status = model.StatusPending
	if err := c.local.SaveSyncState(ctx, state); err != nil {
		c.logger.Printf("Warning: failed to persist pending-change count: %v", err)
		return
	}
	c.emit(Event{Kind: EventSaveQueued, UserID: userID, State: *state})
}

// LoadPet returns the local snapshot immediately and kicks off a detached
// background reconciliation; the caller never blocks on remote latency.
func (c *Coordinator) LoadPet(ctx context.Context, userID string) (*model.Pet, error) {
	pet, err := c.local.LoadPet(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	c.reconcileInBackground(userID)
	return pet, nil
}

// LoadStreak returns the local snapshot immediately and kicks off a
// detached background reconciliation.
func (c *Coordinator) LoadStreak(ctx context.Context, userID string) (*model.Streak, error) {
	streak, err := c.local.LoadStreak(ctx)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	c.reconcileInBackground(userID)
	return streak, nil
}

// reconcileInBackground runs a full sync on a detached task. Failures are
// logged, never surfaced; an in-flight sync makes this a no-op.
func (c *Coordinator) reconcileInBackground(userID string) {
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := c.PerformFullSync(ctx, userID); err != nil && !errors.Is(err, ErrAlreadySyncing) {
			c.logger.Printf("Warning: background reconciliation failed: %v", err)
		}
	}()
}

// Wait blocks until all detached background reconciliations finish.
func (c *Coordinator) Wait() {
	c.background.Wait()
}

// State returns the current bookkeeping record.
func (c *Coordinator) State(ctx context.Context) (*model.SyncState, error) {
	return c.local.LoadSyncState(ctx)
}
