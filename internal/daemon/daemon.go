// Package daemon runs the background sync loop.
//
// The daemon:
// 1. Watches the outbox spool for queued remote pushes and drains it
// 2. Runs scheduled full syncs and remote collection refreshes on a cron
// 3. Handles graceful shutdown
package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"github.com/LJMStark/outku3-sub001/internal/outbox"
)

// Syncer is the slice of the sync coordinator the daemon drives.
type Syncer interface {
	PerformFullSync(ctx context.Context, userID string) error
}

// Refresher re-fetches the externally sourced collections (events, tasks)
// into the local store. May be nil when the daemon only reconciles profile
// state.
type Refresher interface {
	RefreshEvents(ctx context.Context) error
	RefreshTasks(ctx context.Context) error
}

// Pusher delivers one outbox entry to its remote destination.
type Pusher interface {
	Push(ctx context.Context, entry *outbox.Entry) error
}

// Config holds configuration for the daemon.
type Config struct {
	// UserID identifies whose profile state to reconcile.
	UserID string

	// Schedule is the cron expression for periodic full syncs.
	Schedule string

	// DebounceInterval is how long to wait before draining after an outbox
	// file event. This batches rapid enqueues together.
	DebounceInterval time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Schedule:         "@every 5m",
		DebounceInterval: 200 * time.Millisecond,
		Logger:           log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates outbox draining and scheduled syncs.
type Daemon struct {
	spool   *outbox.Outbox
	syncer  Syncer
	refresh Refresher
	pusher  Pusher
	config  *Config

	watcher *fsnotify.Watcher
	cron    *cron.Cron

	changeMu  sync.Mutex
	changedAt time.Time
	dirty     bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon. refresh may be nil.
func New(spool *outbox.Outbox, syncer Syncer, refresh Refresher, pusher Pusher, config *Config) (*Daemon, error) {
	if spool == nil {
		return nil, fmt.Errorf("spool cannot be nil")
	}
	if syncer == nil {
		return nil, fmt.Errorf("syncer cannot be nil")
	}
	if pusher == nil {
		return nil, fmt.Errorf("pusher cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Logger == nil {
		config.Logger = log.New(os.Stderr, "[daemon] ", log.LstdFlags)
	}
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = 200 * time.Millisecond
	}
	if config.Schedule == "" {
		config.Schedule = "@every 5m"
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Daemon{
		spool:   spool,
		syncer:  syncer,
		refresh: refresh,
		pusher:  pusher,
		config:  config,
		watcher: watcher,
		cron:    cron.New(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Start begins the daemon's operation. It performs an initial sync and
// drain, then blocks until ctx is cancelled.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	d.runScheduledSync()

	if err := d.watcher.Add(d.spool.Dir()); err != nil {
		return fmt.Errorf("failed to watch outbox directory: %w", err)
	}
	d.config.Logger.Printf("Watching outbox: %s", d.spool.Dir())

	if _, err := d.cron.AddFunc(d.config.Schedule, d.runScheduledSync); err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", d.config.Schedule, err)
	}
	d.cron.Start()

	d.wg.Add(2)
	go d.watchOutboxEvents()
	go d.drainLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts down the daemon.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	<-d.cron.Stop().Done()

	if err := d.watcher.Close(); err != nil {
		d.config.Logger.Printf("Error closing watcher: %v", err)
	}

	d.wg.Wait()
	d.config.Logger.Println("Daemon stopped")
	return nil
}

// runScheduledSync performs one full reconciliation pass: drain the outbox,
// run a full profile sync, and refresh the remote collections.
func (d *Daemon) runScheduledSync() {
	ctx, cancel := context.WithTimeout(d.ctx, 5*time.Minute)
	defer cancel()

	d.DrainOutbox(ctx)

	if err := d.syncer.PerformFullSync(ctx, d.config.UserID); err != nil {
		d.config.Logger.Printf("Warning: scheduled sync failed: %v", err)
	}

	if d.refresh != nil {
		if err := d.refresh.RefreshEvents(ctx); err != nil {
			d.config.Logger.Printf("Warning: event refresh failed: %v", err)
		}
		if err := d.refresh.RefreshTasks(ctx); err != nil {
			d.config.Logger.Printf("Warning: task refresh failed: %v", err)
		}
	}
}

// watchOutboxEvents monitors filesystem events and marks the spool dirty.
func (d *Daemon) watchOutboxEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}
			d.markDirty()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (d *Daemon) markDirty() {
	d.changeMu.Lock()
	d.dirty = true
	d.changedAt = time.Now()
	d.changeMu.Unlock()
}

// drainLoop drains the outbox once file events have settled for a debounce
// interval.
func (d *Daemon) drainLoop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return

		case <-ticker.C:
			d.changeMu.Lock()
			ready := d.dirty && time.Since(d.changedAt) >= d.config.DebounceInterval
			if ready {
				d.dirty = false
			}
			d.changeMu.Unlock()

			if ready {
				ctx, cancel := context.WithTimeout(d.ctx, time.Minute)
				d.DrainOutbox(ctx)
				cancel()
			}
		}
	}
}

// DrainOutbox attempts to deliver every queued entry. Delivered entries are
// removed; failed entries have their retry budget decremented and are
// dropped once it is exhausted.
func (d *Daemon) DrainOutbox(ctx context.Context) {
	entries, err := d.spool.List()
	if err != nil {
		d.config.Logger.Printf("Warning: failed to list outbox: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	d.config.Logger.Printf("Draining %d outbox entries", len(entries))
	for _, entry := range entries {
		if err := d.pusher.Push(ctx, entry); err != nil {
			d.config.Logger.Printf("Warning: push failed for %s entry: %v", entry.Kind, err)
			dropped, merr := d.spool.MarkFailed(entry)
			if merr != nil {
				d.config.Logger.Printf("Warning: failed to record retry: %v", merr)
			} else if dropped {
				d.config.Logger.Printf("Dropping %s entry after %d attempts", entry.Kind, entry.RetryCount)
			}
			continue
		}
		if err := d.spool.Remove(entry); err != nil {
			d.config.Logger.Printf("Warning: failed to remove delivered entry: %v", err)
		}
	}
}
