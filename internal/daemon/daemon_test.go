package daemon

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/outbox"
)

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSyncer) PerformFullSync(ctx context.Context, userID string) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return nil
}

func (f *fakeSyncer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePusher struct {
	mu     sync.Mutex
	pushed []string
	fail   bool
}

func (f *fakePusher) Push(ctx context.Context, entry *outbox.Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("push failed")
	}
	f.pushed = append(f.pushed, entry.Kind)
	return nil
}

func testConfig() *Config {
	return &Config{
		UserID:           "user-1",
		Schedule:         "@every 1h",
		DebounceInterval: 10 * time.Millisecond,
		Logger:           log.New(io.Discard, "", 0),
	}
}

func newTestDaemon(t *testing.T, spool *outbox.Outbox, pusher Pusher) (*Daemon, *fakeSyncer) {
	t.Helper()
	syncer := &fakeSyncer{}
	d, err := New(spool, syncer, nil, pusher, testConfig())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return d, syncer
}

func TestDrainOutboxDeliversAndRemoves(t *testing.T) {
	spool, err := outbox.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("outbox.New failed: %v", err)
	}
	if err := spool.Enqueue(outbox.KindPet, "user-1", model.NewPet("Waffle", "they/them")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pusher := &fakePusher{}
	d, _ := newTestDaemon(t, spool, pusher)
	d.DrainOutbox(context.Background())

	if len(pusher.pushed) != 1 || pusher.pushed[0] != outbox.KindPet {
		t.Errorf("pushed = %v, want [pet]", pusher.pushed)
	}
	n, err := spool.Len()
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 0 {
		t.Errorf("spool has %d entries after drain, want 0", n)
	}
}

func TestDrainOutboxKeepsFailedEntries(t *testing.T) {
	spool, err := outbox.New(t.TempDir(), 5)
	if err != nil {
		t.Fatalf("outbox.New failed: %v", err)
	}
	if err := spool.Enqueue(outbox.KindStreak, "user-1", &model.Streak{Current: 2}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	pusher := &fakePusher{fail: true}
	d, _ := newTestDaemon(t, spool, pusher)
	d.DrainOutbox(context.Background())

	entries, err := spool.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("spool has %d entries, want the failed one retained", len(entries))
	}
	if entries[0].RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", entries[0].RetryCount)
	}
}

func TestStartRunsInitialSyncAndDrainsOnFileEvents(t *testing.T) {
	spool, err := outbox.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("outbox.New failed: %v", err)
	}
	pusher := &fakePusher{}
	d, syncer := newTestDaemon(t, spool, pusher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	// Wait for the initial sync pass.
	deadline := time.After(2 * time.Second)
	for syncer.callCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial sync never ran")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Enqueue through the spool; the watcher should pick it up and drain.
	if err := spool.Enqueue(outbox.KindPet, "user-1", model.NewPet("Waffle", "they/them")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	deadline = time.After(2 * time.Second)
	for {
		pusher.mu.Lock()
		n := len(pusher.pushed)
		pusher.mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("outbox entry was never drained after the file event")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
}

func TestEntryPusherDispatch(t *testing.T) {
	profiles := &recordingProfileWriter{}
	tasks := &recordingTaskWriter{}
	p := NewEntryPusher(profiles, tasks)

	spool, err := outbox.New(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("outbox.New failed: %v", err)
	}
	if err := spool.Enqueue(outbox.KindPet, "user-1", model.NewPet("Waffle", "they/them")); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := spool.Enqueue(outbox.KindStreak, "user-1", &model.Streak{Current: 4}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}
	if err := spool.Enqueue(outbox.KindTaskCompletion, "user-1", outbox.TaskCompletion{
		ListID: "list-a", TaskID: "t1", Completed: true,
	}); err != nil {
		t.Fatalf("Enqueue failed: %v", err)
	}

	entries, err := spool.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	for _, entry := range entries {
		if err := p.Push(context.Background(), entry); err != nil {
			t.Fatalf("Push %s failed: %v", entry.Kind, err)
		}
	}

	if profiles.pet == nil || profiles.pet.Name != "Waffle" {
		t.Errorf("pet not delivered: %+v", profiles.pet)
	}
	if profiles.streak == nil || profiles.streak.Current != 4 {
		t.Errorf("streak not delivered: %+v", profiles.streak)
	}
	if !tasks.completed || tasks.task.RemoteListID != "list-a" || tasks.task.RemoteTaskID != "t1" {
		t.Errorf("task completion not delivered: %+v", tasks.task)
	}
}

type recordingProfileWriter struct {
	pet    *model.Pet
	streak *model.Streak
}

func (r *recordingProfileWriter) UpsertPet(ctx context.Context, userID string, pet *model.Pet) error {
	r.pet = pet
	return nil
}

func (r *recordingProfileWriter) UpsertStreak(ctx context.Context, userID string, streak *model.Streak) error {
	r.streak = streak
	return nil
}

type recordingTaskWriter struct {
	task      model.TaskItem
	completed bool
}

func (r *recordingTaskWriter) SetCompletion(ctx context.Context, task model.TaskItem, completed bool) error {
	r.task = task
	r.completed = completed
	return nil
}
