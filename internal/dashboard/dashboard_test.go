package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/syncer"
)

type fakeStatus struct {
	state model.SyncState
}

func (f *fakeStatus) State(ctx context.Context) (*model.SyncState, error) {
	copied := f.state
	return &copied, nil
}

type fakeQueue struct{ n int }

func (f *fakeQueue) Len() (int, error) { return f.n, nil }

func startTestServer(t *testing.T, status StatusSource, queue QueueSource) *Server {
	t.Helper()
	s := NewServer(status, queue, &Config{Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := s.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Stop(); err != nil {
			t.Errorf("Stop failed: %v", err)
		}
	})
	return s
}

func TestStatusEndpoint(t *testing.T) {
	status := &fakeStatus{state: model.SyncState{Status: model.StatusPending, PendingChanges: 3}}
	s := startTestServer(t, status, &fakeQueue{n: 2})

	resp, err := http.Get(fmt.Sprintf("http://%s/status", s.GetAddr()))
	if err != nil {
		t.Fatalf("GET /status failed: %v", err)
	}
	defer resp.Body.Close()

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.State.Status != model.StatusPending || got.State.PendingChanges != 3 {
		t.Errorf("state = %+v", got.State)
	}
	if got.QueuedPushes != 2 {
		t.Errorf("QueuedPushes = %d, want 2", got.QueuedPushes)
	}
}

func TestHealthEndpoint(t *testing.T) {
	s := startTestServer(t, &fakeStatus{}, nil)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", s.GetAddr()))
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got["status"] != "ok" {
		t.Errorf("health = %v", got)
	}
}

func TestWebSocketBroadcast(t *testing.T) {
	s := startTestServer(t, &fakeStatus{}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, fmt.Sprintf("ws://%s/ws", s.GetAddr()), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame is the welcome status snapshot.
	_, welcome, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read welcome failed: %v", err)
	}
	var welcomeMsg Message
	if err := json.Unmarshal(welcome, &welcomeMsg); err != nil {
		t.Fatalf("welcome unmarshal failed: %v", err)
	}
	if welcomeMsg.Type != MessageTypeStatus {
		t.Errorf("welcome type = %s, want status", welcomeMsg.Type)
	}

	handler := NewHandler(s, log.New(io.Discard, "", 0))
	handler.OnSyncEvent(syncer.Event{
		Kind:   syncer.EventSyncFinished,
		UserID: "user-1",
		State:  model.SyncState{Status: model.StatusSynced},
	})

	_, frame, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read broadcast failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		t.Fatalf("broadcast unmarshal failed: %v", err)
	}
	if msg.Type != MessageTypeSyncFinished {
		t.Errorf("broadcast type = %s, want sync_finished", msg.Type)
	}

	var ev syncer.Event
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		t.Fatalf("event unmarshal failed: %v", err)
	}
	if ev.UserID != "user-1" || ev.State.Status != model.StatusSynced {
		t.Errorf("event = %+v", ev)
	}
}
