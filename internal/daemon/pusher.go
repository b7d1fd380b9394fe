package daemon

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/LJMStark/outku3-sub001/internal/model"
	"github.com/LJMStark/outku3-sub001/internal/outbox"
)

// ProfileWriter is the slice of the remote profile store the pusher needs.
type ProfileWriter interface {
	UpsertPet(ctx context.Context, userID string, pet *model.Pet) error
	UpsertStreak(ctx context.Context, userID string, streak *model.Streak) error
}

// TaskWriter pushes completion toggles to the remote task provider.
type TaskWriter interface {
	SetCompletion(ctx context.Context, task model.TaskItem, completed bool) error
}

// EntryPusher delivers outbox entries to their remote destinations.
type EntryPusher struct {
	profiles ProfileWriter
	tasks    TaskWriter
}

// NewEntryPusher creates a pusher over the remote stores.
func NewEntryPusher(profiles ProfileWriter, tasks TaskWriter) *EntryPusher {
	return &EntryPusher{profiles: profiles, tasks: tasks}
}

// Push delivers one entry according to its kind.
func (p *EntryPusher) Push(ctx context.Context, entry *outbox.Entry) error {
	switch entry.Kind {
	case outbox.KindPet:
		var pet model.Pet
		if err := json.Unmarshal(entry.Payload, &pet); err != nil {
			return fmt.Errorf("bad pet payload: %w", err)
		}
		return p.profiles.UpsertPet(ctx, entry.UserID, &pet)

	case outbox.KindStreak:
		var streak model.Streak
		if err := json.Unmarshal(entry.Payload, &streak); err != nil {
			return fmt.Errorf("bad streak payload: %w", err)
		}
		return p.profiles.UpsertStreak(ctx, entry.UserID, &streak)

	case outbox.KindTaskCompletion:
		var tc outbox.TaskCompletion
		if err := json.Unmarshal(entry.Payload, &tc); err != nil {
			return fmt.Errorf("bad task completion payload: %w", err)
		}
		task := model.TaskItem{
			ID:           tc.TaskID,
			RemoteListID: tc.ListID,
			RemoteTaskID: tc.TaskID,
		}
		return p.tasks.SetCompletion(ctx, task, tc.Completed)

	default:
		return fmt.Errorf("unknown entry kind: %s", entry.Kind)
	}
}
