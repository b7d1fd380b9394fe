package gtasks

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"testing"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

type fakeTaskSource struct {
	lists    []TaskList
	listsErr error
	tasks    map[string][]model.TaskItem
	tasksErr map[string]error
}

func (f *fakeTaskSource) ListTaskLists(ctx context.Context) ([]TaskList, error) {
	if f.listsErr != nil {
		return nil, f.listsErr
	}
	return f.lists, nil
}

func (f *fakeTaskSource) ListTasks(ctx context.Context, listID string) ([]model.TaskItem, error) {
	if err, ok := f.tasksErr[listID]; ok {
		return nil, err
	}
	return f.tasks[listID], nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func task(listID, id string) model.TaskItem {
	return model.TaskItem{
		ID:           id,
		Title:        "task " + id,
		Source:       model.SourceGoogle,
		RemoteListID: listID,
		RemoteTaskID: id,
	}
}

func TestFetchAllFlattensInListOrder(t *testing.T) {
	src := &fakeTaskSource{
		lists: []TaskList{{ID: "a"}, {ID: "b"}},
		tasks: map[string][]model.TaskItem{
			"a": {task("a", "a1"), task("a", "a2")},
			"b": {task("b", "b1")},
		},
	}

	agg := NewAggregator(src, discardLogger())
	got, err := agg.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}

	ids := make([]string, len(got))
	for i, task := range got {
		ids[i] = task.ID
	}
	if want := "a1,a2,b1"; strings.Join(ids, ",") != want {
		t.Errorf("flatten order = %v, want %s", ids, want)
	}
	for _, task := range got {
		if !task.HasRemoteIDs() {
			t.Errorf("task %s missing remote identifiers", task.ID)
		}
	}
}

func TestFetchAllPartialFailure(t *testing.T) {
	src := &fakeTaskSource{
		lists: []TaskList{{ID: "ok"}, {ID: "broken"}},
		tasks: map[string][]model.TaskItem{
			"ok": {task("ok", "t1")},
		},
		tasksErr: map[string]error{
			"broken": errors.New("list exploded"),
		},
	}

	agg := NewAggregator(src, discardLogger())
	got, err := agg.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("partial failure must not raise, got %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Errorf("got %+v, want surviving list's tasks", got)
	}
}

func TestFetchAllTotalFailure(t *testing.T) {
	src := &fakeTaskSource{
		lists: []TaskList{{ID: "a"}, {ID: "b"}},
		tasksErr: map[string]error{
			"a": errors.New("timeout on a"),
			"b": errors.New("quota on b"),
		},
	}

	agg := NewAggregator(src, discardLogger())
	_, err := agg.FetchAll(context.Background())
	var ae *AggregateError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AggregateError, got %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "timeout on a") || !strings.Contains(msg, "quota on b") {
		t.Errorf("aggregate error %q must contain every failure reason", msg)
	}
}

func TestFetchAllListDiscoveryFailure(t *testing.T) {
	src := &fakeTaskSource{listsErr: errors.New("lists unavailable")}
	agg := NewAggregator(src, discardLogger())
	if _, err := agg.FetchAll(context.Background()); err == nil {
		t.Fatal("expected error when list discovery fails")
	}
}

func TestFetchAllNoLists(t *testing.T) {
	agg := NewAggregator(&fakeTaskSource{}, discardLogger())
	got, err := agg.FetchAll(context.Background())
	if err != nil {
		t.Fatalf("FetchAll failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("got %d tasks from zero lists", len(got))
	}
}
