package gtasks

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LJMStark/outku3-sub001/internal/model"
)

// TaskSource is the slice of the gateway the aggregator needs, split out so
// tests can substitute a fake.
type TaskSource interface {
	ListTaskLists(ctx context.Context) ([]TaskList, error)
	ListTasks(ctx context.Context, listID string) ([]model.TaskItem, error)
}

// AggregateError reports that every task list fetch failed.
type AggregateError struct {
	Failures map[string]error
}

func (e *AggregateError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for id := range e.Failures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Failures[id]))
	}
	return "all task list fetches failed: " + strings.Join(parts, "; ")
}

// Aggregator flattens every remote task list into one collection.
type Aggregator struct {
	source TaskSource
	logger *log.Logger
}

// NewAggregator creates a multi-list aggregator. If logger is nil, logs go
// to stderr.
func NewAggregator(source TaskSource, logger *log.Logger) *Aggregator {
	if logger == nil {
		logger = log.New(os.Stderr, "[gtasks] ", log.LstdFlags)
	}
	return &Aggregator{source: source, logger: logger}
}

// FetchAll fetches the set of task lists, then every list's tasks
// concurrently, and flattens the results in list order. Individual list
// failures are tolerated; only when every list fails does the call return
// an error.
func (a *Aggregator) FetchAll(ctx context.Context) ([]model.TaskItem, error) {
	lists, err := a.source.ListTaskLists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover task lists: %w", err)
	}
	if len(lists) == 0 {
		return nil, nil
	}

	var (
		mu       sync.Mutex
		perList  = make([][]model.TaskItem, len(lists))
		failures = make(map[string]error)
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, list := range lists {
		g.Go(func() error {
			tasks, err := a.source.ListTasks(gctx, list.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Printf("Warning: task list %s fetch failed: %v", list.ID, err)
				failures[list.ID] = err
				return nil
			}
			perList[i] = tasks
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == len(lists) {
		return nil, &AggregateError{Failures: failures}
	}

	// Flatten in list order so the combined result is deterministic
	// regardless of fetch completion order.
	var all []model.TaskItem
	for _, tasks := range perList {
		all = append(all, tasks...)
	}
	return all, nil
}
