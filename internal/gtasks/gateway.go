// Package gtasks talks to the Google Tasks REST API.
//
// The Gateway covers paginated task-list and task fetches plus per-task
// create, delete, and completion-toggle calls. The Aggregator flattens every
// list into one task collection, attaching the remote list/task identifier
// pair so later completion pushes know what to PATCH.
package gtasks

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/LJMStark/outku3-sub001/internal/httpx"
	"github.com/LJMStark/outku3-sub001/internal/model"
)

// ErrMissingRemoteIDs is a precondition failure: the task was never linked to
// a remote list and must be created there before its completion state can be
// pushed.
var ErrMissingRemoteIDs = errors.New("task has no remote list/task identifiers")

// DefaultPageCap bounds pagination loops.
const DefaultPageCap = 50

// DefaultMaxResults is the per-page item count requested from the provider.
const DefaultMaxResults = 100

// Config holds the gateway's endpoint parameters.
type Config struct {
	// BaseURL is the API root, e.g. https://tasks.googleapis.com/tasks/v1.
	BaseURL string
	// MaxResults per page. Zero means DefaultMaxResults.
	MaxResults int
	// PageCap bounds pagination. Zero means DefaultPageCap.
	PageCap int
}

// TaskList is one entry from the user's task lists.
type TaskList struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Gateway fetches and mutates tasks through the provider API.
type Gateway struct {
	client *httpx.Client
	tokens httpx.TokenSource
	cfg    Config
	logger *log.Logger
}

// NewGateway creates a task gateway. If logger is nil, logs go to stderr.
func NewGateway(client *httpx.Client, tokens httpx.TokenSource, cfg Config, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(os.Stderr, "[gtasks] ", log.LstdFlags)
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultMaxResults
	}
	if cfg.PageCap <= 0 {
		cfg.PageCap = DefaultPageCap
	}
	return &Gateway{client: client, tokens: tokens, cfg: cfg, logger: logger}
}

// Wire types for the provider's JSON responses.

type taskItem struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Notes     string `json:"notes,omitempty"`
	Status    string `json:"status"`
	Due       string `json:"due,omitempty"`
	Completed string `json:"completed,omitempty"`
	Updated   string `json:"updated,omitempty"`
}

type tasksResponse struct {
	Items         []taskItem `json:"items"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

type taskListsResponse struct {
	Items         []TaskList `json:"items"`
	NextPageToken string     `json:"nextPageToken,omitempty"`
}

// ListTaskLists fetches the user's task lists, following pagination up to
// the page cap.
func (g *Gateway) ListTaskLists(ctx context.Context) ([]TaskList, error) {
	var (
		lists     []TaskList
		pageToken string
	)
	for page := 0; page < g.cfg.PageCap; page++ {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(g.cfg.MaxResults))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s/users/@me/lists?%s", g.cfg.BaseURL, params.Encode())

		var resp taskListsResponse
		if err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "GET", URL: endpoint}, g.tokens, &resp); err != nil {
			return nil, fmt.Errorf("failed to list task lists: %w", err)
		}
		lists = append(lists, resp.Items...)
		if resp.NextPageToken == "" {
			return lists, nil
		}
		pageToken = resp.NextPageToken
	}
	return lists, nil
}

// ListTasks fetches every task in the list, following pagination up to the
// page cap. The remote list identifier is stamped onto each returned task.
func (g *Gateway) ListTasks(ctx context.Context, listID string) ([]model.TaskItem, error) {
	var (
		tasks     []model.TaskItem
		pageToken string
	)
	for page := 0; page < g.cfg.PageCap; page++ {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(g.cfg.MaxResults))
		params.Set("showCompleted", "true")
		params.Set("showHidden", "true")
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s/lists/%s/tasks?%s", g.cfg.BaseURL, url.PathEscape(listID), params.Encode())

		var resp tasksResponse
		if err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "GET", URL: endpoint}, g.tokens, &resp); err != nil {
			return nil, fmt.Errorf("failed to list tasks for %s: %w", listID, err)
		}
		for _, item := range resp.Items {
			task, err := convertTask(item, listID)
			if err != nil {
				g.logger.Printf("Warning: skipping task %s in %s: %v", item.ID, listID, err)
				continue
			}
			tasks = append(tasks, task)
		}
		if resp.NextPageToken == "" {
			return tasks, nil
		}
		pageToken = resp.NextPageToken
	}
	g.logger.Printf("Warning: task list %s pagination hit the %d page cap, returning partial results", listID, g.cfg.PageCap)
	return tasks, nil
}

// CreateTask creates a task in the remote list and returns it with the
// provider-assigned identifiers attached.
func (g *Gateway) CreateTask(ctx context.Context, listID string, task model.TaskItem) (model.TaskItem, error) {
	body := map[string]string{
		"title": task.Title,
	}
	if task.Notes != "" {
		body["notes"] = task.Notes
	}
	if task.Due != nil {
		body["due"] = task.Due.UTC().Format(time.RFC3339)
	}

	endpoint := fmt.Sprintf("%s/lists/%s/tasks", g.cfg.BaseURL, url.PathEscape(listID))
	var created taskItem
	if err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "POST", URL: endpoint, Body: body}, g.tokens, &created); err != nil {
		return model.TaskItem{}, fmt.Errorf("failed to create task in %s: %w", listID, err)
	}
	return convertTask(created, listID)
}

// DeleteTask removes the task from its remote list.
func (g *Gateway) DeleteTask(ctx context.Context, listID, taskID string) error {
	endpoint := fmt.Sprintf("%s/lists/%s/tasks/%s", g.cfg.BaseURL, url.PathEscape(listID), url.PathEscape(taskID))
	if err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "DELETE", URL: endpoint}, g.tokens, &httpx.NoContent{}); err != nil {
		return fmt.Errorf("failed to delete task %s: %w", taskID, err)
	}
	return nil
}

// SetCompletion pushes the task's completion state upstream with a single
// idempotent PATCH. A task without remote identifiers is a precondition
// failure, not a network error.
func (g *Gateway) SetCompletion(ctx context.Context, task model.TaskItem, completed bool) error {
	if !task.HasRemoteIDs() {
		return fmt.Errorf("%w: %s", ErrMissingRemoteIDs, task.ID)
	}

	body := map[string]any{}
	if completed {
		body["status"] = "completed"
		body["completed"] = time.Now().UTC().Format(time.RFC3339)
	} else {
		body["status"] = "needsAction"
		body["completed"] = nil
	}

	endpoint := fmt.Sprintf("%s/lists/%s/tasks/%s", g.cfg.BaseURL, url.PathEscape(task.RemoteListID), url.PathEscape(task.RemoteTaskID))
	var updated taskItem
	if err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "PATCH", URL: endpoint, Body: body}, g.tokens, &updated); err != nil {
		return fmt.Errorf("failed to update task %s: %w", task.RemoteTaskID, err)
	}
	return nil
}

// convertTask maps a wire item onto the domain task type.
func convertTask(item taskItem, listID string) (model.TaskItem, error) {
	if item.ID == "" {
		return model.TaskItem{}, errors.New("missing task id")
	}

	task := model.TaskItem{
		ID:           item.ID,
		Title:        item.Title,
		Notes:        item.Notes,
		Completed:    item.Status == "completed",
		Source:       model.SourceGoogle,
		RemoteListID: listID,
		RemoteTaskID: item.ID,
	}
	if item.Due != "" {
		due, err := time.Parse(time.RFC3339, item.Due)
		if err != nil {
			return model.TaskItem{}, fmt.Errorf("bad due time: %w", err)
		}
		task.Due = &due
	}
	if item.Updated != "" {
		updated, err := time.Parse(time.RFC3339, item.Updated)
		if err == nil {
			task.LastModified = updated
		}
	}
	return task, nil
}
