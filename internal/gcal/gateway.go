// Package gcal talks to the Google Calendar REST API.
//
// The Gateway fetches calendar metadata and paginated event listings for one
// calendar at a time, in either full (time-range) or incremental (sync-token)
// mode. The Aggregator fans out over every calendar the user has exposed and
// merges the results into one deduplicated timeline.
package gcal

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

// ErrSyncTokenExpired signals that the provider invalidated the incremental
// sync cursor. It is a recoverable instruction to fall back to a full fetch,
// not a failure.
var ErrSyncTokenExpired = errors.New("sync token expired")

// DefaultPageCap bounds pagination loops so a server that never returns a
// final page cannot spin the client forever.
const DefaultPageCap = 50

// DefaultMaxResults is the per-page item count requested from the provider.
const DefaultMaxResults = 100

// Config holds the gateway's endpoint parameters.
type Config struct {
	// BaseURL is the API root, e.g. https://www.googleapis.com/calendar/v3.
	BaseURL string
	// MaxResults per page. Zero means DefaultMaxResults.
	MaxResults int
	// PageCap bounds pagination. Zero means DefaultPageCap.
	PageCap int
}

// CalendarInfo is one entry from the user's calendar list.
type CalendarInfo struct {
	ID       string `json:"id"`
	Summary  string `json:"summary"`
	Primary  bool   `json:"primary,omitempty"`
	Selected bool   `json:"selected,omitempty"`
	Hidden   bool   `json:"hidden,omitempty"`
}

// Query selects either a time range or an incremental sync token. When
// SyncToken is set the time range is ignored.
type Query struct {
	TimeMin   time.Time
	TimeMax   time.Time
	SyncToken string
	PageToken string
}

// Page is one page of events plus the continuation and sync cursors.
// Deleted lists the IDs the provider reported as cancelled; incremental
// responses use those stubs to signal removals.
type Page struct {
	Events        []model.CalendarEvent
	Deleted       []string
	NextPageToken string
	NextSyncToken string
}

// Delta is the accumulated result of an incremental sync: changed events,
// the IDs removed upstream, and the cursor for the next round.
type Delta struct {
	Events    []model.CalendarEvent
	Deleted   []string
	SyncToken string
}

// Gateway fetches events from the calendar API for one calendar at a time.
type Gateway struct {
	client *httpx.Client
	tokens httpx.TokenSource
	cfg    Config
	logger *log.Logger
}

// NewGateway creates a calendar gateway. If logger is nil, logs go to stderr.
func NewGateway(client *httpx.Client, tokens httpx.TokenSource, cfg Config, logger *log.Logger) *Gateway {
	if logger == nil {
		logger = log.New(os.Stderr, "[gcal] ", log.LstdFlags)
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

type eventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
}

type attendee struct {
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

type eventItem struct {
	ID          string     `json:"id"`
	Summary     string     `json:"summary"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	Status      string     `json:"status,omitempty"`
	Updated     time.Time  `json:"updated"`
	Start       eventTime  `json:"start"`
	End         eventTime  `json:"end"`
	Attendees   []attendee `json:"attendees,omitempty"`
}

type eventsResponse struct {
	Items         []eventItem `json:"items"`
	NextPageToken string      `json:"nextPageToken,omitempty"`
	NextSyncToken string      `json:"nextSyncToken,omitempty"`
}

type calendarListResponse struct {
	Items         []CalendarInfo `json:"items"`
	NextPageToken string         `json:"nextPageToken,omitempty"`
}

// ListEvents fetches one page of events for the calendar. Exactly one of the
// query's time range or sync token is honored; a sync token wins.
func (g *Gateway) ListEvents(ctx context.Context, calendarID string, q Query) (Page, error) {
	params := url.Values{}
	params.Set("maxResults", strconv.Itoa(g.cfg.MaxResults))
	params.Set("singleEvents", "true")
	if q.SyncToken != "" {
		params.Set("syncToken", q.SyncToken)
	} else {
		params.Set("orderBy", "startTime")
		if !q.TimeMin.IsZero() {
			params.Set("timeMin", q.TimeMin.UTC().Format(time.RFC3339))
		}
		if !q.TimeMax.IsZero() {
			params.Set("timeMax", q.TimeMax.UTC().Format(time.RFC3339))
		}
	}
	if q.PageToken != "" {
		params.Set("pageToken", q.PageToken)
	}

	endpoint := fmt.Sprintf("%s/calendars/%s/events?%s", g.cfg.BaseURL, url.PathEscape(calendarID), params.Encode())

	var resp eventsResponse
	err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "GET", URL: endpoint}, g.tokens, &resp)
	if err != nil {
		if httpx.StatusCode(err) == 410 {
			return Page{}, fmt.Errorf("%w: %s", ErrSyncTokenExpired, calendarID)
		}
		return Page{}, fmt.Errorf("failed to list events for %s: %w", calendarID, err)
	}

	page := Page{
		NextPageToken: resp.NextPageToken,
		NextSyncToken: resp.NextSyncToken,
	}
	for _, item := range resp.Items {
		// Incremental responses report deletions as cancelled stubs.
		if item.Status == "cancelled" {
			if item.ID != "" {
				page.Deleted = append(page.Deleted, item.ID)
			}
			continue
		}
		ev, err := convertEvent(item)
		if err != nil {
			g.logger.Printf("Warning: skipping event %s in %s: %v", item.ID, calendarID, err)
			continue
		}
		page.Events = append(page.Events, ev)
	}
	return page, nil
}

// FetchAllPages loops ListEvents page-to-page until the provider stops
// returning a continuation token, bounded by the page cap. It returns the
// accumulated events and the final sync token (empty in time-range mode
// until the last page).
func (g *Gateway) FetchAllPages(ctx context.Context, calendarID string, q Query) ([]model.CalendarEvent, string, error) {
	var (
		events    []model.CalendarEvent
		syncToken string
	)
	for page := 0; page < g.cfg.PageCap; page++ {
		p, err := g.ListEvents(ctx, calendarID, q)
		if err != nil {
			return nil, "", err
		}
		events = append(events, p.Events...)
		if p.NextSyncToken != "" {
			syncToken = p.NextSyncToken
		}
		if p.NextPageToken == "" {
			return events, syncToken, nil
		}
		q.PageToken = p.NextPageToken
	}
	g.logger.Printf("Warning: calendar %s pagination hit the %d page cap, returning partial results", calendarID, g.cfg.PageCap)
	return events, syncToken, nil
}

// ListCalendars fetches the user's calendar list.
func (g *Gateway) ListCalendars(ctx context.Context) ([]CalendarInfo, error) {
	var (
		calendars []CalendarInfo
		pageToken string
	)
	for page := 0; page < g.cfg.PageCap; page++ {
		params := url.Values{}
		params.Set("maxResults", strconv.Itoa(g.cfg.MaxResults))
		if pageToken != "" {
			params.Set("pageToken", pageToken)
		}
		endpoint := fmt.Sprintf("%s/users/me/calendarList?%s", g.cfg.BaseURL, params.Encode())

		var resp calendarListResponse
		if err := g.client.DoAuthenticated(ctx, httpx.Request{Method: "GET", URL: endpoint}, g.tokens, &resp); err != nil {
			return nil, fmt.Errorf("failed to list calendars: %w", err)
		}
		calendars = append(calendars, resp.Items...)
		if resp.NextPageToken == "" {
			return calendars, nil
		}
		pageToken = resp.NextPageToken
	}
	return calendars, nil
}

// SyncIncremental fetches the changes since the given sync token, including
// the IDs of events deleted upstream. A provider rejection of the token
// (HTTP 410) surfaces as ErrSyncTokenExpired so the caller can discard the
// cursor and re-run a full fetch.
func (g *Gateway) SyncIncremental(ctx context.Context, calendarID, syncToken string) (Delta, error) {
	var (
		delta Delta
		q     = Query{SyncToken: syncToken}
	)
	for page := 0; page < g.cfg.PageCap; page++ {
		p, err := g.ListEvents(ctx, calendarID, q)
		if err != nil {
			return Delta{}, err
		}
		delta.Events = append(delta.Events, p.Events...)
		delta.Deleted = append(delta.Deleted, p.Deleted...)
		if p.NextSyncToken != "" {
			delta.SyncToken = p.NextSyncToken
		}
		if p.NextPageToken == "" {
			return delta, nil
		}
		q.PageToken = p.NextPageToken
	}
	g.logger.Printf("Warning: calendar %s pagination hit the %d page cap, returning partial results", calendarID, g.cfg.PageCap)
	return delta, nil
}

// convertEvent maps a wire item onto the domain event type. All-day events
// carry date-only strings; timed events carry RFC 3339 date-times.
func convertEvent(item eventItem) (model.CalendarEvent, error) {
	if item.ID == "" {
		return model.CalendarEvent{}, errors.New("missing event id")
	}

	start, allDay, err := parseEventTime(item.Start)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("bad start time: %w", err)
	}
	end, _, err := parseEventTime(item.End)
	if err != nil {
		return model.CalendarEvent{}, fmt.Errorf("bad end time: %w", err)
	}

	ev := model.CalendarEvent{
		ID:           item.ID,
		Title:        item.Summary,
		Start:        start,
		End:          end,
		AllDay:       allDay,
		Source:       model.SourceGoogle,
		Description:  item.Description,
		Location:     item.Location,
		LastModified: item.Updated,
	}
	for _, a := range item.Attendees {
		ev.Participants = append(ev.Participants, model.Participant{
			Name:  a.DisplayName,
			Email: a.Email,
		})
	}
	if err := ev.Validate(); err != nil {
		return model.CalendarEvent{}, err
	}
	return ev, nil
}

func parseEventTime(et eventTime) (time.Time, bool, error) {
	switch {
	case et.DateTime != "":
		t, err := time.Parse(time.RFC3339, et.DateTime)
		return t, false, err
	case et.Date != "":
		t, err := time.Parse("2006-01-02", et.Date)
		return t, true, err
	default:
		return time.Time{}, false, errors.New("neither dateTime nor date present")
	}
}
