package httpx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// staticTokens is a TokenSource with canned token values and call counters.
type staticTokens struct {
	current      atomic.Value // string
	tokenCalls   atomic.Int32
	refreshCalls atomic.Int32
	refreshed    string
}

func newStaticTokens(initial, refreshed string) *staticTokens {
	ts := &staticTokens{refreshed: refreshed}
	ts.current.Store(initial)
	return ts
}

func (ts *staticTokens) Token(ctx context.Context) (string, error) {
	ts.tokenCalls.Add(1)
	return ts.current.Load().(string), nil
}

func (ts *staticTokens) Refresh(ctx context.Context) (string, error) {
	ts.refreshCalls.Add(1)
	ts.current.Store(ts.refreshed)
	return ts.refreshed, nil
}

func TestDoDecodesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("unexpected method %s", r.Method)
		}
		fmt.Fprint(w, `{"name":"waffle","count":3}`)
	}))
	defer srv.Close()

	var out struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	client := New()
	if err := client.Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, &out); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	if out.Name != "waffle" || out.Count != 3 {
		t.Errorf("unexpected decode result: %+v", out)
	}
}

func TestDoNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := New()
	if err := client.Do(context.Background(), Request{Method: http.MethodDelete, URL: srv.URL}, &NoContent{}); err != nil {
		t.Fatalf("Do failed: %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		code int
		want func(error) bool
	}{
		{401, func(err error) bool { return errors.Is(err, ErrUnauthorized) }},
		{403, func(err error) bool { return errors.Is(err, ErrForbidden) }},
		{404, func(err error) bool { return errors.Is(err, ErrNotFound) }},
		{429, func(err error) bool { return errors.Is(err, ErrRateLimited) }},
		{500, func(err error) bool {
			var se *ServerError
			return errors.As(err, &se) && se.Code == 500
		}},
		{503, func(err error) bool {
			var se *ServerError
			return errors.As(err, &se) && se.Code == 503
		}},
		{410, func(err error) bool {
			var he *HTTPError
			return errors.As(err, &he) && he.Code == 410
		}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			err := New().Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !tt.want(err) {
				t.Errorf("status %d mapped to unexpected error: %v", tt.code, err)
			}
		})
	}
}

func TestAuthenticatedRetriesOnceAfter401(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := requests.Add(1)
		if n == 1 {
			if got := r.Header.Get("Authorization"); got != "Bearer stale" {
				t.Errorf("first request auth = %q, want stale token", got)
			}
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer fresh" {
			t.Errorf("retry auth = %q, want refreshed token", got)
		}
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	ts := newStaticTokens("stale", "fresh")
	var out struct {
		OK bool `json:"ok"`
	}
	err := New().DoAuthenticated(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, ts, &out)
	if err != nil {
		t.Fatalf("DoAuthenticated failed: %v", err)
	}
	if !out.OK {
		t.Error("expected decoded retry response")
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
	if got := ts.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh called %d times, want 1", got)
	}
}

func TestAuthenticatedSecond401Surfaces(t *testing.T) {
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ts := newStaticTokens("stale", "fresh")
	err := New().DoAuthenticated(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, ts, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if got := requests.Load(); got != 2 {
		t.Errorf("server saw %d requests, want exactly 2 (no retry loop)", got)
	}
	if got := ts.refreshCalls.Load(); got != 1 {
		t.Errorf("refresh called %d times, want exactly 1", got)
	}
}

func TestAuthenticatedNoRefreshOnOtherErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ts := newStaticTokens("tok", "fresh")
	err := New().DoAuthenticated(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, ts, nil)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if got := ts.refreshCalls.Load(); got != 0 {
		t.Errorf("refresh called %d times on non-401 error, want 0", got)
	}
}

func TestSniffErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"nested", `{"error":{"message":"Invalid sync token","status":"GONE"}}`, "Invalid sync token (GONE)"},
		{"nested_no_status", `{"error":{"message":"Quota exceeded"}}`, "Quota exceeded"},
		{"flat", `{"message":"backend unavailable"}`, "backend unavailable"},
		{"raw", `not json at all`, "not json at all"},
		{"empty", ``, ""},
		{"whitespace", "  \n ", ""},
		{"truncated", strings.Repeat("x", 500), strings.Repeat("x", 280)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sniffErrorMessage([]byte(tt.body)); got != tt.want {
				t.Errorf("sniffErrorMessage = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnauthorizedCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"Token has been revoked"}}`)
	}))
	defer srv.Close()

	err := New().Do(context.Background(), Request{Method: http.MethodGet, URL: srv.URL}, nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !strings.Contains(err.Error(), "Token has been revoked") {
		t.Errorf("error %q should carry the server message", err)
	}
}
