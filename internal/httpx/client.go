// Package httpx provides the authenticated JSON HTTP transport shared by every
// remote gateway.
//
// The client maps response status codes onto a small error taxonomy
// (Unauthorized, Forbidden, NotFound, RateLimited, ServerError, HTTPError) and
// implements the one-shot refresh-and-retry protocol for 401 responses: a
// failed request triggers exactly one token refresh and exactly one retry,
// never more. Error response bodies are sniffed best-effort for a
// human-readable message; the sniffing never leaks beyond a display string.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// NoContent is the designated empty-result type for calls whose response body
// carries no meaningful payload (e.g. DELETE).
type NoContent struct{}

// TokenSource supplies bearer tokens for authenticated requests.
//
// Token returns a currently-valid token, refreshing internally when the cached
// one is near expiry. Refresh forces a new token unconditionally; the client
// calls it at most once per logical request, after a 401.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Request describes one JSON HTTP call.
type Request struct {
	Method string
	URL    string
	Header map[string]string
	// Body, when non-nil, is JSON-encoded into the request body.
	Body any
}

// Client is a thin wrapper over http.Client with typed JSON handling.
type Client struct {
	http *http.Client
}

// New returns a client with sane timeouts.
func New() *Client {
	return &Client{
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient wraps an existing http.Client (tests inject
// httptest-backed clients through this).
func NewWithHTTPClient(h *http.Client) *Client {
	if h == nil {
		h = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{http: h}
}

// Do executes the request and decodes the response body into out.
//
// out may be nil or *NoContent to skip decoding. Non-2xx responses are
// translated through the error taxonomy; the response body is consumed
// either way.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	var bodyReader io.Reader
	if req.Body != nil {
		encoded, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.Header {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if err := statusToError(resp.StatusCode, data); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if _, ok := out.(*NoContent); ok {
		return nil
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// DoAuthenticated executes the request with a bearer token from ts.
//
// If the first attempt fails with Unauthorized, the token is refreshed exactly
// once and the request retried exactly once with the new token. A second
// Unauthorized is returned to the caller as-is; there is no retry loop.
func (c *Client) DoAuthenticated(ctx context.Context, req Request, ts TokenSource, out any) error {
	token, err := ts.Token(ctx)
	if err != nil {
		return fmt.Errorf("failed to obtain access token: %w", err)
	}

	err = c.Do(ctx, withBearer(req, token), out)
	if !IsUnauthorized(err) {
		return err
	}

	token, refreshErr := ts.Refresh(ctx)
	if refreshErr != nil {
		return fmt.Errorf("token refresh after 401 failed: %w", refreshErr)
	}

	return c.Do(ctx, withBearer(req, token), out)
}

// withBearer copies the request with the Authorization header substituted.
// The copy keeps the retry from mutating the caller's header map.
func withBearer(req Request, token string) Request {
	header := make(map[string]string, len(req.Header)+1)
	for k, v := range req.Header {
		header[k] = v
	}
	header["Authorization"] = "Bearer " + token
	req.Header = header
	return req
}
