// Package auth manages OAuth access tokens for the remote providers.
//
// A Provider hands out bearer tokens and refreshes them against the token
// endpoint when they are within the expiry buffer. Refreshes are
// single-flighted so concurrent callers share one network round trip, and
// the resulting token state is persisted so a restart does not force a
// re-login.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotAuthenticated is returned when no token state exists yet. The caller
// must run the login flow before any authenticated call can succeed.
var ErrNotAuthenticated = errors.New("not authenticated: run 'outku auth login' first")

// DefaultExpiryBuffer is how long before its stated expiry a token is
// treated as already expired, absorbing clock skew and request latency.
const DefaultExpiryBuffer = 5 * time.Minute

// Token is the persisted OAuth token state.
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

// ExpiresWithin reports whether the access token should be considered
// expired once the buffer is applied.
func (t Token) ExpiresWithin(buffer time.Duration) bool {
	if t.Expiry.IsZero() {
		return true
	}
	return !time.Now().Add(buffer).Before(t.Expiry)
}

// Config holds the token endpoint parameters.
type Config struct {
	// TokenURL is the OAuth token endpoint.
	TokenURL string
	// ClientID identifies the application to the provider.
	ClientID string
	// ClientSecret is optional for public clients.
	ClientSecret string
	// ExpiryBuffer widens the expiry check. Zero means DefaultExpiryBuffer.
	ExpiryBuffer time.Duration
}

// Store persists token state between runs.
type Store interface {
	Load() (Token, error)
	Save(Token) error
}

// Provider hands out access tokens, refreshing as needed. It satisfies
// httpx.TokenSource.
type Provider struct {
	cfg    Config
	store  Store
	http   *http.Client
	logger *log.Logger

	group singleflight.Group

	mu  sync.Mutex
	tok Token
}

// NewProvider creates a token provider backed by the given store. If logger
// is nil, logs go to stderr.
func NewProvider(cfg Config, store Store, logger *log.Logger) *Provider {
	if logger == nil {
		logger = log.New(os.Stderr, "[auth] ", log.LstdFlags)
	}
	if cfg.ExpiryBuffer <= 0 {
		cfg.ExpiryBuffer = DefaultExpiryBuffer
	}
	return &Provider{
		cfg:    cfg,
		store:  store,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// SetHTTPClient overrides the HTTP client used against the token endpoint.
func (p *Provider) SetHTTPClient(h *http.Client) {
	if h != nil {
		p.http = h
	}
}

// SetToken installs token state directly, persisting it. Used by the login
// flow after the initial grant.
func (p *Provider) SetToken(tok Token) error {
	p.mu.Lock()
	p.tok = tok
	p.mu.Unlock()
	if err := p.store.Save(tok); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	return nil
}

// Token returns a bearer token, refreshing first when the cached one is
// within the expiry buffer.
func (p *Provider) Token(ctx context.Context) (string, error) {
	tok, err := p.current()
	if err != nil {
		return "", err
	}
	if tok.ExpiresWithin(p.cfg.ExpiryBuffer) {
		return p.Refresh(ctx)
	}
	return tok.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token. Concurrent
// callers are collapsed into a single exchange.
func (p *Provider) Refresh(ctx context.Context) (string, error) {
	v, err, _ := p.group.Do("refresh", func() (any, error) {
		return p.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// current returns the in-memory token, falling back to the store.
func (p *Provider) current() (Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.tok.RefreshToken != "" || p.tok.AccessToken != "" {
		return p.tok, nil
	}
	tok, err := p.store.Load()
	if err != nil {
		return Token{}, err
	}
	p.tok = tok
	return tok, nil
}

// tokenResponse is the provider's token endpoint reply.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

func (p *Provider) refresh(ctx context.Context) (string, error) {
	tok, err := p.current()
	if err != nil {
		return "", err
	}
	if tok.RefreshToken == "" {
		return "", ErrNotAuthenticated
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", tok.RefreshToken)
	form.Set("client_id", p.cfg.ClientID)
	if p.cfg.ClientSecret != "" {
		form.Set("client_secret", p.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token endpoint returned no access token")
	}

	next := Token{
		AccessToken:  tr.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	// Providers may rotate the refresh token on use.
	if tr.RefreshToken != "" {
		next.RefreshToken = tr.RefreshToken
	}

	p.mu.Lock()
	p.tok = next
	p.mu.Unlock()

	if err := p.store.Save(next); err != nil {
		p.logger.Printf("Warning: failed to persist refreshed token: %v", err)
	}

	return next.AccessToken, nil
}
