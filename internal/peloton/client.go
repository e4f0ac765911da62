package peloton

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"rideBoardAPI/internal/token"
)

var (
	// ErrForbidden marks a private or missing profile. Callers treat it as
	// "no data", not a failure.
	ErrForbidden = errors.New("peloton: profile not accessible")

	// ErrUnauthorized marks a rejected access token. The request helpers
	// refresh and retry once before letting it escape.
	ErrUnauthorized = errors.New("peloton: unauthorized")
)

// TokenStore persists OAuth token pairs. Implemented by services.TokenService.
type TokenStore interface {
	Latest(ctx context.Context) (*token.Record, error)
	Save(ctx context.Context, rec *token.Record) error
}

// Client talks to the platform's REST and GraphQL APIs. Token state lives in
// private fields; construct one per process and inject it where needed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	graphqlURL string
	clientID   string
	store      TokenStore

	accessToken  string
	refreshToken string
	expiresAt    time.Time

	// social enforces a 100ms floor between follower-graph calls. It is a
	// spacing guarantee, not a throughput ceiling.
	social *rate.Limiter

	// onRequest, when set, is told about every API round trip (metrics).
	onRequest func(endpoint string, status int)
}

func NewClient(baseURL, graphqlURL, clientID string, store TokenStore) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		graphqlURL: graphqlURL,
		clientID:   clientID,
		store:      store,
		social:     rate.NewLimiter(rate.Every(100*time.Millisecond), 1),
	}
}

// SetRequestObserver injects a per-request callback, wired to the prometheus
// counters from main.
func (c *Client) SetRequestObserver(fn func(endpoint string, status int)) {
	c.onRequest = fn
}

// EnsureValidToken makes sure the client holds a usable access token: loads
// the most recent stored pair on first use and refreshes when the token is
// within five minutes of expiry.
func (c *Client) EnsureValidToken(ctx context.Context) error {
	if c.accessToken == "" {
		rec, err := c.store.Latest(ctx)
		if err != nil {
			return fmt.Errorf("load stored token: %w", err)
		}
		c.accessToken = rec.AccessToken
		c.refreshToken = rec.RefreshToken
		c.expiresAt = rec.ExpiresAt
	}

	if time.Until(c.expiresAt) < 5*time.Minute {
		return c.refreshAccessToken(ctx)
	}
	return nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func (c *Client) refreshAccessToken(ctx context.Context) error {
	if c.refreshToken == "" {
		return fmt.Errorf("no refresh token available")
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "refresh_token",
		"client_id":     c.clientID,
		"refresh_token": c.refreshToken,
	})
	if err != nil {
		return fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("token refresh request: %w", err)
	}
	defer resp.Body.Close()
	c.observe("auth_token", resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("token refresh failed with status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tr.RefreshToken == "" {
		return fmt.Errorf("token response missing refresh_token")
	}

	c.accessToken = tr.AccessToken
	c.refreshToken = tr.RefreshToken
	c.expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)

	rec := &token.Record{
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
		ExpiresAt:    c.expiresAt,
	}
	if err := c.store.Save(ctx, rec); err != nil {
		// The in-memory pair still works for this run.
		log.Printf("peloton: failed to persist refreshed token: %v", err)
	}

	return nil
}

// getJSON performs an authenticated GET with the shared 401 handling: on an
// unauthorized response the token is refreshed once and the identical request
// replayed. A second 401 escapes to the caller.
func (c *Client) getJSON(ctx context.Context, endpoint, path string, query url.Values, out any) error {
	if err := c.EnsureValidToken(ctx); err != nil {
		return err
	}

	err := c.doOnce(ctx, endpoint, http.MethodGet, c.baseURL+path, query, nil, out)
	if errors.Is(err, ErrUnauthorized) {
		if rerr := c.refreshAccessToken(ctx); rerr != nil {
			return rerr
		}
		return c.doOnce(ctx, endpoint, http.MethodGet, c.baseURL+path, query, nil, out)
	}
	return err
}

// postJSON is getJSON for POST bodies (GraphQL, relationship changes).
func (c *Client) postJSON(ctx context.Context, endpoint, fullURL string, body any, out any) error {
	if err := c.EnsureValidToken(ctx); err != nil {
		return err
	}

	err := c.doOnce(ctx, endpoint, http.MethodPost, fullURL, nil, body, out)
	if errors.Is(err, ErrUnauthorized) {
		if rerr := c.refreshAccessToken(ctx); rerr != nil {
			return rerr
		}
		return c.doOnce(ctx, endpoint, http.MethodPost, fullURL, nil, body, out)
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, endpoint, method, fullURL string, query url.Values, body any, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	c.observe(endpoint, resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s: %w", endpoint, ErrUnauthorized)
	case resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", endpoint, ErrForbidden)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%s: upstream returned %d", endpoint, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%s: unexpected status %d", endpoint, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", endpoint, err)
	}
	return nil
}

func (c *Client) observe(endpoint string, status int) {
	if c.onRequest != nil {
		c.onRequest(endpoint, status)
	}
}
