package offq

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenProvider returns the current bearer token. It is called once per send
// attempt so a refresh between enqueue and send is picked up.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenProvider.
type TokenFunc func(ctx context.Context) (string, error)

func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// StaticToken always returns the same token.
type StaticToken string

func (s StaticToken) Token(context.Context) (string, error) { return string(s), nil }

// RefreshFunc obtains a new token. current is the token being replaced and may
// be empty or expired.
type RefreshFunc func(ctx context.Context, current string) (string, error)

// RefreshingToken holds a JWT and refreshes it shortly before it expires.
// Tokens without an exp claim (or that are not JWTs) are never refreshed
// unless empty.
type RefreshingToken struct {
	mu      sync.Mutex
	token   string
	refresh RefreshFunc
	margin  time.Duration
	now     func() time.Time
}

// NewRefreshingToken creates a provider seeded with initial. margin <= 0
// defaults to one minute.
func NewRefreshingToken(initial string, refresh RefreshFunc, margin time.Duration) *RefreshingToken {
	if margin <= 0 {
		margin = time.Minute
	}
	return &RefreshingToken{
		token:   initial,
		refresh: refresh,
		margin:  margin,
		now:     time.Now,
	}
}

// Token returns the held token, refreshing it first when it is missing or
// expires within the margin.
func (r *RefreshingToken) Token(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.token != "" && !r.expiring() {
		return r.token, nil
	}
	if r.refresh == nil {
		return r.token, nil
	}

	tok, err := r.refresh(ctx, r.token)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	r.token = tok
	if exp, ok := tokenExpiry(tok); ok {
		slog.Info("offq token: refreshed", "expires_at", exp.Format(time.RFC3339))
	}
	return r.token, nil
}

// Set replaces the held token, e.g. after an interactive login.
func (r *RefreshingToken) Set(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

func (r *RefreshingToken) expiring() bool {
	exp, ok := tokenExpiry(r.token)
	if !ok {
		return false
	}
	return r.now().Add(r.margin).After(exp)
}

// tokenExpiry reads the exp claim without verifying the signature; the
// backend is the one that verifies.
func tokenExpiry(token string) (time.Time, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, false
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// BackendRefresher returns a RefreshFunc that exchanges the current token at
// baseURL+path (POST, bearer auth) for a new one. The response must be JSON
// with a "token" field.
func BackendRefresher(baseURL, path string, hc *http.Client) RefreshFunc {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	url := strings.TrimRight(baseURL, "/") + path
	return func(ctx context.Context, current string) (string, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
		if err != nil {
			return "", err
		}
		if current != "" {
			req.Header.Set("Authorization", "Bearer "+current)
		}

		resp, err := hc.Do(req)
		if err != nil {
			return "", fmt.Errorf("refresh request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
			return "", fmt.Errorf("refresh failed (%d): %s", resp.StatusCode, string(data))
		}

		var result struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return "", fmt.Errorf("parse refresh response: %w", err)
		}
		if result.Token == "" {
			return "", fmt.Errorf("refresh response has no token")
		}
		return result.Token, nil
	}
}

var (
	_ TokenProvider = TokenFunc(nil)
	_ TokenProvider = StaticToken("")
	_ TokenProvider = (*RefreshingToken)(nil)
)
