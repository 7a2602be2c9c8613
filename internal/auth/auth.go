package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrSessionExpired is returned when the backend rejects the refresh; the
// user must sign in again.
var ErrSessionExpired = errors.New("session expired")

// DefaultMargin is how long before expiry a token is refreshed proactively.
const DefaultMargin = 30 * time.Second

// Config configures a TokenSource.
type Config struct {
	// RefreshURL is POSTed to obtain a new access token. The session
	// cookie or refresh credential rides on the HTTP client's jar.
	RefreshURL string

	// Margin before expiry at which Token refreshes proactively.
	// Zero selects DefaultMargin.
	Margin time.Duration

	HTTPClient *http.Client

	// OnSessionExpired fires once per expiry, off the calling goroutine's
	// critical path.
	OnSessionExpired func()
}

// TokenSource produces bearer tokens, refreshing them as needed.
type TokenSource struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
	group  singleflight.Group

	now func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
	notified  bool // session-expired hook fired for the current expiry
}

// NewTokenSource creates a token source.
func NewTokenSource(cfg Config, logger *slog.Logger) *TokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Margin == 0 {
		cfg.Margin = DefaultMargin
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	return &TokenSource{
		cfg:    cfg,
		client: client,
		logger: logger,
		now:    time.Now,
	}
}

// Token returns a valid bearer token, refreshing when the cached one is
// missing or within the expiry margin. Concurrent callers during a refresh
// all wait on the same request.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	if s.token != "" && s.expiresAt.Sub(s.now()) > s.cfg.Margin {
		token := s.token
		s.mu.Unlock()
		return token, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do("refresh", func() (any, error) {
		return s.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate discards the cached token so the next Token call refreshes.
// Callers use it after the streaming endpoint rejects the current token.
func (s *TokenSource) Invalidate() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Headers returns the handshake headers for the streaming endpoint. It
// implements transport.HeaderSource.
func (s *TokenSource) Headers(ctx context.Context) (http.Header, error) {
	token, err := s.Token(ctx)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	return header, nil
}

// refreshResponse is the refresh endpoint's payload.
type refreshResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"` // seconds
}

func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.RefreshURL, nil)
	if err != nil {
		return "", fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read refresh response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		s.sessionExpired()
		return "", ErrSessionExpired
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("refresh failed: %s", http.StatusText(resp.StatusCode))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("parse refresh response: %w", err)
	}
	if parsed.AccessToken == "" {
		return "", errors.New("refresh response missing access_token")
	}

	s.mu.Lock()
	s.token = parsed.AccessToken
	s.expiresAt = s.now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	s.notified = false
	s.mu.Unlock()

	s.logger.Debug("access token refreshed", "expires_in", parsed.ExpiresIn)
	return parsed.AccessToken, nil
}

func (s *TokenSource) sessionExpired() {
	s.mu.Lock()
	s.token = ""
	fire := !s.notified
	s.notified = true
	s.mu.Unlock()

	s.logger.Warn("session expired")
	if fire && s.cfg.OnSessionExpired != nil {
		s.cfg.OnSessionExpired()
	}
}
