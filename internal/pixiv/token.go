package pixiv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrAuth marks credential failures: missing refresh token, rejected
// exchange, or an exchange that yielded no token. Interactive paths show
// these to the user; the watch loop logs and skips.
var ErrAuth = errors.New("pixiv: authentication failed")

// ErrNoRefreshToken is returned when no refresh credential is configured.
var ErrNoRefreshToken = fmt.Errorf("no refresh token configured: %w", ErrAuth)

const (
	defaultAuthEndpoint = "https://oauth.secure.pixiv.net/auth/token"

	// Public credentials of the official mobile app; the refresh-token
	// grant does not work with anything else.
	defaultClientID     = "MOBrBDS8blbauoSck0ZfDbtuzpyT"
	defaultClientSecret = "lsACyCD94FhDUtGTXi3QzcFE2uU1hqtDaKeqrdwj"

	exchangeTimeout = 15 * time.Second
)

// TokenSource holds the short-lived access token and refreshes it through
// the long-lived refresh credential. Refresh runs serialized; it is the
// only mutation of shared credential state in the process.
type TokenSource struct {
	http     *http.Client
	endpoint string

	mu           sync.Mutex
	clientID     string
	clientSecret string
	refreshToken string
	accessToken  string
}

func NewTokenSource(refreshToken string, hc *http.Client) *TokenSource {
	if hc == nil {
		hc = &http.Client{Timeout: exchangeTimeout}
	}
	return &TokenSource{
		http:         hc,
		endpoint:     defaultAuthEndpoint,
		clientID:     defaultClientID,
		clientSecret: defaultClientSecret,
		refreshToken: strings.TrimSpace(refreshToken),
	}
}

// SetCredentials overrides the app client id/secret (empty keeps defaults).
func (t *TokenSource) SetCredentials(id, secret string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if strings.TrimSpace(id) != "" {
		t.clientID = id
	}
	if strings.TrimSpace(secret) != "" {
		t.clientSecret = secret
	}
}

// SetEndpoint redirects the token exchange; used by tests.
func (t *TokenSource) SetEndpoint(u string) {
	t.mu.Lock()
	t.endpoint = u
	t.mu.Unlock()
}

// Token returns the held access token, performing a refresh exchange first
// if none is held yet.
func (t *TokenSource) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accessToken != "" {
		return t.accessToken, nil
	}
	return t.refreshLocked(ctx)
}

// Refresh discards the held token and performs a new exchange. Callers use
// this after the API signalled an invalid token.
func (t *TokenSource) Refresh(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.accessToken = ""
	return t.refreshLocked(ctx)
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (t *TokenSource) refreshLocked(ctx context.Context) (string, error) {
	if t.refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", t.clientID)
	form.Set("client_secret", t.clientSecret)
	form.Set("refresh_token", t.refreshToken)

	ctx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.http.Do(req)
	if err != nil {
		t.accessToken = ""
		return "", fmt.Errorf("token exchange: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		t.accessToken = ""
		return "", fmt.Errorf("token exchange rejected (%s): %w", resp.Status, ErrAuth)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		t.accessToken = ""
		return "", fmt.Errorf("token exchange: decode response: %w", err)
	}
	if tr.AccessToken == "" {
		t.accessToken = ""
		return "", fmt.Errorf("token exchange yielded no token: %w", ErrAuth)
	}

	t.accessToken = tr.AccessToken
	return t.accessToken, nil
}
