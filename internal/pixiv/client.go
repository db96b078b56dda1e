package pixiv

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "pixivbot/pkg/logx"
)

const (
	defaultAppHost = "https://app-api.pixiv.net"
	cdnReferer     = "https://www.pixiv.net/"
	userAgent      = "PixivAndroidApp/5.0.234 (Android 11; Pixel 5)"

	defaultImageTimeout = 30 * time.Second
	responseLimit       = 32 << 20
)

// Config configures the gallery client.
type Config struct {
	RefreshToken string
	ClientID     string
	ClientSecret string

	// Proxy routes API and CDN traffic through an HTTP proxy.
	Proxy string
	// MirrorHost replaces the CDN host on image downloads when set.
	MirrorHost string

	// DownloadConcurrency bounds the per-artwork image fan-out.
	DownloadConcurrency int
	// ImageTimeout is the per-image download timeout.
	ImageTimeout time.Duration
	// RatePerSec throttles authorized API calls.
	RatePerSec int
}

// Client wraps the app API and the image CDN behind typed accessors.
type Client struct {
	http   *http.Client
	tokens *TokenSource
	log    logx.Logger

	limiter *rate.Limiter

	appHost      string
	mirrorHost   string
	imageTimeout time.Duration
	concurrency  int
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if p := strings.TrimSpace(cfg.Proxy); p != "" {
		proxyURL, err := url.Parse(p)
		if err != nil {
			return nil, fmt.Errorf("pixiv: invalid proxy url %q: %w", cfg.Proxy, err)
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}
	hc := &http.Client{Transport: transport, Timeout: time.Minute}

	if log.IsZero() {
		log = logx.Nop()
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 2
	}
	conc := cfg.DownloadConcurrency
	if conc <= 0 {
		conc = 4
	}
	imgTimeout := cfg.ImageTimeout
	if imgTimeout <= 0 {
		imgTimeout = defaultImageTimeout
	}

	ts := NewTokenSource(cfg.RefreshToken, hc)
	ts.SetCredentials(cfg.ClientID, cfg.ClientSecret)

	return &Client{
		http:         hc,
		tokens:       ts,
		log:          log,
		limiter:      rate.NewLimiter(rate.Limit(rps), rps),
		appHost:      defaultAppHost,
		mirrorHost:   strings.TrimSpace(cfg.MirrorHost),
		imageTimeout: imgTimeout,
		concurrency:  conc,
	}, nil
}

// Tokens exposes the credential manager (tests redirect its endpoint).
func (c *Client) Tokens() *TokenSource { return c.tokens }

// SetAppHost redirects API calls; used by tests.
func (c *Client) SetAppHost(h string) { c.appHost = strings.TrimRight(h, "/") }

// get performs an authorized GET and decodes the JSON payload into out.
//
// A response that signals an invalid/expired token triggers exactly one
// refresh exchange followed by one resend of the original request. If the
// retry fails too, its error is what the caller sees. No further retries.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}

	u := c.appHost + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	status, body, err := c.doAuthorized(ctx, u, token)
	if err != nil {
		return err
	}
	if invalidTokenResponse(status, body) {
		token, err = c.tokens.Refresh(ctx)
		if err != nil {
			return err
		}
		status, body, err = c.doAuthorized(ctx, u, token)
		if err != nil {
			return err
		}
	}
	if status != http.StatusOK {
		return fmt.Errorf("pixiv: GET %s: status %d", path, status)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("pixiv: GET %s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) doAuthorized(ctx context.Context, u, token string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("App-OS", "android")
	req.Header.Set("App-OS-Version", "11")
	req.Header.Set("App-Version", "5.0.234")
	req.Header.Set("Accept-Language", "en_US")
	req.Header.Set("Referer", defaultAppHost+"/")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, body, nil
}

// invalidTokenResponse detects the API's auth-failure shape: HTTP 400 with
// an invalid_grant / invalid_token marker in the body.
func invalidTokenResponse(status int, body []byte) bool {
	if status != http.StatusBadRequest && status != http.StatusUnauthorized {
		return false
	}
	s := string(body)
	return strings.Contains(s, "invalid_grant") || strings.Contains(s, "invalid_token")
}
