// Package browser captures full-page rasters of gallery profile pages.
// Capture failures are soft: the caller attaches the screenshot when it is
// available and carries on without it otherwise.
package browser

import (
	"context"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	logx "pixivbot/pkg/logx"
)

// Capturer acquires a page, optionally seeds a session cookie, navigates,
// waits for the page to settle, and returns a full-page raster — all within
// one bounded timeout window.
type Capturer interface {
	CapturePage(ctx context.Context, url, sessionCookie string) ([]byte, error)
}

type Config struct {
	Timeout time.Duration
	// SessionCookie is a PHPSESSID value seeded on the gallery domain so
	// the capture sees the logged-in page.
	SessionCookie string
}

type chromeCapturer struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) Capturer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &chromeCapturer{cfg: cfg, log: log}
}

func (c *chromeCapturer) CapturePage(ctx context.Context, url, sessionCookie string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()
	pageCtx, cancelPage := chromedp.NewContext(allocCtx)
	defer cancelPage()

	if sessionCookie == "" {
		sessionCookie = c.cfg.SessionCookie
	}

	tasks := chromedp.Tasks{}
	if sessionCookie != "" {
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			return network.SetCookie("PHPSESSID", sessionCookie).
				WithDomain(".pixiv.net").
				WithPath("/").
				Do(ctx)
		}))
	}
	var shot []byte
	tasks = append(tasks,
		chromedp.Navigate(url),
		// No reliable network-idle signal over CDP; a short settle delay
		// covers the profile page's lazy-loaded thumbnails.
		chromedp.Sleep(2*time.Second),
		chromedp.FullScreenshot(&shot, 90),
	)

	start := time.Now()
	if err := chromedp.Run(pageCtx, tasks); err != nil {
		return nil, err
	}
	c.log.Debug("page captured", logx.String("url", url), logx.Duration("took", time.Since(start)))
	return shot, nil
}
