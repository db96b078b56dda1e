package pixiv

import (
	"context"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	logx "pixivbot/pkg/logx"
)

// DownloadImage fetches one CDN image. Images are served without auth but
// require the site referer. Any failure (transport, timeout, non-200)
// returns nil; callers treat the image as unavailable and filter it out.
func (c *Client) DownloadImage(ctx context.Context, rawURL string) []byte {
	u := rawURL
	if c.mirrorHost != "" {
		if rewritten, err := replaceHost(rawURL, c.mirrorHost); err == nil {
			u = rewritten
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.imageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("Referer", cdnReferer)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Debug("pixiv: image download failed", logx.String("url", u), logx.Err(err))
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		c.log.Debug("pixiv: image download failed", logx.String("url", u), logx.Int("status", resp.StatusCode))
		return nil
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, responseLimit))
	if err != nil {
		c.log.Debug("pixiv: image download failed", logx.String("url", u), logx.Err(err))
		return nil
	}
	return data
}

// DownloadAll fetches every URL with a bounded fan-out. The result slice is
// index-aligned with urls regardless of completion order; failed downloads
// leave a nil slot.
func (c *Client) DownloadAll(ctx context.Context, urls []string) [][]byte {
	out := make([][]byte, len(urls))
	if len(urls) == 0 {
		return out
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, u := range urls {
		g.Go(func() error {
			out[i] = c.DownloadImage(gctx, u)
			return nil
		})
	}
	// Workers never return errors; failures are nil slots.
	_ = g.Wait()
	return out
}

func replaceHost(rawURL, host string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	u.Host = host
	return u.String(), nil
}
