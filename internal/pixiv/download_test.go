package pixiv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	logx "pixivbot/pkg/logx"
)

func TestDownloadAllPreservesOrder(t *testing.T) {
	t.Parallel()
	// Earlier slots respond slower, so completion order inverts input
	// order; the result must still be index-aligned.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Referer"); got != cdnReferer {
			t.Errorf("Referer = %q", got)
		}
		idx := strings.TrimPrefix(r.URL.Path, "/img/")
		switch idx {
		case "0":
			time.Sleep(80 * time.Millisecond)
		case "1":
			time.Sleep(40 * time.Millisecond)
		}
		_, _ = w.Write([]byte("image-" + idx))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{RefreshToken: "x", DownloadConcurrency: 3, ImageTimeout: 2 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	urls := make([]string, 4)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/img/%d", srv.URL, i)
	}
	bufs := c.DownloadAll(context.Background(), urls)
	if len(bufs) != len(urls) {
		t.Fatalf("len = %d, want %d", len(bufs), len(urls))
	}
	for i, b := range bufs {
		want := fmt.Sprintf("image-%d", i)
		if string(b) != want {
			t.Fatalf("slot %d = %q, want %q", i, b, want)
		}
	}
}

func TestDownloadFailureLeavesNilSlot(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/img/1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	c, err := New(Config{RefreshToken: "x", ImageTimeout: 2 * time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	bufs := c.DownloadAll(context.Background(), []string{srv.URL + "/img/0", srv.URL + "/img/1", srv.URL + "/img/2"})
	if bufs[0] == nil || bufs[2] == nil {
		t.Fatal("expected slots 0 and 2 to succeed")
	}
	if bufs[1] != nil {
		t.Fatalf("slot 1 = %q, want nil", bufs[1])
	}
}

func TestMirrorHostRewrite(t *testing.T) {
	t.Parallel()
	got, err := replaceHost("https://i.pximg.net/img-original/img/99_p0.jpg", "i.pixiv.re")
	if err != nil {
		t.Fatalf("replaceHost: %v", err)
	}
	if got != "https://i.pixiv.re/img-original/img/99_p0.jpg" {
		t.Fatalf("rewritten = %q", got)
	}
}
