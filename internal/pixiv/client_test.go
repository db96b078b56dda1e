package pixiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	logx "pixivbot/pkg/logx"
)

const illustJSON = `{"illust":{"id":99,"title":"midnight","x_restrict":0,
"user":{"id":7,"name":"aoi","account":"aoi_a"},
"tags":[{"name":"landscape"},{"name":"oc"}],
"page_count":1,"create_date":"2026-01-02T03:04:05+09:00",
"meta_single_page":{"original_image_url":"https://i.pximg.net/img-original/img/99_p0.jpg"},
"image_urls":{"large":"https://i.pximg.net/c/600x1200/img/99_p0.jpg"}}}`

// newTestClient wires a client against a fake app host and a fake auth
// endpoint that always succeeds.
func newTestClient(t *testing.T, api http.HandlerFunc) (*Client, *atomic.Int64) {
	t.Helper()

	var exchanges atomic.Int64
	auth := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		exchanges.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer","expires_in":3600}`))
	}))
	t.Cleanup(auth.Close)

	app := httptest.NewServer(api)
	t.Cleanup(app.Close)

	c, err := New(Config{
		RefreshToken: "refresh-credential",
		RatePerSec:   100,
		ImageTimeout: 2 * time.Second,
	}, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	c.SetAppHost(app.URL)
	c.Tokens().SetEndpoint(auth.URL)
	return c, &exchanges
}

func TestIllustDetail(t *testing.T) {
	t.Parallel()
	c, exchanges := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/illust/detail" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.URL.Query().Get("illust_id"); got != "99" {
			t.Errorf("illust_id = %q", got)
		}
		_, _ = w.Write([]byte(illustJSON))
	})

	il, err := c.IllustDetail(context.Background(), 99)
	if err != nil {
		t.Fatalf("IllustDetail: %v", err)
	}
	if il == nil {
		t.Fatal("nil illust")
	}
	if il.Title != "midnight" || il.AuthorID != 7 || il.AuthorName != "aoi" {
		t.Fatalf("unexpected illust: %+v", il)
	}
	if len(il.ImageURLs) != 1 || il.ImageURLs[0] != "https://i.pximg.net/img-original/img/99_p0.jpg" {
		t.Fatalf("image urls: %v", il.ImageURLs)
	}
	if il.Restriction.Restricted() {
		t.Fatal("expected unrestricted")
	}
	// The first protected call triggered exactly one token exchange.
	if got := exchanges.Load(); got != 1 {
		t.Fatalf("exchanges = %d, want 1", got)
	}
}

func TestInvalidTokenRefreshAndRetry(t *testing.T) {
	t.Parallel()
	var apiCalls atomic.Int64
	c, exchanges := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if apiCalls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid_token"}}`))
			return
		}
		_, _ = w.Write([]byte(illustJSON))
	})

	il, err := c.IllustDetail(context.Background(), 99)
	if err != nil {
		t.Fatalf("IllustDetail: %v", err)
	}
	if il == nil {
		t.Fatal("nil illust after retry")
	}
	if got := apiCalls.Load(); got != 2 {
		t.Fatalf("api calls = %d, want 2 (original + one retry)", got)
	}
	// One exchange for the first token plus one re-exchange.
	if got := exchanges.Load(); got != 2 {
		t.Fatalf("exchanges = %d, want 2", got)
	}
}

func TestInvalidTokenRetryFailsOnce(t *testing.T) {
	t.Parallel()
	var apiCalls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		apiCalls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid_token"}}`))
	})

	// The accessor softens the retry failure into a nil result; what
	// matters is that exactly one retry happened (no retry loop).
	il, err := c.IllustDetail(context.Background(), 99)
	if err != nil {
		t.Fatalf("IllustDetail: %v", err)
	}
	if il != nil {
		t.Fatalf("expected nil illust, got %+v", il)
	}
	if got := apiCalls.Load(); got != 2 {
		t.Fatalf("api calls = %d, want 2", got)
	}
}

func TestUserIllustsSoftFailure(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	list, err := c.UserIllusts(context.Background(), 7)
	if err != nil {
		t.Fatalf("UserIllusts: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty listing, got %d", len(list))
	}
}

func TestRestrictionDetection(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		xRestrict int64
		tags      []string
		want      Restriction
	}{
		{name: "none", want: RestrictionNone},
		{name: "x_restrict r18", xRestrict: 1, want: RestrictionR18},
		{name: "x_restrict r18g", xRestrict: 2, want: RestrictionR18G},
		{name: "tag only", tags: []string{"oc", "R-18"}, want: RestrictionR18},
		{name: "tag r18g", tags: []string{"R-18G"}, want: RestrictionR18G},
		{name: "lowercase tag", tags: []string{"r18"}, want: RestrictionR18},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := illustPayload{XRestrict: tt.xRestrict}
			if got := restrictionOf(raw, tt.tags); got != tt.want {
				t.Fatalf("restrictionOf = %v, want %v", got, tt.want)
			}
		})
	}
}
