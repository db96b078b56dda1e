package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"pixivbot/internal/config"
	"pixivbot/internal/pixiv"
	"pixivbot/internal/render"
	"pixivbot/internal/transport"
	logx "pixivbot/pkg/logx"
)

type fakeGallery struct {
	illusts   map[int64]*pixiv.Illust
	detailErr error
	failURLs  map[string]bool
}

func (g *fakeGallery) IllustDetail(_ context.Context, id int64) (*pixiv.Illust, error) {
	if g.detailErr != nil {
		return nil, g.detailErr
	}
	return g.illusts[id], nil
}

func (g *fakeGallery) UserDetail(context.Context, int64) (*pixiv.User, error) { return nil, nil }

func (g *fakeGallery) UserIllusts(context.Context, int64) ([]pixiv.Illust, error) {
	return nil, nil
}

func (g *fakeGallery) DownloadAll(_ context.Context, urls []string) [][]byte {
	out := make([][]byte, len(urls))
	for i, u := range urls {
		if g.failURLs[u] {
			continue
		}
		out[i] = []byte("img:" + u)
	}
	return out
}

func (g *fakeGallery) DownloadImage(context.Context, string) []byte { return nil }

type docCall struct {
	name string
	data []byte
	path string
}

type fakeSink struct {
	mu      sync.Mutex
	texts   []string
	photos  [][][]byte
	albums  [][][]byte
	docs    []docCall
	album   bool
	sendErr error
}

func (s *fakeSink) SendText(_ context.Context, _ transport.ChatTarget, text string) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return transport.MessageRef{}, s.sendErr
	}
	s.texts = append(s.texts, text)
	return transport.MessageRef{MessageID: len(s.texts)}, nil
}

func (s *fakeSink) SendPhotos(_ context.Context, _ transport.ChatTarget, text string, images [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.texts = append(s.texts, text)
	s.photos = append(s.photos, images)
	return nil
}

func (s *fakeSink) SendAlbum(_ context.Context, _ transport.ChatTarget, text string, images [][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.texts = append(s.texts, text)
	s.albums = append(s.albums, images)
	return nil
}

func (s *fakeSink) SendDocument(_ context.Context, _ transport.ChatTarget, name string, data []byte, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return s.sendErr
	}
	s.docs = append(s.docs, docCall{name: name, data: data, path: path})
	return nil
}

func (s *fakeSink) DeleteMessage(context.Context, transport.MessageRef) error { return nil }

func (s *fakeSink) SupportsAlbum() bool { return s.album }

func testHandlerIllust(id int64, pages int, restriction pixiv.Restriction) *pixiv.Illust {
	urls := make([]string, pages)
	for i := range urls {
		urls[i] = fmt.Sprintf("https://i.pximg.net/%d/p%d.jpg", id, i)
	}
	return &pixiv.Illust{
		ID:          id,
		Title:       "Evening Sketch",
		AuthorID:    77,
		AuthorName:  "mio",
		Tags:        []string{"original"},
		Restriction: restriction,
		ImageURLs:   urls,
		PageCount:   pages,
	}
}

func newTestHandler(gallery *fakeGallery, sink *fakeSink, opts render.Options) *Handler {
	if opts.R18Policy == "" {
		opts.R18Policy = config.R18Send
	}
	return NewHandler(gallery, render.New(opts, logx.Nop()), sink, logx.Nop())
}

func TestHandleArtworkSendsImages(t *testing.T) {
	t.Parallel()

	gallery := &fakeGallery{illusts: map[int64]*pixiv.Illust{
		42: testHandlerIllust(42, 2, pixiv.RestrictionNone),
	}}
	sink := &fakeSink{}
	h := newTestHandler(gallery, sink, render.Options{})

	if err := h.HandleArtwork(context.Background(), 42, false, transport.ChatTarget{ChatID: 1}); err != nil {
		t.Fatalf("HandleArtwork: %v", err)
	}
	if len(sink.photos) != 1 {
		t.Fatalf("photo sends = %d, want 1", len(sink.photos))
	}
	if got := len(sink.photos[0]); got != 2 {
		t.Fatalf("images delivered = %d, want 2", got)
	}
	if len(sink.texts) != 1 || !strings.Contains(sink.texts[0], "Evening Sketch") {
		t.Fatalf("caption = %q, want title present", sink.texts)
	}
}

func TestHandleArtworkAlbumWhenSupported(t *testing.T) {
	t.Parallel()

	gallery := &fakeGallery{illusts: map[int64]*pixiv.Illust{
		42: testHandlerIllust(42, 3, pixiv.RestrictionNone),
	}}

	for _, tc := range []struct {
		name       string
		album      bool
		wantAlbums int
		wantPhotos int
	}{
		{name: "album capable", album: true, wantAlbums: 1, wantPhotos: 0},
		{name: "plain fallback", album: false, wantAlbums: 0, wantPhotos: 1},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sink := &fakeSink{album: tc.album}
			h := newTestHandler(gallery, sink, render.Options{ForwardThreshold: 2})

			if err := h.HandleArtwork(context.Background(), 42, false, transport.ChatTarget{ChatID: 1}); err != nil {
				t.Fatalf("HandleArtwork: %v", err)
			}
			if len(sink.albums) != tc.wantAlbums || len(sink.photos) != tc.wantPhotos {
				t.Fatalf("albums=%d photos=%d, want %d/%d",
					len(sink.albums), len(sink.photos), tc.wantAlbums, tc.wantPhotos)
			}
		})
	}
}

func TestHandleArtworkMissing(t *testing.T) {
	t.Parallel()

	gallery := &fakeGallery{illusts: map[int64]*pixiv.Illust{}}
	sink := &fakeSink{}
	h := newTestHandler(gallery, sink, render.Options{})

	err := h.HandleArtwork(context.Background(), 7, false, transport.ChatTarget{ChatID: 1})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("interactive miss: err = %v, want ErrNotFound", err)
	}

	if err := h.HandleArtwork(context.Background(), 7, true, transport.ChatTarget{ChatID: 1}); err != nil {
		t.Fatalf("silent miss: err = %v, want nil", err)
	}
	if len(sink.texts)+len(sink.photos)+len(sink.albums) != 0 {
		t.Fatalf("sink received output for a missing artwork")
	}
}

func TestHandleArtworkAuthErrorPropagates(t *testing.T) {
	t.Parallel()

	authErr := fmt.Errorf("token exchange rejected: %w", pixiv.ErrAuth)
	gallery := &fakeGallery{detailErr: authErr}
	h := newTestHandler(gallery, &fakeSink{}, render.Options{})

	err := h.HandleArtwork(context.Background(), 42, false, transport.ChatTarget{ChatID: 1})
	if !errors.Is(err, pixiv.ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth in chain", err)
	}
}

func TestPushReportsDeliveryOutcome(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		name          string
		illust        *pixiv.Illust
		opts          render.Options
		sendErr       error
		wantDelivered bool
		wantErr       bool
	}{
		{
			name:          "plain push delivered",
			illust:        testHandlerIllust(42, 1, pixiv.RestrictionNone),
			wantDelivered: true,
		},
		{
			name:          "blocked restricted push skipped",
			illust:        testHandlerIllust(42, 1, pixiv.RestrictionR18),
			opts:          render.Options{R18Policy: config.R18Block},
			wantDelivered: false,
		},
		{
			name:    "sink failure surfaces",
			illust:  testHandlerIllust(42, 1, pixiv.RestrictionNone),
			sendErr: errors.New("chat not found"),
			wantErr: true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sink := &fakeSink{sendErr: tc.sendErr}
			h := newTestHandler(&fakeGallery{}, sink, tc.opts)

			delivered, err := h.Push(context.Background(), tc.illust, 99)
			if tc.wantErr != (err != nil) {
				t.Fatalf("err = %v, wantErr = %v", err, tc.wantErr)
			}
			if delivered != tc.wantDelivered {
				t.Fatalf("delivered = %v, want %v", delivered, tc.wantDelivered)
			}
		})
	}
}

func TestPushSkipsFullyFailedDownloads(t *testing.T) {
	t.Parallel()

	il := testHandlerIllust(42, 2, pixiv.RestrictionNone)
	gallery := &fakeGallery{failURLs: map[string]bool{
		il.ImageURLs[0]: true,
		il.ImageURLs[1]: true,
	}}
	sink := &fakeSink{}
	h := newTestHandler(gallery, sink, render.Options{})

	delivered, err := h.Push(context.Background(), il, 99)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if delivered {
		t.Fatalf("delivered = true for a contentless artwork")
	}
	if len(sink.texts) != 0 {
		t.Fatalf("sink received %d texts, want 0", len(sink.texts))
	}
}

func TestDeliverRunsCleanupOnFailure(t *testing.T) {
	t.Parallel()

	sink := &fakeSink{sendErr: errors.New("upload rejected")}
	h := NewHandler(&fakeGallery{}, render.New(render.Options{}, logx.Nop()), sink, logx.Nop())

	cleaned := false
	p := &render.Payload{
		Kind:    render.KindPDFFile,
		PDFName: "42.pdf",
		PDFPath: "/tmp/does-not-matter.pdf",
		Cleanup: func() { cleaned = true },
	}
	if err := h.deliver(context.Background(), p, transport.ChatTarget{ChatID: 1}); err == nil {
		t.Fatalf("deliver: expected error from sink")
	}
	if !cleaned {
		t.Fatalf("cleanup not invoked after failed delivery")
	}
}
