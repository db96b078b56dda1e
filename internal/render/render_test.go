package render

import (
	"errors"
	"strings"
	"testing"

	"pixivbot/internal/config"
	"pixivbot/internal/pixiv"
	logx "pixivbot/pkg/logx"
)

func testIllust(restriction pixiv.Restriction, tags ...string) *pixiv.Illust {
	return &pixiv.Illust{
		ID:          42,
		Title:       "evening",
		AuthorID:    7,
		AuthorName:  "aoi",
		Tags:        tags,
		Restriction: restriction,
	}
}

func fakeImages(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{0xff, byte(i)}
	}
	return out
}

func TestRenderDecisionMatrix(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name         string
		opts         Options
		restriction  pixiv.Restriction
		images       int
		silent       bool
		albumCapable bool
		want         Kind
	}{
		{name: "plain single image", opts: Options{R18Policy: config.R18Send}, images: 1, want: KindImages},
		{name: "r18 blocked interactive", opts: Options{R18Policy: config.R18Block}, restriction: pixiv.RestrictionR18, images: 1, want: KindBlocked},
		{name: "r18 blocked silent skips", opts: Options{R18Policy: config.R18Block}, restriction: pixiv.RestrictionR18, images: 1, silent: true, want: KindNone},
		{name: "r18 warn interactive is text only", opts: Options{R18Policy: config.R18Warn}, restriction: pixiv.RestrictionR18, images: 3, want: KindText},
		{name: "r18 warn silent sends", opts: Options{R18Policy: config.R18Warn}, restriction: pixiv.RestrictionR18G, images: 1, silent: true, want: KindImages},
		{name: "album at threshold", opts: Options{R18Policy: config.R18Send, ForwardThreshold: 3}, images: 3, albumCapable: true, want: KindAlbum},
		{name: "album below threshold", opts: Options{R18Policy: config.R18Send, ForwardThreshold: 3}, images: 2, albumCapable: true, want: KindImages},
		{name: "album threshold disabled", opts: Options{R18Policy: config.R18Send}, images: 9, albumCapable: true, want: KindImages},
		{name: "album unsupported platform", opts: Options{R18Policy: config.R18Send, ForwardThreshold: 3}, images: 5, want: KindImages},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.opts, logx.Nop())
			p, err := r.Render(testIllust(tt.restriction), fakeImages(tt.images), tt.silent, tt.albumCapable)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if p.Kind != tt.want {
				t.Fatalf("Kind = %v, want %v", p.Kind, tt.want)
			}
		})
	}
}

func TestRenderWarnPayloadTextOnly(t *testing.T) {
	t.Parallel()
	r := New(Options{R18Policy: config.R18Warn}, logx.Nop())
	p, err := r.Render(testIllust(pixiv.RestrictionR18), fakeImages(2), false, true)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if p.Kind != KindText {
		t.Fatalf("Kind = %v", p.Kind)
	}
	if len(p.Images) != 0 || p.PDF != nil || p.PDFPath != "" {
		t.Fatal("warning payload must carry no images or documents")
	}
	if !strings.Contains(p.Text, "evening") || !strings.Contains(p.Text, "aoi") {
		t.Fatalf("warning text missing title/author: %q", p.Text)
	}
}

func TestRenderNoContent(t *testing.T) {
	t.Parallel()
	r := New(Options{R18Policy: config.R18Send}, logx.Nop())
	_, err := r.Render(testIllust(pixiv.RestrictionNone), [][]byte{nil, nil}, false, false)
	if !errors.Is(err, ErrNoContent) {
		t.Fatalf("err = %v, want ErrNoContent", err)
	}
}

func TestRenderFiltersFailedDownloads(t *testing.T) {
	t.Parallel()
	r := New(Options{R18Policy: config.R18Send}, logx.Nop())
	images := [][]byte{[]byte("a"), nil, []byte("c")}
	p, err := r.Render(testIllust(pixiv.RestrictionNone), images, false, false)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if len(p.Images) != 2 || string(p.Images[0]) != "a" || string(p.Images[1]) != "c" {
		t.Fatalf("images = %q", p.Images)
	}
}

func TestComposeTextLines(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		opts        Options
		il          *pixiv.Illust
		warn        bool
		interactive bool
		want        []string
		absent      []string
	}{
		{
			name:        "all lines",
			opts:        Options{SourceLink: true},
			il:          testIllust(pixiv.RestrictionR18, "oc", "night"),
			warn:        true,
			interactive: true,
			want:        []string{"evening", "Author: aoi", "Tags: oc night", "Warning: R-18", "https://www.pixiv.net/artworks/42"},
		},
		{
			name:   "no tags no link",
			il:     testIllust(pixiv.RestrictionNone),
			absent: []string{"Tags:", "Warning:", "pixiv.net"},
			want:   []string{"evening", "Author: aoi"},
		},
		{
			name:        "source link needs config",
			il:          testIllust(pixiv.RestrictionNone),
			interactive: true,
			absent:      []string{"pixiv.net"},
		},
		{
			name:   "link configured but silent path",
			opts:   Options{SourceLink: true},
			il:     testIllust(pixiv.RestrictionNone),
			absent: []string{"pixiv.net"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(tt.opts, logx.Nop())
			got := r.composeText(tt.il, tt.warn, tt.interactive)
			for _, w := range tt.want {
				if !strings.Contains(got, w) {
					t.Errorf("missing %q in %q", w, got)
				}
			}
			for _, a := range tt.absent {
				if strings.Contains(got, a) {
					t.Errorf("unexpected %q in %q", a, got)
				}
			}
			// Conditional lines are omitted, never blank.
			for _, line := range strings.Split(got, "\n") {
				if strings.TrimSpace(line) == "" {
					t.Errorf("blank line in %q", got)
				}
			}
		})
	}
}
