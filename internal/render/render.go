// Package render turns a fetched artwork plus its downloaded images into a
// delivery payload: an R-18 notice, a PDF document, an album bundle, or a
// plain text-and-images sequence.
package render

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"pixivbot/internal/config"
	"pixivbot/internal/pixiv"
	logx "pixivbot/pkg/logx"
)

// ErrNoContent is returned when every image download failed; callers turn
// it into a user-visible failure (interactive) or a silent skip (watch).
var ErrNoContent = errors.New("render: no downloadable content")

type Kind int

const (
	// KindNone: nothing to deliver (silent skip).
	KindNone Kind = iota
	// KindBlocked: a block notice, text only.
	KindBlocked
	// KindText: a warning payload, text only.
	KindText
	// KindImages: text block then each image as an independent message.
	KindImages
	// KindAlbum: text plus images as one bundled unit.
	KindAlbum
	// KindPDFBuffer: in-memory PDF document.
	KindPDFBuffer
	// KindPDFFile: PDF document on durable temporary storage.
	KindPDFFile
)

type Payload struct {
	Kind   Kind
	Text   string
	Images [][]byte

	PDF     []byte
	PDFName string
	PDFPath string
	// Cleanup removes the file-mode artifact after the configured grace
	// delay. Callers invoke it once delivery has been attempted. Nil for
	// non-file payloads.
	Cleanup func()
}

// Options mirrors the render section of the configuration.
type Options struct {
	R18Policy        config.R18Policy
	PDFAlwaysForR18  bool
	PDFThreshold     int
	ForwardThreshold int

	PDFMode     config.PDFMode
	JPEGQuality int // 0 embeds original bytes
	PDFPassword string

	SourceLink     bool
	FileGraceDelay time.Duration

	// TempDir overrides the PDF build location; empty uses the system
	// temp directory.
	TempDir string
}

type Renderer struct {
	opts Options
	log  logx.Logger
}

func New(opts Options, log logx.Logger) *Renderer {
	if log.IsZero() {
		log = logx.Nop()
	}
	if opts.FileGraceDelay <= 0 {
		opts.FileGraceDelay = 30 * time.Second
	}
	return &Renderer{opts: opts, log: log}
}

// Render picks the delivery strategy for one artwork.
//
// silent marks the watch path: block/warn notices are suppressed there,
// the push is simply skipped. albumCapable reports whether the target
// platform supports bundled messages.
func (r *Renderer) Render(il *pixiv.Illust, images [][]byte, silent, albumCapable bool) (*Payload, error) {
	if il == nil {
		return nil, ErrNoContent
	}

	restricted := il.Restriction.Restricted()
	if restricted {
		switch r.opts.R18Policy {
		case config.R18Block:
			if silent {
				return &Payload{Kind: KindNone}, nil
			}
			return &Payload{Kind: KindBlocked, Text: blockNotice(il)}, nil
		case config.R18Warn:
			if !silent {
				return &Payload{Kind: KindText, Text: r.composeText(il, true, false)}, nil
			}
			// Watch pushes under the warn policy deliver normally;
			// there is nobody to warn.
		}
	}

	imgs := compact(images)
	if len(imgs) == 0 {
		return nil, ErrNoContent
	}

	text := r.composeText(il, restricted, !silent)

	pdfWanted := (r.opts.PDFAlwaysForR18 && restricted) ||
		(r.opts.PDFThreshold > 0 && len(imgs) >= r.opts.PDFThreshold)
	if pdfWanted {
		return r.renderPDF(il, imgs, text)
	}

	if r.opts.ForwardThreshold > 0 && len(imgs) >= r.opts.ForwardThreshold && albumCapable {
		return &Payload{Kind: KindAlbum, Text: text, Images: imgs}, nil
	}
	return &Payload{Kind: KindImages, Text: text, Images: imgs}, nil
}

// composeText builds the deterministic message block: title, author, tags,
// R-18 warning, source link. Conditional lines are omitted entirely.
func (r *Renderer) composeText(il *pixiv.Illust, warn, interactive bool) string {
	var b strings.Builder
	b.WriteString(il.Title)
	if il.AuthorName != "" {
		b.WriteString("\nAuthor: ")
		b.WriteString(il.AuthorName)
	}
	if len(il.Tags) > 0 {
		b.WriteString("\nTags: ")
		b.WriteString(strings.Join(il.Tags, " "))
	}
	if warn && il.Restriction.Restricted() {
		b.WriteString("\nWarning: ")
		b.WriteString(il.Restriction.String())
		b.WriteString(" content")
	}
	if interactive && r.opts.SourceLink {
		b.WriteString(fmt.Sprintf("\nhttps://www.pixiv.net/artworks/%d", il.ID))
	}
	return b.String()
}

func blockNotice(il *pixiv.Illust) string {
	return fmt.Sprintf("%s (%d) is %s content and cannot be sent here.", il.Title, il.ID, il.Restriction)
}

// compact drops failed (nil) downloads, preserving order.
func compact(images [][]byte) [][]byte {
	out := make([][]byte, 0, len(images))
	for _, b := range images {
		if len(b) > 0 {
			out = append(out, b)
		}
	}
	return out
}
