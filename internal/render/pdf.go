package render

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jung-kurt/gofpdf"

	"pixivbot/internal/config"
	"pixivbot/internal/pixiv"
	logx "pixivbot/pkg/logx"
)

// renderPDF builds a document with one page per image, each page sized to
// the image's pixel dimensions. The per-call build directory is removed on
// every exit path; only the file-mode artifact outlives the call, and that
// for no longer than the grace delay.
func (r *Renderer) renderPDF(il *pixiv.Illust, images [][]byte, text string) (*Payload, error) {
	buildDir, err := os.MkdirTemp(r.opts.TempDir, "pixivbot-pdf-")
	if err != nil {
		return nil, fmt.Errorf("render: create build dir: %w", err)
	}
	defer os.RemoveAll(buildDir)

	pdf := gofpdf.NewCustom(&gofpdf.InitType{UnitStr: "pt"})
	pdf.SetAutoPageBreak(false, 0)
	if r.opts.PDFPassword != "" {
		// Uniform user and owner password; opening requires it.
		pdf.SetProtection(gofpdf.CnProtectPrint, r.opts.PDFPassword, r.opts.PDFPassword)
	}

	for i, data := range images {
		typ := ""
		if q := r.opts.JPEGQuality; q > 0 {
			data, typ = recompress(data, q)
		}
		w, h, sniffed, err := imageInfo(data)
		if err != nil {
			return nil, fmt.Errorf("render: page %d: %w", i, err)
		}
		if typ == "" {
			typ = sniffed
		}

		page := filepath.Join(buildDir, fmt.Sprintf("page-%03d", i))
		if err := os.WriteFile(page, data, 0o600); err != nil {
			return nil, fmt.Errorf("render: page %d: %w", i, err)
		}

		pdf.AddPageFormat("P", gofpdf.SizeType{Wd: float64(w), Ht: float64(h)})
		opt := gofpdf.ImageOptions{ImageType: typ}
		pdf.RegisterImageOptions(page, opt)
		pdf.ImageOptions(page, 0, 0, float64(w), float64(h), false, opt, 0, "")
	}

	name := fmt.Sprintf("pixiv-%d.pdf", il.ID)

	if r.opts.PDFMode == config.PDFFile {
		out, err := os.CreateTemp(r.opts.TempDir, "pixivbot-*.pdf")
		if err != nil {
			return nil, fmt.Errorf("render: create document: %w", err)
		}
		path := out.Name()
		if err := pdf.OutputAndClose(out); err != nil {
			_ = os.Remove(path)
			return nil, fmt.Errorf("render: write document: %w", err)
		}
		grace := r.opts.FileGraceDelay
		log := r.log
		cleanup := func() {
			time.AfterFunc(grace, func() {
				if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
					log.Warn("pdf artifact removal failed", logx.String("path", path), logx.Err(err))
				}
			})
		}
		return &Payload{Kind: KindPDFFile, Text: text, PDFName: name, PDFPath: path, Cleanup: cleanup}, nil
	}

	doc := filepath.Join(buildDir, name)
	if err := pdf.OutputFileAndClose(doc); err != nil {
		return nil, fmt.Errorf("render: write document: %w", err)
	}
	b, err := os.ReadFile(doc)
	if err != nil {
		return nil, fmt.Errorf("render: read document: %w", err)
	}
	// buildDir removal (deferred) deletes the on-disk copy immediately.
	return &Payload{Kind: KindPDFBuffer, Text: text, PDFName: name, PDF: b}, nil
}
