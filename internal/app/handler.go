package app

import (
	"context"
	"errors"
	"fmt"

	"pixivbot/internal/pixiv"
	"pixivbot/internal/render"
	"pixivbot/internal/transport"
	logx "pixivbot/pkg/logx"
)

// ErrNotFound reports an artwork or author the gallery could not serve.
var ErrNotFound = errors.New("not found")

// Gallery is the client surface the handler needs; *pixiv.Client
// implements it.
type Gallery interface {
	IllustDetail(ctx context.Context, id int64) (*pixiv.Illust, error)
	UserDetail(ctx context.Context, id int64) (*pixiv.User, error)
	UserIllusts(ctx context.Context, userID int64) ([]pixiv.Illust, error)
	DownloadAll(ctx context.Context, urls []string) [][]byte
	DownloadImage(ctx context.Context, url string) []byte
}

// Handler is the single artwork-request entry point shared by the three
// triggers: interactive command, passive link match, and the watch loop.
type Handler struct {
	gallery  Gallery
	renderer *render.Renderer
	sink     transport.Sink
	log      logx.Logger
}

func NewHandler(gallery Gallery, renderer *render.Renderer, sink transport.Sink, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{gallery: gallery, renderer: renderer, sink: sink, log: log}
}

// HandleArtwork fetches, renders, and delivers one artwork. silent marks
// the watch path: notices are suppressed and misses are skipped quietly.
func (h *Handler) HandleArtwork(ctx context.Context, id int64, silent bool, target transport.ChatTarget) error {
	delivered, err := h.fetchAndDeliver(ctx, id, silent, target)
	if err != nil {
		return err
	}
	if !delivered && !silent {
		return ErrNotFound
	}
	return nil
}

// Push is the watch loop's delivery callback.
func (h *Handler) Push(ctx context.Context, il *pixiv.Illust, channel int64) (bool, error) {
	return h.renderAndDeliver(ctx, il, true, transport.ChatTarget{ChatID: channel})
}

func (h *Handler) fetchAndDeliver(ctx context.Context, id int64, silent bool, target transport.ChatTarget) (bool, error) {
	il, err := h.gallery.IllustDetail(ctx, id)
	if err != nil {
		return false, err
	}
	if il == nil {
		return false, nil
	}
	return h.renderAndDeliver(ctx, il, silent, target)
}

func (h *Handler) renderAndDeliver(ctx context.Context, il *pixiv.Illust, silent bool, target transport.ChatTarget) (bool, error) {
	images := h.gallery.DownloadAll(ctx, il.ImageURLs)

	payload, err := h.renderer.Render(il, images, silent, h.sink.SupportsAlbum())
	if err != nil {
		if errors.Is(err, render.ErrNoContent) {
			if silent {
				h.log.Debug("skipping contentless artwork", logx.Int64("illust", il.ID))
				return false, nil
			}
			return false, fmt.Errorf("no downloadable images for artwork %d", il.ID)
		}
		return false, err
	}
	if payload.Kind == render.KindNone {
		return false, nil
	}
	if err := h.deliver(ctx, payload, target); err != nil {
		return false, err
	}
	return true, nil
}

func (h *Handler) deliver(ctx context.Context, p *render.Payload, target transport.ChatTarget) error {
	// File-mode artifacts get their grace-delay removal scheduled whether
	// or not the send succeeded.
	if p.Cleanup != nil {
		defer p.Cleanup()
	}

	switch p.Kind {
	case render.KindBlocked, render.KindText:
		_, err := h.sink.SendText(ctx, target, p.Text)
		return err
	case render.KindImages:
		return h.sink.SendPhotos(ctx, target, p.Text, p.Images)
	case render.KindAlbum:
		return h.sink.SendAlbum(ctx, target, p.Text, p.Images)
	case render.KindPDFBuffer:
		if p.Text != "" {
			if _, err := h.sink.SendText(ctx, target, p.Text); err != nil {
				return err
			}
		}
		return h.sink.SendDocument(ctx, target, p.PDFName, p.PDF, "")
	case render.KindPDFFile:
		if p.Text != "" {
			if _, err := h.sink.SendText(ctx, target, p.Text); err != nil {
				return err
			}
		}
		return h.sink.SendDocument(ctx, target, p.PDFName, nil, p.PDFPath)
	default:
		return nil
	}
}
