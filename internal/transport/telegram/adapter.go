// Package telegram adapts the transport surface onto the Telegram Bot API
// via telebot. Albums stand in for forward bundles: Telegram renders a
// media group as one collapsible unit.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	kit "pixivbot/internal/transport"
	logx "pixivbot/pkg/logx"
)

// Telegram caps media groups at 10 items.
const albumChunk = 10

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot *tele.Bot
	out atomic.Value // stores (chan<- kit.Update)

	runMu   sync.Mutex
	running bool

	// droppedUpdates counts updates dropped because the consumer was
	// slower than the poll loop; logged on Stop to avoid per-update spam.
	droppedUpdates uint64
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b}
	// Ensure atomic.Value is initialized with a stable dynamic type.
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Sender == nil {
			return nil
		}
		a.sendUpdate(kit.Update{Message: &kit.Message{
			ID:           m.ID,
			ChatID:       m.Chat.ID,
			FromID:       m.Sender.ID,
			FromUsername: m.Sender.Username,
			Text:         m.Text,
			IsGroup:      m.Chat.Type != tele.ChatPrivate,
		}})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	v := a.out.Load()
	out, _ := v.(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if a.running {
		return nil
	}
	a.running = true
	a.out.Store(out)
	go a.bot.Start()
	a.log.Info("telegram adapter started", logx.String("bot", a.Identity()))
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	if !a.running {
		return nil
	}
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.bot.Stop()
	if n := atomic.LoadUint64(&a.droppedUpdates); n > 0 {
		a.log.Warn("updates dropped (slow consumer)", logx.Int64("count", int64(n)))
	}
	return nil
}

func (a *Adapter) Identity() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) SupportsAlbum() bool { return true }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string) (kit.MessageRef, error) {
	m, err := a.bot.Send(tele.ChatID(to.ChatID), text)
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: m.Chat.ID, MessageID: m.ID}, nil
}

func (a *Adapter) SendPhotos(ctx context.Context, to kit.ChatTarget, text string, images [][]byte) error {
	if text != "" {
		if _, err := a.SendText(ctx, to, text); err != nil {
			return err
		}
	}
	for _, img := range images {
		photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(img))}
		if _, err := a.bot.Send(tele.ChatID(to.ChatID), photo); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) SendAlbum(ctx context.Context, to kit.ChatTarget, text string, images [][]byte) error {
	for start := 0; start < len(images); start += albumChunk {
		end := min(start+albumChunk, len(images))
		album := make(tele.Album, 0, end-start)
		for i := start; i < end; i++ {
			photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(images[i]))}
			if i == 0 {
				photo.Caption = text
			}
			album = append(album, photo)
		}
		if _, err := a.bot.SendAlbum(tele.ChatID(to.ChatID), album); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) SendDocument(ctx context.Context, to kit.ChatTarget, name string, data []byte, path string) error {
	doc := &tele.Document{FileName: name}
	if data != nil {
		doc.File = tele.FromReader(bytes.NewReader(data))
	} else {
		doc.File = tele.FromDisk(path)
	}
	_, err := a.bot.Send(tele.ChatID(to.ChatID), doc)
	return err
}

func (a *Adapter) DeleteMessage(ctx context.Context, ref kit.MessageRef) error {
	return a.bot.Delete(&tele.StoredMessage{
		ChatID:    ref.ChatID,
		MessageID: strconv.Itoa(ref.MessageID),
	})
}
