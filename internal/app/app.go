// Package app wires the configuration manager, gallery client, renderer,
// subscription tracker, and Telegram adapter into one process, and routes
// incoming chat messages to the artwork handler.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"pixivbot/internal/browser"
	"pixivbot/internal/config"
	"pixivbot/internal/pixiv"
	"pixivbot/internal/render"
	"pixivbot/internal/storage"
	"pixivbot/internal/subscribe"
	"pixivbot/internal/transport"
	"pixivbot/internal/transport/telegram"
	logx "pixivbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger

	store    storage.Store
	gallery  *pixiv.Client
	renderer *render.Renderer
	adapter  transport.Adapter
	handler  *Handler
	capturer browser.Capturer
	// capCookie is passed to every profile capture.
	capCookie string

	owners map[int64]struct{}

	// mu guards the watch service pointer across hot reloads.
	mu    sync.Mutex
	watch *subscribe.Service

	updates chan transport.Update
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	log, err := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	if err != nil {
		return nil, err
	}
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	imageTimeout, err := config.ParseDurationOrDefault("pixiv.image_timeout", cfg.Pixiv.ImageTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}
	gallery, err := pixiv.New(pixiv.Config{
		RefreshToken:        cfg.Pixiv.RefreshToken,
		ClientID:            cfg.Pixiv.ClientID,
		ClientSecret:        cfg.Pixiv.ClientSecret,
		Proxy:               cfg.Pixiv.Proxy,
		MirrorHost:          cfg.Pixiv.MirrorHost,
		DownloadConcurrency: cfg.Pixiv.DownloadConcurrency,
		ImageTimeout:        imageTimeout,
		RatePerSec:          cfg.Pixiv.RatePerSec,
	}, log.With(logx.String("comp", "pixiv")))
	if err != nil {
		return nil, err
	}

	graceDelay, err := config.ParseDurationOrDefault("render.file_grace_delay", cfg.Render.FileGraceDelay, time.Minute)
	if err != nil {
		return nil, err
	}
	renderer := render.New(render.Options{
		R18Policy:        cfg.Render.R18Policy,
		PDFAlwaysForR18:  cfg.Render.PDFAlwaysForR18,
		PDFThreshold:     cfg.Render.PDFThreshold,
		ForwardThreshold: cfg.Render.ForwardThreshold,
		PDFMode:          cfg.Render.PDFMode,
		JPEGQuality:      cfg.Render.JPEGQuality,
		PDFPassword:      cfg.Render.PDFPassword,
		SourceLink:       cfg.Render.SourceLink,
		FileGraceDelay:   graceDelay,
	}, log.With(logx.String("comp", "render")))

	var capturer browser.Capturer
	var capCookie string
	if cfg.Browser.Enabled {
		browserTimeout, err := config.ParseDurationOrDefault("browser.timeout", cfg.Browser.Timeout, 30*time.Second)
		if err != nil {
			return nil, err
		}
		capturer = browser.New(browser.Config{
			Timeout:       browserTimeout,
			SessionCookie: cfg.Browser.SessionCookie,
		}, log.With(logx.String("comp", "browser")))
		capCookie = cfg.Browser.SessionCookie
	}

	owners := make(map[int64]struct{}, len(cfg.Telegram.OwnerUserIDs))
	for _, id := range cfg.Telegram.OwnerUserIDs {
		owners[id] = struct{}{}
	}

	return &App{
		cfgm:      cfgm,
		log:       log,
		store:     store,
		gallery:   gallery,
		renderer:  renderer,
		adapter:   adapter,
		handler:   NewHandler(gallery, renderer, adapter, log.With(logx.String("comp", "handler"))),
		capturer:  capturer,
		capCookie: capCookie,
		owners:    owners,
		updates:   make(chan transport.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return fmt.Errorf("start telegram adapter: %w", err)
	}
	a.log.Info("connected", logx.String("bot", a.adapter.Identity()))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.dispatch(runCtx)
	}()

	if err := a.armWatch(runCtx, a.cfgm.Get()); err != nil {
		a.log.Error("arming author watch failed", logx.Err(err))
	}

	// Hot reload: re-arm the watch timer when the author list or interval
	// changes on disk. Everything else keeps its boot-time wiring.
	sub := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				if err := a.armWatch(runCtx, cfg); err != nil {
					a.log.Error("re-arming author watch failed", logx.Err(err))
				}
			}
		}
	}()
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	return nil
}

// armWatch stops any running subscription service and, when the watch
// section is enabled, starts a fresh one from cfg. Safe to call on every
// config reload.
func (a *App) armWatch(ctx context.Context, cfg *config.Config) error {
	a.mu.Lock()
	old := a.watch
	a.watch = nil
	a.mu.Unlock()
	if old != nil {
		if err := old.Stop(ctx); err != nil {
			a.log.Warn("stopping author watch", logx.Err(err))
		}
	}

	if cfg == nil || !cfg.Watch.Enabled || len(cfg.Watch.Authors) == 0 {
		a.log.Debug("author watch disabled")
		return nil
	}
	if want := cfg.Watch.Bot; want != "" && want != a.adapter.Identity() {
		return fmt.Errorf("watch target bot %q is not the connected account %q", want, a.adapter.Identity())
	}

	authors := make([]subscribe.Author, 0, len(cfg.Watch.Authors))
	for _, w := range cfg.Watch.Authors {
		authors = append(authors, subscribe.Author{ID: w.ID, Name: w.Name, Channels: w.Channels})
	}
	svc := subscribe.New(subscribe.Config{
		Interval: time.Duration(cfg.Watch.IntervalMinutes) * time.Minute,
		Authors:  authors,
	}, a.gallery, a.store, a.handler.Push, a.log.With(logx.String("comp", "watch")))
	if err := svc.Start(ctx); err != nil {
		return err
	}

	a.mu.Lock()
	a.watch = svc
	a.mu.Unlock()
	a.log.Info("author watch armed",
		logx.Int("authors", len(authors)),
		logx.Int("interval_minutes", cfg.Watch.IntervalMinutes))
	return nil
}

func (a *App) watchService() *subscribe.Service {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.watch
}

func (a *App) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			a.wg.Add(1)
			go func() {
				defer a.wg.Done()
				defer func() {
					if r := recover(); r != nil {
						a.log.Error("update handler panicked", logx.Any("panic", r))
					}
				}()
				a.route(ctx, up)
			}()
		}
	}
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if svc := a.watchService(); svc != nil {
		if err := svc.Stop(ctx); err != nil {
			a.log.Warn("stopping author watch", logx.Err(err))
		}
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("stopping telegram adapter", logx.Err(err))
	}
	a.wg.Wait()
	if err := a.store.Close(); err != nil {
		a.log.Warn("closing storage", logx.Err(err))
	}
	a.log.Info("stopped")
	return a.log.Close()
}
