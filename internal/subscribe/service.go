// Package subscribe polls tracked authors for new artwork and pushes the
// result to their configured channels. Dedup state is one last-seen id per
// author, persisted through storage.Store.
package subscribe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pixivbot/internal/pixiv"
	"pixivbot/internal/storage"
	logx "pixivbot/pkg/logx"
)

// Gallery is the listing surface the tracker needs from the API client.
type Gallery interface {
	UserIllusts(ctx context.Context, userID int64) ([]pixiv.Illust, error)
}

// PushFunc renders an artwork in silent mode and delivers it to one
// channel. delivered is false when the render decided to skip (blocked or
// contentless); err reports a delivery failure.
type PushFunc func(ctx context.Context, il *pixiv.Illust, channel int64) (delivered bool, err error)

type Author struct {
	ID       int64
	Name     string
	Channels []int64
}

type Config struct {
	Interval time.Duration
	Authors  []Author
}

type Service struct {
	cfg     Config
	gallery Gallery
	store   storage.Store
	push    PushFunc
	log     logx.Logger

	// runMu serializes cycles: a manual trigger and a timer tick never
	// interleave their author loops.
	runMu sync.Mutex

	mu   sync.Mutex
	cron *cron.Cron
}

func New(cfg Config, gallery Gallery, store storage.Store, push PushFunc, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Service{cfg: cfg, gallery: gallery, store: store, push: push, log: log}
}

// Start seeds missing last-seen records and arms the poll timer. Exactly
// one timer runs per started service; Stop disarms it.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	s.Seed(ctx)

	c := cron.New()
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, func() {
		if _, err := s.RunCycle(context.Background(), false); err != nil {
			s.log.Warn("watch cycle failed", logx.Err(err))
		}
	}); err != nil {
		return err
	}
	c.Start()
	s.cron = c
	s.log.Info("watch started",
		logx.Duration("interval", s.cfg.Interval),
		logx.Int("authors", len(s.cfg.Authors)))
	return nil
}

// Stop cancels the timer and waits for a running cycle to finish. After
// Stop returns no further ticks fire.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}
	done := c.Stop().Done()
	select {
	case <-done:
	case <-ctx.Done():
	}
	s.log.Info("watch stopped")
	return nil
}

// Seed writes an initial last-seen record for every configured author that
// has none, without pushing anything. This keeps a freshly added author's
// back catalogue from flooding the channels.
func (s *Service) Seed(ctx context.Context) {
	for _, a := range s.cfg.Authors {
		_, ok, err := s.store.LastSeen(ctx, a.ID)
		if err != nil {
			s.log.Warn("seed: read record failed", logx.Int64("author", a.ID), logx.Err(err))
			continue
		}
		if ok {
			continue
		}
		latest := s.latestOf(ctx, a.ID)
		if latest == nil {
			continue
		}
		if err := s.store.SetLastSeen(ctx, a.ID, latest.ID); err != nil {
			s.log.Warn("seed: write record failed", logx.Int64("author", a.ID), logx.Err(err))
			continue
		}
		s.log.Info("seeded author", logx.Int64("author", a.ID), logx.Int64("latest", latest.ID))
	}
}

// RunCycle walks the author list sequentially. manual forces a re-push of
// each author's current latest artwork even when already seen. It returns
// the number of authors that had content delivered.
func (s *Service) RunCycle(ctx context.Context, manual bool) (int, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	pushed := 0
	for _, a := range s.cfg.Authors {
		if ctx.Err() != nil {
			return pushed, ctx.Err()
		}
		if s.checkAuthor(ctx, a, manual) {
			pushed++
		}
	}
	return pushed, nil
}

func (s *Service) checkAuthor(ctx context.Context, a Author, manual bool) (delivered bool) {
	// One author's failure never halts the rest of the list.
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("watch: panic checking author", logx.Int64("author", a.ID), logx.Any("panic", r))
		}
	}()

	latest := s.latestOf(ctx, a.ID)
	if latest == nil {
		return false
	}

	last, ok, err := s.store.LastSeen(ctx, a.ID)
	if err != nil {
		s.log.Warn("watch: read record failed", logx.Int64("author", a.ID), logx.Err(err))
		return false
	}

	isNew := !ok || latest.ID != last
	shouldPush := isNew || manual

	if shouldPush {
		for _, ch := range a.Channels {
			ok, err := s.push(ctx, latest, ch)
			if err != nil {
				// Keep trying the remaining channels.
				s.log.Warn("watch: delivery failed",
					logx.Int64("author", a.ID), logx.Int64("channel", ch), logx.Err(err))
				continue
			}
			if ok {
				delivered = true
			}
		}
	}

	// The record tracks what the API showed us, not what got delivered:
	// persist even when every channel failed.
	if isNew {
		if err := s.store.SetLastSeen(ctx, a.ID, latest.ID); err != nil {
			s.log.Warn("watch: write record failed", logx.Int64("author", a.ID), logx.Err(err))
		}
	}
	return delivered
}

// latestOf returns the artwork with the greatest id in the author's
// listing. The API serves newest-first, but an explicit max is cheap and
// holds even if that contract slips.
func (s *Service) latestOf(ctx context.Context, authorID int64) *pixiv.Illust {
	illusts, err := s.gallery.UserIllusts(ctx, authorID)
	if err != nil {
		s.log.Warn("watch: listing failed", logx.Int64("author", authorID), logx.Err(err))
		return nil
	}
	if len(illusts) == 0 {
		return nil
	}
	latest := &illusts[0]
	for i := range illusts {
		if illusts[i].ID > latest.ID {
			latest = &illusts[i]
		}
	}
	return latest
}
