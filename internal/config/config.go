package config

import (
	"errors"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

// Defaults applied by Validate when fields are omitted.
const (
	DefaultDownloadConcurrency = 4
	DefaultRatePerSec          = 2
	DefaultIntervalMinutes     = 10
)

func Parse(b []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(string(b)))
	// Reject unknown keys so typos are caught at load time, not silently
	// ignored until a feature misbehaves.
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes defaults and rejects out-of-range values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return errors.New("telegram.token is required")
	}

	switch cfg.Render.R18Policy {
	case "":
		cfg.Render.R18Policy = R18Block
	case R18Block, R18Warn, R18Send:
	default:
		return fmt.Errorf("render.r18_policy: unknown value %q", cfg.Render.R18Policy)
	}

	switch cfg.Render.PDFMode {
	case "":
		cfg.Render.PDFMode = PDFBuffer
	case PDFBuffer, PDFFile:
	default:
		return fmt.Errorf("render.pdf_mode: unknown value %q", cfg.Render.PDFMode)
	}

	if cfg.Render.PDFThreshold < 0 {
		return errors.New("render.pdf_threshold must be >= 0")
	}
	if cfg.Render.ForwardThreshold < 0 {
		return errors.New("render.forward_threshold must be >= 0")
	}
	if q := cfg.Render.JPEGQuality; q < 0 || q > 100 {
		return errors.New("render.jpeg_quality must be in 0..100")
	}

	if cfg.Pixiv.DownloadConcurrency < 0 {
		return errors.New("pixiv.download_concurrency must be >= 0")
	}
	if cfg.Pixiv.DownloadConcurrency == 0 {
		cfg.Pixiv.DownloadConcurrency = DefaultDownloadConcurrency
	}
	if cfg.Pixiv.RatePerSec <= 0 {
		cfg.Pixiv.RatePerSec = DefaultRatePerSec
	}

	if cfg.Watch.Enabled {
		if cfg.Watch.IntervalMinutes < 0 {
			return errors.New("watch.interval_minutes must be >= 0")
		}
		if cfg.Watch.IntervalMinutes == 0 {
			cfg.Watch.IntervalMinutes = DefaultIntervalMinutes
		}
		seen := make(map[int64]struct{}, len(cfg.Watch.Authors))
		for i, a := range cfg.Watch.Authors {
			if a.ID <= 0 {
				return fmt.Errorf("watch.authors[%d]: id must be a positive integer", i)
			}
			if _, dup := seen[a.ID]; dup {
				return fmt.Errorf("watch.authors[%d]: duplicate author id %d", i, a.ID)
			}
			seen[a.ID] = struct{}{}
			if len(a.Channels) == 0 {
				return fmt.Errorf("watch.authors[%d]: at least one channel is required", i)
			}
		}
	}

	// Durations are validated eagerly so a broken reload never reaches
	// the running services.
	durs := []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"pixiv.image_timeout", cfg.Pixiv.ImageTimeout},
		{"render.file_grace_delay", cfg.Render.FileGraceDelay},
		{"storage.busy_timeout", cfg.Storage.BusyTimeout},
		{"browser.timeout", cfg.Browser.Timeout},
	}
	for _, d := range durs {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}

	return nil
}
