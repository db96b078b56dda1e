package config

// Config is the full YAML configuration schema.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Telegram TelegramConfig `yaml:"telegram"`
	Pixiv    PixivConfig    `yaml:"pixiv"`
	Render   RenderConfig   `yaml:"render"`
	Storage  StorageConfig  `yaml:"storage"`
	Browser  BrowserConfig  `yaml:"browser"`
	Watch    WatchConfig    `yaml:"watch"`
}

type LoggingConfig struct {
	Level   string      `yaml:"level"`
	Console bool        `yaml:"console"`
	File    LoggingFile `yaml:"file"`
}

type LoggingFile struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	OwnerUserIDs []int64 `yaml:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `yaml:"poll_timeout"`
}

// PixivConfig configures the gallery API client.
type PixivConfig struct {
	RefreshToken string `yaml:"refresh_token"`
	// ClientID/ClientSecret default to the public mobile app credentials
	// when omitted.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// Proxy is an optional HTTP proxy URL for API and CDN traffic.
	Proxy string `yaml:"proxy"`
	// MirrorHost optionally replaces the CDN host on image downloads
	// (e.g. "i.pixiv.re").
	MirrorHost string `yaml:"mirror_host"`

	// DownloadConcurrency bounds the per-artwork image download fan-out.
	DownloadConcurrency int `yaml:"download_concurrency"`
	// ImageTimeout is the per-image download timeout.
	ImageTimeout string `yaml:"image_timeout"`
	// RatePerSec throttles authorized API calls.
	RatePerSec int `yaml:"rate_per_sec"`
}

// R18Policy controls what happens when a fetched artwork is age-restricted.
type R18Policy string

const (
	R18Block R18Policy = "block"
	R18Warn  R18Policy = "warn"
	R18Send  R18Policy = "send"
)

// PDFMode selects how a generated document is handed to the sink.
type PDFMode string

const (
	PDFBuffer PDFMode = "buffer"
	PDFFile   PDFMode = "file"
)

// RenderConfig controls output strategy selection.
type RenderConfig struct {
	R18Policy R18Policy `yaml:"r18_policy"`

	// PDFAlwaysForR18 forces PDF output for restricted artworks
	// regardless of image count.
	PDFAlwaysForR18 bool `yaml:"pdf_always_for_r18"`
	// PDFThreshold switches to PDF output when the artwork has at least
	// this many images. 0 disables the trigger.
	PDFThreshold int `yaml:"pdf_threshold"`
	// ForwardThreshold bundles images into a single album when the count
	// reaches it. 0 disables the trigger.
	ForwardThreshold int `yaml:"forward_threshold"`

	PDFMode PDFMode `yaml:"pdf_mode"`
	// JPEGQuality recompresses every page to this quality (1-100) before
	// embedding. 0 embeds the original bytes.
	JPEGQuality int `yaml:"jpeg_quality"`
	// PDFPassword is applied as both user and owner password when set.
	PDFPassword string `yaml:"pdf_password"`

	// SourceLink appends the artwork URL to interactive replies.
	SourceLink bool `yaml:"source_link"`

	// FileGraceDelay is how long an on-disk PDF survives after delivery.
	FileGraceDelay string `yaml:"file_grace_delay"`
}

type StorageConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout string `yaml:"busy_timeout"`
}

type BrowserConfig struct {
	Enabled bool   `yaml:"enabled"`
	Timeout string `yaml:"timeout"`
	// SessionCookie is an optional PHPSESSID value seeded before capture.
	SessionCookie string `yaml:"session_cookie"`
}

// WatchConfig is the author subscription list.
type WatchConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalMinutes int  `yaml:"interval_minutes"`
	// Bot optionally names the account that must be connected for pushes
	// to be armed. Empty accepts whichever account the token yields.
	Bot     string        `yaml:"bot"`
	Authors []AuthorWatch `yaml:"authors"`
}

type AuthorWatch struct {
	ID       int64   `yaml:"id"`
	Name     string  `yaml:"name"`
	Channels []int64 `yaml:"channels"`
}
