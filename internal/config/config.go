package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"github.com/jensmonne/RSS-webhook/internal/filter"
)

// Payload formats a feed can select.
const (
	FormatDiscord = "discord"
	FormatJSON    = "json"
)

// Defaults applied to a document after decoding. Feeds inherit the
// document-level values unless they override them.
const (
	DefaultStateDir       = "state"
	DefaultRetention      = 500
	DefaultInterval       = 5 * time.Minute
	DefaultTimeout        = 20 * time.Second
	DefaultUserAgent      = "rsswebhook/0.1"
	DefaultBackfill       = 3
	DefaultPacing         = time.Second
	DefaultRetryAttempts  = 5
	DefaultRetryBaseDelay = time.Second
	DefaultRetryMaxDelay  = 30 * time.Second
	DefaultRetryJitter    = 500 * time.Millisecond
	DefaultMetricsListen  = ":9091"
)

// Document represents the top-level structure of an rsswebhook.yaml file
type Document struct {
	Log      LogConfig     `yaml:"log,omitempty"`
	State    StateConfig   `yaml:"state,omitempty"`
	Defaults Defaults      `yaml:"defaults,omitempty"`
	Retry    RetryConfig   `yaml:"retry,omitempty"`
	Metrics  MetricsConfig `yaml:"metrics,omitempty"`
	Feeds    []Feed        `yaml:"feeds"`
}

// LogConfig selects the handler built at startup
type LogConfig struct {
	Level  string `yaml:"level,omitempty"`  // debug, info, warn, error
	Format string `yaml:"format,omitempty"` // text or json
}

// StateConfig locates the seen-state files and bounds their size
type StateConfig struct {
	Dir       string `yaml:"dir,omitempty"`
	Retention int    `yaml:"retention,omitempty"`
}

// Defaults are document-level values feeds fall back to
type Defaults struct {
	Interval  Duration  `yaml:"interval,omitempty"`
	Timeout   Duration  `yaml:"timeout,omitempty"`
	UserAgent string    `yaml:"user_agent,omitempty"`
	Format    string    `yaml:"format,omitempty"`
	Backfill  *int      `yaml:"backfill,omitempty"`
	Pacing    *Duration `yaml:"pacing,omitempty"`
}

// RetryConfig controls webhook delivery retries. A feed may override any
// subset of the document-level values.
type RetryConfig struct {
	Attempts  int      `yaml:"attempts,omitempty"`
	BaseDelay Duration `yaml:"base_delay,omitempty"`
	MaxDelay  Duration `yaml:"max_delay,omitempty"`
	Jitter    Duration `yaml:"jitter,omitempty"`
}

// MetricsConfig enables the operator listener serving /metrics and /healthz
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Listen  string `yaml:"listen,omitempty"`
}

// Feed defines one watched feed and its webhook target. Identity is the URL;
// the name keys logs and metrics. Interval and Schedule are mutually
// exclusive; when both are empty the document default interval applies.
type Feed struct {
	Name     string       `yaml:"name"`
	URL      string       `yaml:"url"`
	Webhook  string       `yaml:"webhook"`
	Interval Duration     `yaml:"interval,omitempty"`
	Schedule string       `yaml:"schedule,omitempty"`
	Format   string       `yaml:"format,omitempty"`
	Color    int          `yaml:"color,omitempty"`
	Username string       `yaml:"username,omitempty"`
	Filter   string       `yaml:"filter,omitempty"`
	Retry    *RetryConfig `yaml:"retry,omitempty"`
}

// Load reads and decodes an rsswebhook.yaml document from disk.
func Load(path string) (*Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes a document from raw YAML. Environment references such as
// ${DISCORD_WEBHOOK_URL} are expanded before decoding so secrets can stay
// out of the file. The returned document has defaults applied and has been
// validated.
func Parse(raw []byte) (*Document, error) {
	expanded := os.ExpandEnv(string(raw))

	var doc Document
	if err := yaml.Unmarshal([]byte(expanded), &doc); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	doc.applyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (d *Document) applyDefaults() {
	if d.Log.Level == "" {
		d.Log.Level = "info"
	}
	if d.Log.Format == "" {
		d.Log.Format = "text"
	}
	if d.State.Dir == "" {
		d.State.Dir = DefaultStateDir
	}
	if d.State.Retention == 0 {
		d.State.Retention = DefaultRetention
	}
	if d.Defaults.Interval == 0 {
		d.Defaults.Interval = Duration(DefaultInterval)
	}
	if d.Defaults.Timeout == 0 {
		d.Defaults.Timeout = Duration(DefaultTimeout)
	}
	if d.Defaults.UserAgent == "" {
		d.Defaults.UserAgent = DefaultUserAgent
	}
	if d.Defaults.Format == "" {
		d.Defaults.Format = FormatDiscord
	}
	if d.Defaults.Backfill == nil {
		n := DefaultBackfill
		d.Defaults.Backfill = &n
	}
	if d.Defaults.Pacing == nil {
		p := Duration(DefaultPacing)
		d.Defaults.Pacing = &p
	}
	if d.Retry.Attempts == 0 {
		d.Retry.Attempts = DefaultRetryAttempts
	}
	if d.Retry.BaseDelay == 0 {
		d.Retry.BaseDelay = Duration(DefaultRetryBaseDelay)
	}
	if d.Retry.MaxDelay == 0 {
		d.Retry.MaxDelay = Duration(DefaultRetryMaxDelay)
	}
	if d.Retry.Jitter == 0 {
		d.Retry.Jitter = Duration(DefaultRetryJitter)
	}
	if d.Metrics.Listen == "" {
		d.Metrics.Listen = DefaultMetricsListen
	}
}

// Validate performs validation on the document
func (d *Document) Validate() error {
	switch d.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log level must be one of debug, info, warn, error")
	}
	switch d.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log format must be 'text' or 'json'")
	}

	if d.State.Retention < 0 {
		return fmt.Errorf("state retention must be positive")
	}
	if d.Defaults.Interval < 0 || d.Defaults.Timeout < 0 {
		return fmt.Errorf("default interval and timeout must be positive")
	}
	if d.Defaults.Backfill != nil && *d.Defaults.Backfill < 0 {
		return fmt.Errorf("backfill must be >= 0")
	}
	if d.Defaults.Pacing != nil && *d.Defaults.Pacing < 0 {
		return fmt.Errorf("pacing must be >= 0")
	}
	switch d.Defaults.Format {
	case "", FormatDiscord, FormatJSON:
	default:
		return fmt.Errorf("default format must be %q or %q", FormatDiscord, FormatJSON)
	}
	if err := d.Retry.validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}

	if len(d.Feeds) == 0 {
		return fmt.Errorf("at least one feed is required")
	}

	names := make(map[string]struct{}, len(d.Feeds))
	for i, feed := range d.Feeds {
		if feed.Name == "" {
			return fmt.Errorf("feed %d: name is required", i)
		}
		if _, dup := names[feed.Name]; dup {
			return fmt.Errorf("feed %q: duplicate name", feed.Name)
		}
		names[feed.Name] = struct{}{}

		if err := validateHTTPURL(feed.URL); err != nil {
			return fmt.Errorf("feed %q: url: %w", feed.Name, err)
		}
		if err := validateHTTPURL(feed.Webhook); err != nil {
			return fmt.Errorf("feed %q: webhook: %w", feed.Name, err)
		}

		if feed.Interval != 0 && feed.Schedule != "" {
			return fmt.Errorf("feed %q: interval and schedule are mutually exclusive", feed.Name)
		}
		if feed.Interval < 0 {
			return fmt.Errorf("feed %q: interval must be positive", feed.Name)
		}
		if feed.Schedule != "" {
			if _, err := cron.ParseStandard(feed.Schedule); err != nil {
				return fmt.Errorf("feed %q: invalid schedule: %w", feed.Name, err)
			}
		}

		switch feed.Format {
		case "", FormatDiscord, FormatJSON:
		default:
			return fmt.Errorf("feed %q: format must be %q or %q", feed.Name, FormatDiscord, FormatJSON)
		}

		if feed.Color < 0 || feed.Color > 0xFFFFFF {
			return fmt.Errorf("feed %q: color must be a 24-bit RGB value", feed.Name)
		}

		if feed.Filter != "" {
			if _, err := filter.Compile(feed.Filter); err != nil {
				return fmt.Errorf("feed %q: invalid filter: %w", feed.Name, err)
			}
		}

		if feed.Retry != nil {
			if err := feed.Retry.validate(); err != nil {
				return fmt.Errorf("feed %q: retry: %w", feed.Name, err)
			}
		}
	}

	return nil
}

func (r RetryConfig) validate() error {
	if r.Attempts < 0 {
		return fmt.Errorf("attempts must be positive")
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 || r.Jitter < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	return nil
}

func validateHTTPURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("host is required")
	}
	return nil
}

// IntervalFor returns the effective polling interval for a feed. Feeds with
// a cron schedule do not use it.
func (d *Document) IntervalFor(f Feed) time.Duration {
	if f.Interval > 0 {
		return f.Interval.Std()
	}
	return d.Defaults.Interval.Std()
}

// FormatFor returns the effective payload format for a feed.
func (d *Document) FormatFor(f Feed) string {
	if f.Format != "" {
		return f.Format
	}
	if d.Defaults.Format != "" {
		return d.Defaults.Format
	}
	return FormatDiscord
}

// RetryFor merges a feed's retry overrides onto the document-level settings.
func (d *Document) RetryFor(f Feed) RetryConfig {
	merged := d.Retry
	if f.Retry == nil {
		return merged
	}
	if f.Retry.Attempts > 0 {
		merged.Attempts = f.Retry.Attempts
	}
	if f.Retry.BaseDelay > 0 {
		merged.BaseDelay = f.Retry.BaseDelay
	}
	if f.Retry.MaxDelay > 0 {
		merged.MaxDelay = f.Retry.MaxDelay
	}
	if f.Retry.Jitter > 0 {
		merged.Jitter = f.Retry.Jitter
	}
	return merged
}

// Backfill returns how many items to deliver the first time a feed is seen.
func (d *Document) Backfill() int {
	if d.Defaults.Backfill == nil {
		return DefaultBackfill
	}
	return *d.Defaults.Backfill
}

// Pacing returns the delay inserted between consecutive webhook posts.
func (d *Document) Pacing() time.Duration {
	if d.Defaults.Pacing == nil {
		return DefaultPacing
	}
	return d.Defaults.Pacing.Std()
}
