// Package config manages application configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"chantrack/metrics"
	"chantrack/retry"
)

// Config holds all application configuration for a collection run.
type Config struct {
	// DBPath is the path to the SQLite database file.
	DBPath string `json:"db_path"`

	// RowStart is the first roster row to process (inclusive).
	RowStart int `json:"row_start"`
	// RowEnd is the last roster row to process (inclusive, 0 = all).
	RowEnd int `json:"row_end"`
	// BatchSize is the number of records buffered before a write flush.
	BatchSize int `json:"batch_size"`
	// QuotaSyncEvery flushes quota usage to storage every N processed rows.
	QuotaSyncEvery int `json:"quota_sync_every"`

	// MaxRetries is the maximum number of attempts per API call.
	MaxRetries int `json:"max_retries"`
	// BaseDelay is the base backoff for transient failures.
	BaseDelay time.Duration `json:"base_delay"`
	// RateLimitBase is the base backoff when the provider signals rate limiting.
	RateLimitBase time.Duration `json:"rate_limit_base"`
	// MaxBackoff caps any single backoff wait.
	MaxBackoff time.Duration `json:"max_backoff"`

	// Pace is the minimum interval between consecutive channel collections.
	Pace time.Duration `json:"pace"`
	// SyncPause is the extra pause taken at each quota sync checkpoint.
	SyncPause time.Duration `json:"sync_pause"`
	// RSSTimeout bounds each feed fetch.
	RSSTimeout time.Duration `json:"rss_timeout"`

	// SpanPolicy selects the operation span formula ("activity" or "age").
	SpanPolicy string `json:"span_policy"`
	// MediaStyle selects media slot contents ("links" or "thumbnails").
	MediaStyle string `json:"media_style"`

	// Verbose enables debug logging.
	Verbose bool `json:"verbose"`
}

// DefaultConfig returns configuration with safe defaults.
func DefaultConfig() *Config {
	return &Config{
		DBPath:         "chantrack.db",
		RowStart:       1,
		RowEnd:         0,
		BatchSize:      20,
		QuotaSyncEvery: 5,
		MaxRetries:     3,
		BaseDelay:      2 * time.Second,
		RateLimitBase:  10 * time.Second,
		MaxBackoff:     2 * time.Minute,
		Pace:           500 * time.Millisecond,
		SyncPause:      2 * time.Second,
		RSSTimeout:     10 * time.Second,
		SpanPolicy:     string(metrics.SpanActivity),
		MediaStyle:     string(metrics.MediaLinks),
	}
}

// Load loads configuration from environment variables, config file, and applies defaults.
// Priority: env vars > config file > defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	// Try to load from config file
	if err := cfg.loadFromFile(); err != nil {
		// Config file is optional
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	// Override with environment variables
	cfg.loadFromEnv()

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile attempts to load config from chantrack.json in the current
// directory or the user config directory.
func (c *Config) loadFromFile() error {
	paths := []string{
		"chantrack.json",
		filepath.Join(os.Getenv("HOME"), ".config", "chantrack", "chantrack.json"),
	}

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return err
		}

		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		return nil
	}

	return os.ErrNotExist
}

// loadFromEnv overrides config with environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("CHANTRACK_DB"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("CHANTRACK_ROWS"); v != "" {
		if start, end, err := ParseRowRange(v); err == nil {
			c.RowStart, c.RowEnd = start, end
		}
	}
	if v := os.Getenv("CHANTRACK_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.BatchSize = n
		}
	}
	if v := os.Getenv("CHANTRACK_QUOTA_SYNC_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.QuotaSyncEvery = n
		}
	}
	if v := os.Getenv("CHANTRACK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxRetries = n
		}
	}
	if v := os.Getenv("CHANTRACK_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.BaseDelay = d
		}
	}
	if v := os.Getenv("CHANTRACK_RATE_LIMIT_BASE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RateLimitBase = d
		}
	}
	if v := os.Getenv("CHANTRACK_MAX_BACKOFF"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.MaxBackoff = d
		}
	}
	if v := os.Getenv("CHANTRACK_PACE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Pace = d
		}
	}
	if v := os.Getenv("CHANTRACK_RSS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.RSSTimeout = d
		}
	}
	if v := os.Getenv("CHANTRACK_SPAN_POLICY"); v != "" {
		c.SpanPolicy = v
	}
	if v := os.Getenv("CHANTRACK_MEDIA_STYLE"); v != "" {
		c.MediaStyle = v
	}
	if v := os.Getenv("CHANTRACK_VERBOSE"); v != "" {
		c.Verbose = v == "true" || v == "1"
	}
}

// ParseRowRange parses a "start-end" row range. A bare number selects a
// single row; an empty end ("10-") selects everything from start onward.
func ParseRowRange(s string) (start, end int, err error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, fmt.Errorf("empty row range")
	}

	lo, hi, found := strings.Cut(s, "-")
	start, err = strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row range %q: %w", s, err)
	}
	if !found {
		return start, start, nil
	}

	hi = strings.TrimSpace(hi)
	if hi == "" {
		return start, 0, nil
	}
	end, err = strconv.Atoi(hi)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid row range %q: %w", s, err)
	}
	if end < start {
		return 0, 0, fmt.Errorf("invalid row range %q: end before start", s)
	}
	return start, end, nil
}

// Validate checks that configuration values are valid and consistent.
// It returns an error if any configuration value is invalid.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must be set")
	}
	if c.RowStart < 1 {
		return fmt.Errorf("row_start must be >= 1")
	}
	if c.RowEnd != 0 && c.RowEnd < c.RowStart {
		return fmt.Errorf("row_end must be >= row_start")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("batch_size must be positive")
	}
	if c.QuotaSyncEvery < 1 {
		return fmt.Errorf("quota_sync_every must be positive")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be positive")
	}
	if c.BaseDelay <= 0 {
		return fmt.Errorf("base_delay must be positive")
	}
	if c.RateLimitBase <= 0 {
		return fmt.Errorf("rate_limit_base must be positive")
	}
	if c.MaxBackoff < c.BaseDelay {
		return fmt.Errorf("max_backoff must be >= base_delay")
	}
	if c.Pace < 0 {
		return fmt.Errorf("pace must be non-negative")
	}
	if c.RSSTimeout <= 0 {
		return fmt.Errorf("rss_timeout must be positive")
	}
	switch metrics.SpanPolicy(c.SpanPolicy) {
	case metrics.SpanActivity, metrics.SpanAge:
	default:
		return fmt.Errorf("span_policy must be %q or %q", metrics.SpanActivity, metrics.SpanAge)
	}
	switch metrics.MediaStyle(c.MediaStyle) {
	case metrics.MediaLinks, metrics.MediaThumbnails:
	default:
		return fmt.Errorf("media_style must be %q or %q", metrics.MediaLinks, metrics.MediaThumbnails)
	}
	return nil
}

// RetryConfig derives the retry configuration from the loaded settings.
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxRetries = c.MaxRetries
	cfg.BaseDelay = c.BaseDelay
	cfg.RateLimitBase = c.RateLimitBase
	cfg.MaxBackoff = c.MaxBackoff
	return cfg
}
