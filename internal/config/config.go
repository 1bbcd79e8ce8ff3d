// Package config provides configuration types and defaults for shopbot.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zjrosen/shopbot/internal/log"
)

// Config holds all configuration options for shopbot.
type Config struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
	Backend  BackendConfig  `mapstructure:"backend"`
	Session  SessionConfig  `mapstructure:"session"`
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Log      LogConfig      `mapstructure:"log"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// TelegramConfig holds the bot API settings.
type TelegramConfig struct {
	// Token is the bot token issued by BotFather. Usually supplied through
	// SHOPBOT_TELEGRAM_TOKEN rather than the file.
	Token string `mapstructure:"token"`

	// PollTimeout is the long polling timeout for getUpdates.
	// Default: 60s
	PollTimeout time.Duration `mapstructure:"poll_timeout"`

	// Debug logs every bot API request.
	Debug bool `mapstructure:"debug"`
}

// BackendConfig holds the CMS connection settings.
type BackendConfig struct {
	URL   string `mapstructure:"url"`
	Token string `mapstructure:"token"`

	// Timeout bounds one HTTP request.
	// Default: 10s
	Timeout time.Duration `mapstructure:"timeout"`

	// APIPrefix is where the content API is mounted.
	// Default: "/api"
	APIPrefix string `mapstructure:"api_prefix"`
}

// Session drivers.
const (
	SessionDriverSQLite = "sqlite"
	SessionDriverMemory = "memory"
)

// SessionConfig selects where conversation states are kept.
type SessionConfig struct {
	// Driver is "sqlite" (default) or "memory". Memory loses every state
	// on restart.
	Driver string `mapstructure:"driver"`

	// Path is the sqlite database file.
	// Default: ~/.config/shopbot/sessions.db
	Path string `mapstructure:"path"`
}

// CatalogConfig tunes the product snapshot.
type CatalogConfig struct {
	// PageSize is requested on the product list. 0 keeps the backend default.
	PageSize int `mapstructure:"page_size"`

	// ImageTTL is how long a fetched thumbnail is reused.
	// Default: 1h
	ImageTTL time.Duration `mapstructure:"image_ttl"`

	DisableImageCache bool `mapstructure:"disable_image_cache"`
}

// EngineConfig tunes event dispatch.
type EngineConfig struct {
	HandlerTimeout   time.Duration `mapstructure:"handler_timeout"`
	SlowThreshold    time.Duration `mapstructure:"slow_threshold"`
	SerializePerUser bool          `mapstructure:"serialize_per_user"`
	// DedupWindow drops an identical repeated button press. 0 disables it.
	DedupWindow time.Duration `mapstructure:"dedup_window"`
	// Currency is printed after prices, e.g. "RUB".
	Currency string `mapstructure:"currency"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Path is the log file. Empty logs to stderr.
	Path string `mapstructure:"path"`
	// Level is "debug", "info", "warn" or "error". Reloaded on config change.
	Level string `mapstructure:"level"`
}

// TracingConfig holds distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether distributed tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for "file" exporter.
	// Default: ~/.config/shopbot/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`

	ServiceName string `mapstructure:"service_name"`
}

// DefaultDir returns ~/.config/shopbot, or the empty string if the home
// directory is unavailable.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "shopbot")
}

// DefaultSessionPath returns the default sqlite file for session states.
func DefaultSessionPath() string {
	dir := DefaultDir()
	if dir == "" {
		return "sessions.db"
	}
	return filepath.Join(dir, "sessions.db")
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/shopbot/traces/traces.jsonl or empty string if home dir unavailable.
func DefaultTracesFilePath() string {
	dir := DefaultDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Telegram: TelegramConfig{
			PollTimeout: 60 * time.Second,
		},
		Backend: BackendConfig{
			URL:       "http://localhost:1337",
			Timeout:   10 * time.Second,
			APIPrefix: "/api",
		},
		Session: SessionConfig{
			Driver: SessionDriverSQLite,
			Path:   DefaultSessionPath(),
		},
		Catalog: CatalogConfig{
			ImageTTL: time.Hour,
		},
		Engine: EngineConfig{
			HandlerTimeout:   15 * time.Second,
			SlowThreshold:    3 * time.Second,
			SerializePerUser: true,
		},
		Log: LogConfig{
			Level: "info",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     DefaultTracesFilePath(),
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
			ServiceName:  "shopbot",
		},
	}
}

// Validate checks every section and reports all problems at once.
func (c Config) Validate() error {
	return errors.Join(
		ValidateTelegram(c.Telegram),
		ValidateBackend(c.Backend),
		ValidateSession(c.Session),
		ValidateCatalog(c.Catalog),
		ValidateEngine(c.Engine),
		ValidateLog(c.Log),
		ValidateTracing(c.Tracing),
	)
}

// ValidateTelegram checks the bot settings.
func ValidateTelegram(tg TelegramConfig) error {
	var errs []error
	if strings.TrimSpace(tg.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or set SHOPBOT_TELEGRAM_TOKEN)"))
	}
	if tg.PollTimeout < 0 {
		errs = append(errs, fmt.Errorf("telegram.poll_timeout must not be negative, got %s", tg.PollTimeout))
	}
	return errors.Join(errs...)
}

// ValidateBackend checks the CMS connection settings.
func ValidateBackend(b BackendConfig) error {
	var errs []error
	if strings.TrimSpace(b.URL) == "" {
		errs = append(errs, errors.New("backend.url is required"))
	} else if u, err := url.Parse(b.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend.url must be an http(s) URL, got %q", b.URL))
	}
	if b.Timeout < 0 {
		errs = append(errs, fmt.Errorf("backend.timeout must not be negative, got %s", b.Timeout))
	}
	if b.APIPrefix != "" && !strings.HasPrefix(b.APIPrefix, "/") {
		errs = append(errs, fmt.Errorf("backend.api_prefix must start with \"/\", got %q", b.APIPrefix))
	}
	return errors.Join(errs...)
}

// ValidateSession checks the session store settings.
func ValidateSession(s SessionConfig) error {
	switch s.Driver {
	case "", SessionDriverSQLite:
		if strings.TrimSpace(s.Path) == "" {
			return errors.New("session.path is required when driver is \"sqlite\"")
		}
	case SessionDriverMemory:
	default:
		return fmt.Errorf("session.driver must be \"sqlite\" or \"memory\", got %q", s.Driver)
	}
	return nil
}

// ValidateCatalog checks the catalog settings.
func ValidateCatalog(c CatalogConfig) error {
	var errs []error
	if c.PageSize < 0 {
		errs = append(errs, fmt.Errorf("catalog.page_size must not be negative, got %d", c.PageSize))
	}
	if c.ImageTTL < 0 {
		errs = append(errs, fmt.Errorf("catalog.image_ttl must not be negative, got %s", c.ImageTTL))
	}
	return errors.Join(errs...)
}

// ValidateEngine checks the dispatch settings.
func ValidateEngine(e EngineConfig) error {
	var errs []error
	if e.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("engine.handler_timeout must not be negative, got %s", e.HandlerTimeout))
	}
	if e.SlowThreshold < 0 {
		errs = append(errs, fmt.Errorf("engine.slow_threshold must not be negative, got %s", e.SlowThreshold))
	}
	if e.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("engine.dedup_window must not be negative, got %s", e.DedupWindow))
	}
	return errors.Join(errs...)
}

// ValidateLog checks the logging settings.
func ValidateLog(l LogConfig) error {
	if _, err := log.ParseLevel(l.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# shopbot configuration
#
# Every key can be overridden from the environment with the SHOPBOT_ prefix,
# e.g. SHOPBOT_TELEGRAM_TOKEN or SHOPBOT_BACKEND_TOKEN.

telegram:
  # token: "123456:ABC..."   # Bot token, prefer SHOPBOT_TELEGRAM_TOKEN
  poll_timeout: 60s
  debug: false

backend:
  url: http://localhost:1337
  # token: ""                # API token with read/write access to the shop collections
  timeout: 10s
  api_prefix: /api

session:
  driver: sqlite             # "sqlite" or "memory"
  # path: ~/.config/shopbot/sessions.db

catalog:
  page_size: 0               # 0 keeps the backend default
  image_ttl: 1h
  disable_image_cache: false

engine:
  handler_timeout: 15s
  slow_threshold: 3s
  serialize_per_user: true   # one event at a time per user
  dedup_window: 0s           # drop repeated identical button presses inside this window
  # currency: RUB

log:
  # path: /var/log/shopbot.log   # empty logs to stderr
  level: info                # reloaded when this file changes

# tracing:
#   enabled: true
#   exporter: otlp
#   otlp_endpoint: jaeger.internal:4317
#   sample_rate: 0.1
`
}

// WriteDefaultConfig creates a config file at the given path with default settings and comments.
// Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "Writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "Failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "Created default config", "path", configPath)
	return nil
}
