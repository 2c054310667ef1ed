// Package config loads and validates agent configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/policy/ratelimit"
	"github.com/JakeFAU/web-archive-agent/internal/report/sentry"
	"github.com/JakeFAU/web-archive-agent/internal/scraper/headless"
	"github.com/JakeFAU/web-archive-agent/internal/scraper/static"
	"github.com/JakeFAU/web-archive-agent/internal/storage/badger"
	"github.com/JakeFAU/web-archive-agent/internal/storage/gcs"
	"github.com/JakeFAU/web-archive-agent/internal/storage/local"
	"github.com/JakeFAU/web-archive-agent/internal/storage/postgres"
	"github.com/JakeFAU/web-archive-agent/internal/storage/sqlite"
	"github.com/JakeFAU/web-archive-agent/internal/telemetry"
	"github.com/JakeFAU/web-archive-agent/internal/uploader/direct"
	"github.com/JakeFAU/web-archive-agent/internal/uploader/httpupload"
)

// Task store backends.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreBadger = "badger"
	StoreSQLite = "sqlite"
)

// Scraper modes.
const (
	ScraperHeadless = "headless"
	ScraperStatic   = "static"
)

// Uploader modes.
const (
	UploaderHTTP   = "http"
	UploaderDirect = "direct"
)

// Blob backends used by the direct uploader.
const (
	BlobMemory = "memory"
	BlobLocal  = "local"
	BlobGCS    = "gcs"
)

// Config captures all agent configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig     `mapstructure:"server"`
	Auth     AuthConfig       `mapstructure:"auth"`
	Logging  LoggingConfig    `mapstructure:"logging"`
	Store    StoreConfig      `mapstructure:"store"`
	Scraper  ScraperConfig    `mapstructure:"scraper"`
	Uploader UploaderConfig   `mapstructure:"uploader"`
	Blob     BlobConfig       `mapstructure:"blob"`
	DB       DBConfig         `mapstructure:"db"`
	PubSub   PubSubConfig     `mapstructure:"pubsub"`
	Progress ProgressConfig   `mapstructure:"progress"`
	Tracing  telemetry.Config `mapstructure:"tracing"`
	Sentry   SentryConfig     `mapstructure:"sentry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// StoreConfig selects where the task list is persisted.
type StoreConfig struct {
	Backend string        `mapstructure:"backend"`
	File    local.Config  `mapstructure:"file"`
	Badger  badger.Config `mapstructure:"badger"`
	SQLite  sqlite.Config `mapstructure:"sqlite"`
}

// ScraperConfig selects and configures the page capture backend.
type ScraperConfig struct {
	Mode      string           `mapstructure:"mode"`
	Headless  headless.Config  `mapstructure:"headless"`
	Static    static.Config    `mapstructure:"static"`
	RateLimit ratelimit.Config `mapstructure:"rate_limit"`
	// Defaults apply to capture requests that carry no settings of their own.
	Defaults archive.CaptureSettings `mapstructure:"defaults"`
}

// UploaderConfig selects how captured pages reach the archive.
type UploaderConfig struct {
	Mode   string            `mapstructure:"mode"`
	HTTP   httpupload.Config `mapstructure:"http"`
	Direct direct.Config     `mapstructure:"direct"`
}

// BlobConfig configures artifact storage for the direct uploader.
type BlobConfig struct {
	Backend string       `mapstructure:"backend"`
	Local   local.Config `mapstructure:"local"`
	GCS     gcs.Config   `mapstructure:"gcs"`
}

// DBConfig controls access to the archive's relational database.
type DBConfig struct {
	DSN             string          `mapstructure:"dsn"`
	MaxConns        int32           `mapstructure:"max_conns"`
	MinConns        int32           `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration   `mapstructure:"max_conn_lifetime"`
	Tables          postgres.Tables `mapstructure:"tables"`
}

// PubSubConfig holds the project used for archive notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// ProgressConfig tunes the lifecycle event hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// SentryConfig enables failure reporting.
type SentryConfig struct {
	sentry.Config `mapstructure:",squash"`

	Enabled bool `mapstructure:"enabled"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ARCHIVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.read_header_timeout", 5*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("store.backend", StoreFile)
	v.SetDefault("store.file.base_dir", "data")
	v.SetDefault("store.badger.dir", "data/badger")
	v.SetDefault("store.badger.in_memory", false)
	v.SetDefault("store.badger.gc_interval", 10*time.Minute)
	v.SetDefault("store.sqlite.path", "data/tasks.db")
	v.SetDefault("scraper.mode", ScraperHeadless)
	v.SetDefault("scraper.headless.max_parallel", 2)
	v.SetDefault("scraper.headless.user_agent", "")
	v.SetDefault("scraper.headless.navigation_timeout", 45*time.Second)
	v.SetDefault("scraper.headless.exec_path", "")
	v.SetDefault("scraper.headless.headful", false)
	v.SetDefault("scraper.static.user_agent", "web-archive-agent/0.1")
	v.SetDefault("scraper.static.respect_robots", true)
	v.SetDefault("scraper.static.timeout", 30*time.Second)
	v.SetDefault("scraper.static.max_body_size", 20<<20)
	v.SetDefault("scraper.rate_limit.default_rps", 1.0)
	v.SetDefault("scraper.rate_limit.default_burst", 1)
	v.SetDefault("scraper.defaults.remove_scripts", true)
	v.SetDefault("scraper.defaults.remove_frames", false)
	v.SetDefault("scraper.defaults.remove_hidden_elements", false)
	v.SetDefault("scraper.defaults.load_deferred_images", true)
	v.SetDefault("scraper.defaults.insert_base_href", true)
	v.SetDefault("scraper.defaults.settle_millis", 0)
	v.SetDefault("uploader.mode", UploaderHTTP)
	v.SetDefault("uploader.http.server_url", "")
	v.SetDefault("uploader.http.token", "")
	v.SetDefault("uploader.http.timeout", 60*time.Second)
	v.SetDefault("uploader.direct.content_prefix", "pages")
	v.SetDefault("uploader.direct.screenshot_prefix", "screenshots")
	v.SetDefault("uploader.direct.topic", "")
	v.SetDefault("blob.backend", BlobLocal)
	v.SetDefault("blob.local.base_dir", "data/blobs")
	v.SetDefault("blob.gcs.bucket", "")
	v.SetDefault("blob.gcs.prefix", "")
	v.SetDefault("blob.gcs.skip_existing", true)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("progress.buffer_size", 256)
	v.SetDefault("progress.max_batch_events", 64)
	v.SetDefault("progress.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("tracing.service_name", "archive-agent")
	v.SetDefault("tracing.sample_ratio", 0.1)
	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.environment", "development")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if err := c.Store.validate(); err != nil {
		return err
	}
	switch c.Scraper.Mode {
	case ScraperHeadless:
		if c.Scraper.Headless.MaxParallel < 0 {
			return fmt.Errorf("scraper.headless.max_parallel must be >= 0")
		}
	case ScraperStatic:
		if c.Scraper.RateLimit.DefaultRPS < 0 {
			return fmt.Errorf("scraper.rate_limit.default_rps must be >= 0")
		}
	default:
		return fmt.Errorf("scraper.mode %q is not one of %s, %s", c.Scraper.Mode, ScraperHeadless, ScraperStatic)
	}
	switch c.Uploader.Mode {
	case UploaderHTTP:
		if c.Uploader.HTTP.ServerURL == "" {
			return fmt.Errorf("uploader.http.server_url must be set for the http uploader")
		}
	case UploaderDirect:
		if err := c.validateDirect(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("uploader.mode %q is not one of %s, %s", c.Uploader.Mode, UploaderHTTP, UploaderDirect)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be within [0, 1]")
	}
	if c.Sentry.Enabled && c.Sentry.DSN == "" {
		return fmt.Errorf("sentry.dsn must be set when sentry is enabled")
	}
	return nil
}

func (s StoreConfig) validate() error {
	switch s.Backend {
	case StoreMemory:
	case StoreFile:
		if s.File.BaseDir == "" {
			return fmt.Errorf("store.file.base_dir must be set for the file store")
		}
	case StoreBadger:
		if !s.Badger.InMemory && s.Badger.Dir == "" {
			return fmt.Errorf("store.badger.dir must be set unless store.badger.in_memory")
		}
	case StoreSQLite:
		if s.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path must be set for the sqlite store")
		}
	default:
		return fmt.Errorf("store.backend %q is not supported", s.Backend)
	}
	return nil
}

func (c Config) validateDirect() error {
	if c.DB.DSN == "" {
		return fmt.Errorf("db.dsn must be set for the direct uploader")
	}
	switch c.Blob.Backend {
	case BlobMemory:
	case BlobLocal:
		if c.Blob.Local.BaseDir == "" {
			return fmt.Errorf("blob.local.base_dir must be set for the local blob store")
		}
	case BlobGCS:
		if c.Blob.GCS.Bucket == "" {
			return fmt.Errorf("blob.gcs.bucket must be set for the gcs blob store")
		}
	default:
		return fmt.Errorf("blob.backend %q is not supported", c.Blob.Backend)
	}
	if c.Uploader.Direct.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when uploader.direct.topic is set")
	}
	return nil
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
