// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/reliefweb-corpus/internal/logging"
	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/telemetry"
)

// EnvPrefix is prepended to environment overrides, e.g. HARVEST_SOURCE_APPNAME.
const EnvPrefix = "HARVEST"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Export backends and publishers.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	PublisherNone   = "none"
	PublisherMemory = "memory"
	PublisherPubSub = "pubsub"
)

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Logging  logging.Config   `mapstructure:"logging"`
	Source   SourceConfig     `mapstructure:"source"`
	Crawler  CrawlerConfig    `mapstructure:"crawler"`
	Storage  StorageConfig    `mapstructure:"storage"`
	Annotate AnnotateConfig   `mapstructure:"annotate"`
	Export   ExportConfig     `mapstructure:"export"`
	Progress ProgressConfig   `mapstructure:"progress"`
	Tracing  telemetry.Config `mapstructure:"tracing"`
	Server   ServerConfig     `mapstructure:"server"`
}

// SourceConfig describes the upstream API and the query to run.
type SourceConfig struct {
	URL       string        `mapstructure:"url"`
	AppName   string        `mapstructure:"appname"`
	UserAgent string        `mapstructure:"user_agent"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// MaxRetries is the total number of attempts per call.
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
	// MaxRPS paces every HTTP attempt, retries included; 0 disables it.
	MaxRPS       float64 `mapstructure:"max_rps"`
	RateBurst    int     `mapstructure:"rate_burst"`
	QueryFile    string  `mapstructure:"query_file"`
	Mode         string  `mapstructure:"mode"`
	ChangedField string  `mapstructure:"changed_field"`
}

// CrawlerConfig bounds crawl runs.
type CrawlerConfig struct {
	PageLimit int `mapstructure:"page_limit"`
	MaxCalls  int `mapstructure:"max_calls"`
	// QuotaWaits maps call-index thresholds to seconds; negative halts.
	// Empty selects the built-in table.
	QuotaWaits map[string]int `mapstructure:"quota_waits"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite and a connection string for postgres.
	DSN             string        `mapstructure:"dsn"`
	BusyTimeoutMS   int           `mapstructure:"busy_timeout_ms"`
	Synchronous     string        `mapstructure:"synchronous"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// AnnotateConfig bounds annotation runs.
type AnnotateConfig struct {
	BatchSize  int    `mapstructure:"batch_size"`
	MaxBatches int    `mapstructure:"max_batches"`
	TextField  string `mapstructure:"text_field"`
	TagsetFile string `mapstructure:"tagset_file"`
	ParseHTML  bool   `mapstructure:"parse_html"`
}

// ExportConfig configures corpus artifacts and their notification.
type ExportConfig struct {
	Backend   string   `mapstructure:"backend"`
	BaseDir   string   `mapstructure:"base_dir"`
	Bucket    string   `mapstructure:"bucket"`
	Prefix    string   `mapstructure:"prefix"`
	Fields    []string `mapstructure:"fields"`
	Compress  bool     `mapstructure:"compress"`
	Publisher string   `mapstructure:"publisher"`
	Topic     string   `mapstructure:"topic"`
	ProjectID string   `mapstructure:"project_id"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	FlushInterval  time.Duration `mapstructure:"flush_interval"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
}

// ServerConfig controls the status HTTP server.
type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
}

// SearchPaths are tried in order for config.{yaml,json,toml} when no
// explicit file is given. A missing file is not an error.
var SearchPaths = []string{".", "/etc/reliefweb-corpus", "$HOME/.reliefweb-corpus"}

// Load builds a Config from an optional file and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		for _, dir := range SearchPaths {
			v.AddConfigPath(dir)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
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
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("source.url", "https://api.reliefweb.int/v1/reports")
	v.SetDefault("source.user_agent", "reliefweb-corpus/1")
	v.SetDefault("source.timeout", 30*time.Second)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.backoff_initial", 2*time.Second)
	v.SetDefault("source.backoff_max", 30*time.Second)
	v.SetDefault("source.max_rps", 1.0)
	v.SetDefault("source.rate_burst", 1)
	v.SetDefault("source.mode", source.ModeIncremental.String())
	v.SetDefault("source.changed_field", source.DefaultChangedField)
	v.SetDefault("crawler.page_limit", 0)
	v.SetDefault("crawler.max_calls", 30)
	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "data/reliefweb.db")
	v.SetDefault("storage.busy_timeout_ms", 5000)
	v.SetDefault("storage.synchronous", "NORMAL")
	v.SetDefault("storage.max_conns", 4)
	v.SetDefault("storage.min_conns", 0)
	v.SetDefault("storage.max_conn_lifetime", time.Hour)
	v.SetDefault("annotate.batch_size", 100)
	v.SetDefault("annotate.max_batches", 10)
	v.SetDefault("annotate.text_field", "body")
	v.SetDefault("annotate.parse_html", false)
	v.SetDefault("export.backend", BackendLocal)
	v.SetDefault("export.base_dir", "data/export")
	v.SetDefault("export.publisher", PublisherNone)
	v.SetDefault("export.compress", false)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 128)
	v.SetDefault("progress.flush_interval", time.Second)
	v.SetDefault("progress.sink_timeout", 5*time.Second)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "reliefweb-corpus")
	v.SetDefault("tracing.sample_ratio", 1.0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_grace", 10*time.Second)
}

// Validate enforces required values and reasonable limits. Problems are
// reported as *source.ConfigurationError.
func (c Config) Validate() error {
	bad := func(format string, args ...any) error {
		return &source.ConfigurationError{Reason: fmt.Sprintf(format, args...)}
	}
	if _, err := source.ParseMode(c.Source.Mode); err != nil {
		return err
	}
	switch {
	case c.Source.Timeout <= 0:
		return bad("source.timeout must be > 0")
	case c.Source.MaxRetries <= 0:
		return bad("source.max_retries must be > 0")
	case c.Source.BackoffInitial < 0 || c.Source.BackoffMax < c.Source.BackoffInitial:
		return bad("source.backoff_max must be >= source.backoff_initial >= 0")
	case c.Source.MaxRPS < 0:
		return bad("source.max_rps must be >= 0")
	case c.Crawler.MaxCalls <= 0:
		return bad("crawler.max_calls must be > 0")
	case c.Crawler.PageLimit < 0:
		return bad("crawler.page_limit must be >= 0")
	case c.Annotate.BatchSize <= 0:
		return bad("annotate.batch_size must be > 0")
	case c.Annotate.MaxBatches <= 0:
		return bad("annotate.max_batches must be > 0")
	case c.Server.Port <= 0:
		return bad("server.port must be > 0")
	}

	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres:
		if c.Storage.DSN == "" {
			return bad("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	case DriverMemory:
	default:
		return bad("storage.driver must be one of sqlite, postgres, memory; got %q", c.Storage.Driver)
	}

	switch c.Export.Backend {
	case BackendLocal:
		if c.Export.BaseDir == "" {
			return bad("export.base_dir is required for the local backend")
		}
	case BackendGCS:
		if c.Export.Bucket == "" {
			return bad("export.bucket is required for the gcs backend")
		}
	default:
		return bad("export.backend must be local or gcs; got %q", c.Export.Backend)
	}

	switch c.Export.Publisher {
	case PublisherNone, PublisherMemory:
	case PublisherPubSub:
		if c.Export.ProjectID == "" || c.Export.Topic == "" {
			return bad("export.project_id and export.topic are required for the pubsub publisher")
		}
	default:
		return bad("export.publisher must be none, memory or pubsub; got %q", c.Export.Publisher)
	}
	return nil
}
