package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/reliefweb-corpus/internal/source"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://api.reliefweb.int/v1/reports", cfg.Source.URL)
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Source.Timeout)
	assert.InDelta(t, 1.0, cfg.Source.MaxRPS, 1e-9)
	assert.Equal(t, source.DefaultChangedField, cfg.Source.ChangedField)
	assert.Equal(t, 30, cfg.Crawler.MaxCalls)
	assert.Empty(t, cfg.Crawler.QuotaWaits)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, 100, cfg.Annotate.BatchSize)
	assert.Equal(t, "body", cfg.Annotate.TextField)
	assert.Equal(t, BackendLocal, cfg.Export.Backend)
	assert.Equal(t, PublisherNone, cfg.Export.Publisher)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, time.Second, cfg.Progress.FlushInterval)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "harvest.yaml")
	yaml := `
logging:
  development: true
  level: debug
source:
  appname: corpus-builder
  timeout: 10s
  max_retries: 5
  backoff_initial: 1s
  backoff_max: 4s
  query_file: queries/chad.yaml
  mode: full
crawler:
  page_limit: 250
  max_calls: 12
  quota_waits:
    "0": 1
    "5": 49
    "30": -1
storage:
  driver: postgres
  dsn: postgres://harvest@localhost/corpus
  max_conns: 8
annotate:
  batch_size: 20
  max_batches: 3
  text_field: body-html
  parse_html: true
  tagset_file: tags.yaml
export:
  backend: gcs
  bucket: corpus-bucket
  prefix: exports
  fields: [title, country.name]
  publisher: pubsub
  project_id: corpus-project
  topic: corpus-exports
server:
  port: 9090
  api_key: secret
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Logging.Development)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "corpus-builder", cfg.Source.AppName)
	assert.Equal(t, 10*time.Second, cfg.Source.Timeout)
	assert.Equal(t, 4*time.Second, cfg.Source.BackoffMax)
	assert.Equal(t, "full", cfg.Source.Mode)
	assert.Equal(t, 250, cfg.Crawler.PageLimit)
	assert.Equal(t, map[string]int{"0": 1, "5": 49, "30": -1}, cfg.Crawler.QuotaWaits)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, int32(8), cfg.Storage.MaxConns)
	assert.Equal(t, "body-html", cfg.Annotate.TextField)
	assert.True(t, cfg.Annotate.ParseHTML)
	assert.Equal(t, []string{"title", "country.name"}, cfg.Export.Fields)
	assert.Equal(t, PublisherPubSub, cfg.Export.Publisher)
	assert.Equal(t, "secret", cfg.Server.APIKey)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HARVEST_SOURCE_APPNAME", "from-env")
	t.Setenv("HARVEST_CRAWLER_MAX_CALLS", "7")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Source.AppName)
	assert.Equal(t, 7, cfg.Crawler.MaxCalls)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Source.Mode = "sometimes" }},
		{"zero timeout", func(c *Config) { c.Source.Timeout = 0 }},
		{"zero retries", func(c *Config) { c.Source.MaxRetries = 0 }},
		{"backoff inverted", func(c *Config) { c.Source.BackoffMax = time.Millisecond }},
		{"negative rate", func(c *Config) { c.Source.MaxRPS = -1 }},
		{"zero max calls", func(c *Config) { c.Crawler.MaxCalls = 0 }},
		{"negative page limit", func(c *Config) { c.Crawler.PageLimit = -1 }},
		{"zero batch size", func(c *Config) { c.Annotate.BatchSize = 0 }},
		{"zero max batches", func(c *Config) { c.Annotate.MaxBatches = 0 }},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = DriverPostgres; c.Storage.DSN = "" }},
		{"gcs without bucket", func(c *Config) { c.Export.Backend = BackendGCS }},
		{"pubsub without topic", func(c *Config) { c.Export.Publisher = PublisherPubSub }},
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, source.ErrConfiguration)
		})
	}

	mem := base
	mem.Storage.Driver = DriverMemory
	mem.Storage.DSN = ""
	assert.NoError(t, mem.Validate())
}
