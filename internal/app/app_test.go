package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/app"
	"github.com/JakeFAU/reliefweb-corpus/internal/config"
	pubmem "github.com/JakeFAU/reliefweb-corpus/internal/publisher/memory"
	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/telemetry"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Source: config.SourceConfig{
			URL:            "https://api.example.test/v1/reports",
			AppName:        "test",
			Timeout:        time.Second,
			MaxRetries:     2,
			BackoffInitial: time.Millisecond,
			BackoffMax:     time.Millisecond,
			Mode:           "incremental",
			ChangedField:   source.DefaultChangedField,
		},
		Crawler: config.CrawlerConfig{MaxCalls: 3},
		Storage: config.StorageConfig{Driver: config.DriverMemory},
		Export: config.ExportConfig{
			Backend:   config.BackendLocal,
			BaseDir:   t.TempDir(),
			Publisher: config.PublisherMemory,
		},
		Progress: config.ProgressConfig{
			BufferSize:     16,
			MaxBatchEvents: 4,
			FlushInterval:  10 * time.Millisecond,
			SinkTimeout:    time.Second,
		},
		Tracing: telemetry.Config{ServiceName: "test"},
	}
}

func newApp(t *testing.T, cfg config.Config) *app.App {
	t.Helper()
	a, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a
}

func TestNewWiresServices(t *testing.T) {
	a := newApp(t, testConfig(t))

	assert.NotNil(t, a.Store)
	assert.NotNil(t, a.Hub)
	assert.NotNil(t, a.Latest)
	assert.NotNil(t, a.Clock)
	assert.NotNil(t, a.IDs)

	stats, err := a.Store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Records)
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Driver = "mystery"

	_, err := app.New(context.Background(), cfg, zap.NewNop(), app.Options{Registerer: prometheus.NewRegistry()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, source.ErrConfiguration))
}

func TestOpenStoreSQLite(t *testing.T) {
	cfg := config.StorageConfig{
		Driver:        config.DriverSQLite,
		DSN:           filepath.Join(t.TempDir(), "corpus.db"),
		BusyTimeoutMS: 1000,
		Synchronous:   "NORMAL",
	}
	store, err := app.OpenStore(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestQueryDefaults(t *testing.T) {
	a := newApp(t, testConfig(t))

	q, err := a.Query(source.ModeIncremental)
	require.NoError(t, err)
	params := q.Params()
	assert.Equal(t, app.DefaultPageLimit, params.Limit)
	assert.Equal(t, []string{"date.changed:asc"}, params.Sort)
	assert.Equal(t, source.ModeIncremental, q.Mode())
}

func TestQueryFromFile(t *testing.T) {
	cfg := testConfig(t)
	path := filepath.Join(t.TempDir(), "query.json")
	body := `{"limit": 50, "sort": ["date.changed:asc"], "filter": {"conditions": [{"field": "country.iso3", "value": "SDN"}]}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg.Source.QueryFile = path
	a := newApp(t, cfg)

	q, err := a.Query(source.ModeFull)
	require.NoError(t, err)
	assert.Equal(t, 50, q.Params().Limit)
}

func TestQuotaTable(t *testing.T) {
	cfg := testConfig(t)
	a := newApp(t, cfg)
	q, err := a.QuotaTable()
	require.NoError(t, err)
	assert.NotEmpty(t, q.Buckets())

	cfg.Crawler.QuotaWaits = map[string]int{"0": 0, "2": -1}
	b := newApp(t, cfg)
	q, err = b.QuotaTable()
	require.NoError(t, err)
	buckets := q.Buckets()
	require.Len(t, buckets, 2)
	assert.True(t, buckets[1].Halt)

	cfg.Crawler.QuotaWaits = map[string]int{"x": 1}
	c := newApp(t, cfg)
	_, err = c.QuotaTable()
	assert.True(t, errors.Is(err, source.ErrConfiguration))
}

func TestFetcherNeedsAppName(t *testing.T) {
	cfg := testConfig(t)
	cfg.Source.AppName = ""
	a := newApp(t, cfg)

	_, err := a.Fetcher(nil)
	assert.True(t, errors.Is(err, source.ErrConfiguration))
}

func TestBlobStoreAndPublisher(t *testing.T) {
	a := newApp(t, testConfig(t))
	ctx := context.Background()

	blobs, err := a.BlobStore(ctx)
	require.NoError(t, err)
	uri, err := blobs.Put(ctx, "hello.txt", "text/plain", strings.NewReader("ok"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(uri, "file://"))

	pub, err := a.Publisher(ctx)
	require.NoError(t, err)
	assert.IsType(t, &pubmem.Publisher{}, pub)
}

func TestPublisherNone(t *testing.T) {
	cfg := testConfig(t)
	cfg.Export.Publisher = config.PublisherNone
	a := newApp(t, cfg)

	pub, err := a.Publisher(context.Background())
	require.NoError(t, err)
	assert.Nil(t, pub)
}

func TestTagsetDefault(t *testing.T) {
	a := newApp(t, testConfig(t))
	ts, err := a.Tagset()
	require.NoError(t, err)
	assert.True(t, ts.Has("NN"))
}
