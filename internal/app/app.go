// Package app holds the long-lived services shared by the CLI commands and
// builds them from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/reliefweb-corpus/internal/annotate"
	"github.com/JakeFAU/reliefweb-corpus/internal/blob"
	"github.com/JakeFAU/reliefweb-corpus/internal/blob/gcs"
	"github.com/JakeFAU/reliefweb-corpus/internal/blob/local"
	"github.com/JakeFAU/reliefweb-corpus/internal/clock/system"
	"github.com/JakeFAU/reliefweb-corpus/internal/config"
	"github.com/JakeFAU/reliefweb-corpus/internal/crawler"
	uuidgen "github.com/JakeFAU/reliefweb-corpus/internal/id/uuid"
	"github.com/JakeFAU/reliefweb-corpus/internal/metrics"
	"github.com/JakeFAU/reliefweb-corpus/internal/policy/ratelimit"
	"github.com/JakeFAU/reliefweb-corpus/internal/progress"
	"github.com/JakeFAU/reliefweb-corpus/internal/progress/sinks"
	"github.com/JakeFAU/reliefweb-corpus/internal/publisher"
	pubmem "github.com/JakeFAU/reliefweb-corpus/internal/publisher/memory"
	"github.com/JakeFAU/reliefweb-corpus/internal/publisher/pubsub"
	"github.com/JakeFAU/reliefweb-corpus/internal/source"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage/memory"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage/postgres"
	"github.com/JakeFAU/reliefweb-corpus/internal/storage/sqlite"
	"github.com/JakeFAU/reliefweb-corpus/internal/telemetry"
)

// DefaultPageLimit is the page size used when the query file sets none.
const DefaultPageLimit = 1000

// DefaultIncludeFields are requested when no query file is configured.
var DefaultIncludeFields = []string{
	"title", "body", "body-html", "date", "country", "source", "language", "format", "theme", "url", "file",
}

// App holds the shared services of one command invocation.
type App struct {
	Config config.Config
	Logger *zap.Logger
	Store  storage.Store
	Hub    *progress.Hub
	Latest *sinks.LatestSink
	Clock  *system.Clock
	IDs    *uuidgen.Generator

	shutdownTracing telemetry.ShutdownFunc
	closers         []func(context.Context) error
}

// Options tune New for tests.
type Options struct {
	// Registerer receives the progress collectors; nil means the default.
	Registerer prometheus.Registerer
}

// New opens the store and starts the progress hub. It fails fast when a
// critical service cannot be initialized.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	_, shutdown, err := telemetry.InitTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	store, err := OpenStore(ctx, cfg.Storage, logger)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}

	promSink, err := sinks.NewPrometheusSink(opts.Registerer)
	if err != nil {
		_ = store.Close()
		_ = shutdown(ctx)
		return nil, fmt.Errorf("register progress collectors: %w", err)
	}
	latest := sinks.NewLatestSink()
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		FlushInterval:  cfg.Progress.FlushInterval,
		SinkTimeout:    cfg.Progress.SinkTimeout,
		Logger:         logger,
	}, sinks.NewLogSink(logger), promSink, latest)

	logger.Debug("application services initialized", zap.String("storage_driver", cfg.Storage.Driver))
	return &App{
		Config:          cfg,
		Logger:          logger,
		Store:           store,
		Hub:             hub,
		Latest:          latest,
		Clock:           system.New(),
		IDs:             uuidgen.NewGenerator(),
		shutdownTracing: shutdown,
	}, nil
}

// OpenStore builds the configured storage backend.
func OpenStore(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Driver {
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, sqlite.Config{
			Path:          cfg.DSN,
			BusyTimeoutMS: cfg.BusyTimeoutMS,
			Synchronous:   cfg.Synchronous,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return s, nil
	case config.DriverPostgres:
		s, err := postgres.NewStore(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        cfg.MaxConns,
			MinConns:        cfg.MinConns,
			MaxConnLifetime: cfg.MaxConnLifetime,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return s, nil
	case config.DriverMemory:
		logger.Warn("using in-memory storage; nothing is persisted")
		return memory.New(logger), nil
	default:
		return nil, &source.ConfigurationError{Reason: fmt.Sprintf("unknown storage driver %q", cfg.Driver)}
	}
}

// Query loads the configured query file, or the default query when none is
// set, and validates it for the configured mode.
func (a *App) Query(mode source.Mode) (source.Query, error) {
	cfg := a.Config.Source
	changed := cfg.ChangedField
	if changed == "" {
		changed = source.DefaultChangedField
	}
	var params source.Params
	if cfg.QueryFile != "" {
		p, err := source.LoadParams(cfg.QueryFile)
		if err != nil {
			return source.Query{}, err
		}
		params = p
	} else {
		params = source.Params{
			Limit:  DefaultPageLimit,
			Sort:   []string{changed + ":asc"},
			Fields: map[string]any{"include": DefaultIncludeFields},
		}
	}
	if params.Limit == 0 {
		params.Limit = DefaultPageLimit
	}
	return source.NewQuery(params, mode, changed)
}

// Fetcher builds the upstream API client.
func (a *App) Fetcher(transport http.RoundTripper) (*crawler.Client, error) {
	cfg := a.Config.Source
	retry := crawler.NewExponentialRetryPolicy(cfg.MaxRetries, cfg.BackoffInitial, cfg.BackoffMax)
	return crawler.NewClient(crawler.ClientConfig{
		URL:       cfg.URL,
		AppName:   cfg.AppName,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.Timeout,
		Limiter:   ratelimit.New(ratelimit.Config{RPS: cfg.MaxRPS, Burst: cfg.RateBurst}),
	}, transport, retry, a.Clock, a.Logger)
}

// QuotaTable returns the configured quota table or the built-in one.
func (a *App) QuotaTable() (crawler.QuotaTable, error) {
	if len(a.Config.Crawler.QuotaWaits) == 0 {
		return crawler.DefaultQuotaTable(), nil
	}
	q, err := crawler.QuotaTableFromSeconds(a.Config.Crawler.QuotaWaits)
	if err != nil {
		return crawler.QuotaTable{}, &source.ConfigurationError{Reason: err.Error()}
	}
	return q, nil
}

// Tagset loads the configured tagset, defaulting to Penn Treebank.
func (a *App) Tagset() (annotate.Tagset, error) {
	return annotate.LoadTagset(a.Config.Annotate.TagsetFile)
}

// BlobStore opens the configured export target. It is closed with the App.
func (a *App) BlobStore(ctx context.Context) (blob.Store, error) {
	cfg := a.Config.Export
	switch cfg.Backend {
	case config.BackendLocal:
		s, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.BackendGCS:
		s, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket, Prefix: cfg.Prefix}, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return s.Close() })
		return s, nil
	default:
		return nil, &source.ConfigurationError{Reason: fmt.Sprintf("unknown export backend %q", cfg.Backend)}
	}
}

// Publisher opens the configured notification publisher; nil means none.
func (a *App) Publisher(ctx context.Context) (publisher.Publisher, error) {
	cfg := a.Config.Export
	switch cfg.Publisher {
	case config.PublisherNone, "":
		return nil, nil
	case config.PublisherMemory:
		return pubmem.New(), nil
	case config.PublisherPubSub:
		client, err := gpubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		p := pubsub.New(client, a.Logger)
		a.closers = append(a.closers, func(context.Context) error {
			p.Close()
			return client.Close()
		})
		return p, nil
	default:
		return nil, &source.ConfigurationError{Reason: fmt.Sprintf("unknown publisher %q", cfg.Publisher)}
	}
}

// Close drains the progress hub and releases every service.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Hub != nil {
		if err := a.Hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
