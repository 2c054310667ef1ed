// Package server assembles the capture agent from configuration and runs it.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/api"
	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/clock/system"
	"github.com/JakeFAU/web-archive-agent/internal/config"
	"github.com/JakeFAU/web-archive-agent/internal/hash/sha256"
	"github.com/JakeFAU/web-archive-agent/internal/logging"
	"github.com/JakeFAU/web-archive-agent/internal/policy/ratelimit"
	"github.com/JakeFAU/web-archive-agent/internal/progress"
	progresssinks "github.com/JakeFAU/web-archive-agent/internal/progress/sinks"
	gcppublisher "github.com/JakeFAU/web-archive-agent/internal/publisher/pubsub"
	sentryreport "github.com/JakeFAU/web-archive-agent/internal/report/sentry"
	"github.com/JakeFAU/web-archive-agent/internal/scraper/headless"
	"github.com/JakeFAU/web-archive-agent/internal/scraper/static"
	badgerstore "github.com/JakeFAU/web-archive-agent/internal/storage/badger"
	gcsstorage "github.com/JakeFAU/web-archive-agent/internal/storage/gcs"
	localstorage "github.com/JakeFAU/web-archive-agent/internal/storage/local"
	memorystorage "github.com/JakeFAU/web-archive-agent/internal/storage/memory"
	pgstore "github.com/JakeFAU/web-archive-agent/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/web-archive-agent/internal/storage/sqlite"
	"github.com/JakeFAU/web-archive-agent/internal/telemetry"
	"github.com/JakeFAU/web-archive-agent/internal/tracker"
	"github.com/JakeFAU/web-archive-agent/internal/uploader/direct"
	"github.com/JakeFAU/web-archive-agent/internal/uploader/httpupload"
)

// App contains the agent's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	tracker   *tracker.Tracker
	apiServer *api.Server

	progressHub    *progress.Hub
	headless       *headless.Scraper
	publisher      *gcppublisher.Publisher
	pubsubClient   *pubsub.Client
	storage        *storage.Client
	pageStore      *pgstore.PageStore
	reporter       *sentryreport.Reporter
	closers        []namedCloser
	tracerShutdown func(context.Context) error
}

type namedCloser struct {
	name  string
	close func() error
}

// Build creates the agent's dependencies and loads the persisted task list.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	return build(ctx, cfg, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg *config.Config, reg prometheus.Registerer) (_ *App, err error) {
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			app.closeInfrastructure(context.WithoutCancel(ctx))
		}
	}()

	tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("tracer init failed: %w", err)
	}
	app.tracerShutdown = tp.Shutdown

	taskStore, err := app.setupTaskStore(ctx)
	if err != nil {
		return nil, err
	}
	scraper, err := app.setupScraper()
	if err != nil {
		return nil, err
	}
	uploader, err := app.setupUploader(ctx)
	if err != nil {
		return nil, err
	}
	emitter, err := app.setupProgress(ctx, reg)
	if err != nil {
		return nil, err
	}

	opts := []tracker.Option{
		tracker.WithLogger(logger.Named("tracker")),
		tracker.WithEmitter(emitter),
	}
	if cfg.Sentry.Enabled {
		app.reporter, err = sentryreport.New(cfg.Sentry.Config, nil)
		if err != nil {
			return nil, fmt.Errorf("sentry init failed: %w", err)
		}
		opts = append(opts, tracker.WithReporter(app.reporter))
		logger.Info("sentry failure reporting enabled", zap.String("environment", cfg.Sentry.Environment))
	}
	app.tracker = tracker.New(taskStore, scraper, uploader, opts...)

	// Startup hook: reconcile tasks interrupted by the previous shutdown. A
	// failed load is retried by the first request that needs the list.
	if err := app.tracker.Init(ctx); err != nil {
		logger.Error("task list load failed, will retry on demand", zap.Error(err))
	}

	apiOpts := api.Options{
		RequestTimeout:  cfg.Server.RequestTimeout,
		Defaults:        cfg.Scraper.Defaults,
		NumericFolderID: cfg.Uploader.Mode == config.UploaderDirect,
		Logger:          logger.Named("api"),
	}
	if cfg.Auth.Enabled {
		apiOpts.APIKey = cfg.Auth.APIKey
	}
	if closer, ok := scraper.(archive.TabCloser); ok {
		apiOpts.Tabs = closer
	}
	app.apiServer = api.NewServer(app.tracker, apiOpts)
	return app, nil
}

func (a *App) setupTaskStore(ctx context.Context) (archive.TaskStore, error) {
	switch a.cfg.Store.Backend {
	case config.StoreFile:
		store, err := localstorage.NewTaskStore(a.cfg.Store.File)
		if err != nil {
			return nil, fmt.Errorf("file task store init failed: %w", err)
		}
		a.logger.Info("using file task store", zap.String("path", store.Path()))
		return store, nil
	case config.StoreBadger:
		store, err := badgerstore.Open(a.cfg.Store.Badger, a.logger.Named("badger"))
		if err != nil {
			return nil, fmt.Errorf("badger task store init failed: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"badger task store", store.Close})
		a.logger.Info("using badger task store", zap.String("dir", a.cfg.Store.Badger.Dir))
		return store, nil
	case config.StoreSQLite:
		store, err := sqlitestore.Open(ctx, a.cfg.Store.SQLite)
		if err != nil {
			return nil, fmt.Errorf("sqlite task store init failed: %w", err)
		}
		a.closers = append(a.closers, namedCloser{"sqlite task store", store.Close})
		a.logger.Info("using sqlite task store", zap.String("path", a.cfg.Store.SQLite.Path))
		return store, nil
	default:
		a.logger.Warn("using in-memory task store; tasks will not survive a restart")
		return memorystorage.NewTaskStore(), nil
	}
}

func (a *App) setupScraper() (archive.Scraper, error) {
	if a.cfg.Scraper.Mode == config.ScraperStatic {
		limiter := ratelimit.New(a.cfg.Scraper.RateLimit)
		a.logger.Info("using static scraper",
			zap.String("user_agent", a.cfg.Scraper.Static.UserAgent),
			zap.Bool("respect_robots", a.cfg.Scraper.Static.RespectRobots),
			zap.Float64("default_rps", a.cfg.Scraper.RateLimit.DefaultRPS),
		)
		return static.New(a.cfg.Scraper.Static, limiter, a.logger.Named("static")), nil
	}
	scraper, err := headless.NewChromedp(a.cfg.Scraper.Headless, a.logger.Named("headless"))
	if err != nil {
		return nil, fmt.Errorf("headless scraper init failed: %w", err)
	}
	a.headless = scraper
	a.logger.Info("using headless scraper",
		zap.Int("max_parallel", a.cfg.Scraper.Headless.MaxParallel),
		zap.Duration("navigation_timeout", a.cfg.Scraper.Headless.NavigationTimeout),
	)
	return scraper, nil
}

func (a *App) setupUploader(ctx context.Context) (archive.Uploader, error) {
	if a.cfg.Uploader.Mode != config.UploaderDirect {
		uploader, err := httpupload.New(a.cfg.Uploader.HTTP, nil, a.logger.Named("httpupload"))
		if err != nil {
			return nil, fmt.Errorf("http uploader init failed: %w", err)
		}
		a.logger.Info("uploading to archive server", zap.String("server_url", a.cfg.Uploader.HTTP.ServerURL))
		return uploader, nil
	}

	blobs, err := a.setupBlobStore(ctx)
	if err != nil {
		return nil, err
	}
	a.pageStore, err = pgstore.NewPageStore(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		Tables:          a.cfg.DB.Tables,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.DB.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("page store init failed: %w", err)
	}

	var publisher archive.Publisher
	if topic := a.cfg.Uploader.Direct.Topic; topic != "" {
		a.pubsubClient, err = pubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client init failed: %w", err)
		}
		a.publisher, err = gcppublisher.New(a.pubsubClient, a.logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
		}
		publisher = a.publisher
		a.logger.Info("Pub/Sub publisher initialized",
			zap.String("project", a.cfg.PubSub.ProjectID),
			zap.String("topic", topic),
		)
	}

	uploader, err := direct.New(blobs, a.pageStore, publisher, sha256.New(), system.New(),
		a.cfg.Uploader.Direct, a.logger.Named("direct"))
	if err != nil {
		return nil, fmt.Errorf("direct uploader init failed: %w", err)
	}
	a.logger.Info("uploading directly to archive storage", zap.String("blob_backend", a.cfg.Blob.Backend))
	return uploader, nil
}

func (a *App) setupBlobStore(ctx context.Context) (archive.BlobStore, error) {
	switch a.cfg.Blob.Backend {
	case config.BlobGCS:
		var err error
		a.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobs, err := gcsstorage.New(a.storage, a.cfg.Blob.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.logger.Debug("GCS blob store", zap.String("bucket", a.cfg.Blob.GCS.Bucket))
		return blobs, nil
	case config.BlobLocal:
		blobs, err := localstorage.New(a.cfg.Blob.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Debug("local blob store", zap.String("path", a.cfg.Blob.Local.BaseDir))
		return blobs, nil
	default:
		a.logger.Warn("using in-memory blob store")
		return memorystorage.NewBlobStore(), nil
	}
}

func (a *App) setupProgress(ctx context.Context, reg prometheus.Registerer) (progress.Emitter, error) {
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress metrics init failed: %w", err)
	}
	hubCfg := progress.Config{
		BufferSize:     a.cfg.Progress.BufferSize,
		MaxBatchEvents: a.cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   a.cfg.Progress.MaxBatchWait,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         a.logger.Named("progress_hub"),
	}
	a.progressHub = progress.NewHub(hubCfg,
		progresssinks.NewLogSink(a.logger.Named("progress")),
		promSink,
	)
	return a.progressHub, nil
}

// Tracker returns the task tracker.
func (a *App) Tracker() *tracker.Tracker {
	return a.tracker
}

// Handler returns the HTTP handler serving the API.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run listens on the configured port and serves until SIGINT/SIGTERM or ctx
// ends, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Address())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Address(), err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves on ln until SIGINT/SIGTERM or ctx ends. On shutdown it drains
// the HTTP server, waits for running captures, and closes every dependency.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: a.cfg.Server.ReadHeaderTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
		close(serveErr)
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	if err := a.tracker.Wait(shutdownCtx); err != nil {
		a.logger.Warn("captures still running at shutdown; they will be reconciled on restart", zap.Error(err))
	}
	a.Close(shutdownCtx)
	return <-serveErr
}

// Close releases every dependency. Repeated calls are safe.
func (a *App) Close(ctx context.Context) {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
		if dropped := a.progressHub.Dropped(); dropped > 0 {
			a.logger.Warn("progress events dropped during run", zap.Int64("dropped", dropped))
		}
	}
	if a.headless != nil {
		a.headless.Close()
		a.headless = nil
	}
	if a.publisher != nil {
		a.publisher.Close()
		a.publisher = nil
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
		a.pubsubClient = nil
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
		a.storage = nil
	}
	if a.pageStore != nil {
		a.pageStore.Close()
		a.pageStore = nil
	}
	for _, c := range a.closers {
		if err := c.close(); err != nil {
			a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) closeObservability(ctx context.Context) {
	if a.reporter != nil {
		a.reporter.Flush(a.cfg.Server.ShutdownTimeout)
	}
	if a.tracerShutdown != nil {
		if err := a.tracerShutdown(ctx); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
		a.tracerShutdown = nil
	}
	// Sync fails on non-file sinks like /dev/stderr; nothing to act on.
	_ = a.logger.Sync()
}
