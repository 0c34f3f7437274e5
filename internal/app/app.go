package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"BillsScanner/internal/config"
	"BillsScanner/internal/infrastructure/blob"
	"BillsScanner/internal/infrastructure/catalog"
	"BillsScanner/internal/infrastructure/checkpoint"
	"BillsScanner/internal/infrastructure/fetch"
	"BillsScanner/internal/infrastructure/llm"
	"BillsScanner/internal/infrastructure/ocr"
	"BillsScanner/internal/infrastructure/parser"
	"BillsScanner/internal/infrastructure/scheduler"
	"BillsScanner/internal/infrastructure/storage"
	"BillsScanner/internal/infrastructure/telegram"
	"BillsScanner/internal/logging"
	"BillsScanner/internal/metrics"
	"BillsScanner/internal/ports"
	"BillsScanner/internal/scanner"
	"BillsScanner/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Recorder
	files    *catalog.JSONStore
	fetcher  *fetch.HTTPFetcher

	dbOnce sync.Once
	db     *sql.DB
	dbErr  error
}

// New builds the application. External connections are opened lazily by the passes that need them.
func New(cfg config.Config, baseLogger *slog.Logger) *Application {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Application{
		cfg:      cfg,
		logger:   baseLogger,
		registry: registry,
		metrics:  metrics.New(registry),
		files: catalog.NewJSONStore(
			cfg.Extraction.CatalogPath,
			cfg.Extraction.ProcessedPath,
			cfg.Extraction.OutputPath,
			baseLogger.With("component", "catalog"),
		),
		fetcher: fetch.NewHTTPFetcher(cfg.Fetch, nil, baseLogger),
	}
}

// Close releases the database pool if one was opened.
func (a *Application) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ScrapePass refreshes the catalog from the configured chambers.
func (a *Application) ScrapePass() *usecase.ScrapePass {
	registry := scanner.NewRegistry()
	registry.Register(parser.NewParliamentScanner(
		nil,
		a.cfg.Scrape.PageInterval,
		a.cfg.Fetch.UserAgent,
		a.logger,
	))

	return usecase.NewScrapePass(usecase.ScrapePassDeps{
		Source:  parser.NewStrategySource(registry, a.cfg.Chambers, a.cfg.Scrape.MaxPages, a.logger.With("component", "source")),
		Catalog: a.files,
		Logger:  a.logger.With("component", "scrape"),
		Metrics: a.metrics,
	})
}

// ExtractionPass OCRs every catalog bill not yet in the processed log.
func (a *Application) ExtractionPass() *usecase.ExtractionPass {
	logger := a.logger.With("component", "extract")
	extractor := usecase.NewBoundedExtractor(usecase.ExtractorDeps{
		Fetcher:   a.fetcher,
		Extractor: ocr.NewClient(a.cfg.OCR, a.logger),
		Workers:   a.cfg.Extraction.Workers,
		Progress: func(done, total int, res usecase.ExtractionResult) {
			logger.Info("extracted", "done", done, "total", total, "title", res.Bill.Title, "ok", res.Err == nil)
		},
		Logger:  logger,
		Metrics: a.metrics,
	})

	return usecase.NewExtractionPass(usecase.ExtractionPassDeps{
		Catalog:   a.files,
		Processed: a.files,
		Output:    a.files,
		Extractor: extractor,
		Logger:    logger,
		Metrics:   a.metrics,
	})
}

// PublishPass uploads the extraction output to blob storage and the document store.
func (a *Application) PublishPass(ctx context.Context) (*usecase.PublishPass, error) {
	store, err := a.documentStore(ctx, a.cfg.Publish.Collection)
	if err != nil {
		return nil, err
	}
	blobs, err := blob.NewMinioStore(a.cfg.Storage, a.logger)
	if err != nil {
		return nil, fmt.Errorf("blob store: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		return nil, err
	}

	return usecase.NewPublishPass(usecase.PublishPassDeps{
		Output:     a.files,
		Store:      store,
		Blobs:      blobs,
		Fetcher:    a.fetcher,
		Collection: a.cfg.Publish.Collection,
		IDPrefix:   a.cfg.Publish.IDPrefix,
		PauseEvery: a.cfg.Publish.PauseEvery,
		Pause:      a.cfg.Publish.Pause,
		Logger:     a.logger.With("component", "publish"),
		Metrics:    a.metrics,
	}), nil
}

// EnrichmentPass fills the generated fields of the enrichment collection.
func (a *Application) EnrichmentPass(ctx context.Context) (*usecase.EnrichmentPass, error) {
	store, err := a.documentStore(ctx, a.cfg.Enrichment.Collection)
	if err != nil {
		return nil, err
	}
	cp, err := a.checkpoint(ctx)
	if err != nil {
		return nil, err
	}

	return usecase.NewEnrichmentPass(usecase.EnrichmentPassDeps{
		Store:      store,
		Checkpoint: cp,
		Fetcher:    a.fetcher,
		Enricher:   llm.NewChatGPTClient(a.cfg.ChatGPT),
		BatchSize:  a.cfg.Enrichment.BatchSize,
		Delay:      usecase.DelayRange{Min: a.cfg.Enrichment.MinDelay, Max: a.cfg.Enrichment.MaxDelay},
		Retry:      usecase.RetryPolicy{Delay: a.cfg.Enrichment.RetryDelay, MaxRetries: a.cfg.Enrichment.MaxRetries},
		Logger:     a.logger.With("component", "enrich"),
		Metrics:    a.metrics,
	}), nil
}

// Pipeline chains every pass for scheduled runs.
func (a *Application) Pipeline(ctx context.Context) (*usecase.Pipeline, error) {
	publish, err := a.PublishPass(ctx)
	if err != nil {
		return nil, err
	}
	enrich, err := a.EnrichmentPass(ctx)
	if err != nil {
		return nil, err
	}

	var notifier ports.Notifier
	if tg := telegram.NewNotifier(a.cfg.Notifications.Telegram); tg.Enabled() {
		notifier = tg
	}

	return usecase.NewPipeline(usecase.PipelineDeps{
		Scrape:   a.ScrapePass(),
		Extract:  a.ExtractionPass(),
		Publish:  publish,
		Enrich:   enrich,
		Notifier: notifier,
		Logger:   a.logger.With("component", "pipeline"),
	}), nil
}

// Schedule runs the pipeline on the configured cron expression and serves metrics until ctx ends.
func (a *Application) Schedule(ctx context.Context) error {
	pipeline, err := a.Pipeline(ctx)
	if err != nil {
		return err
	}

	driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location(), a.cfg.Scheduler.RunOnStart)
	sched := usecase.NewScheduler(driver, pipeline, a.logger.With("component", "scheduler"))

	srv := a.metricsServer()
	serveErr := make(chan error, 1)
	if srv != nil {
		go func() {
			a.logger.Info("serving metrics", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	a.logger.Info("scheduler started", "cron", a.cfg.Scheduler.CronExpression, "next", driver.Next())

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		runErr = fmt.Errorf("metrics server: %w", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("stop scheduler: %w", err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("stop metrics server: %w", err))
		}
	}
	a.logger.Info("scheduler stopped")
	return runErr
}

func (a *Application) metricsServer() *http.Server {
	if a.cfg.Metrics.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(a.registry))
	return &http.Server{Addr: a.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

func (a *Application) database(ctx context.Context) (*sql.DB, error) {
	a.dbOnce.Do(func() {
		if a.cfg.Database.DSN == "" {
			a.dbErr = errors.New("database.dsn is not configured")
			return
		}
		db, err := sql.Open("postgres", a.cfg.Database.DSN)
		if err != nil {
			a.dbErr = fmt.Errorf("open database: %w", err)
			return
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			a.dbErr = fmt.Errorf("ping database: %w", err)
			return
		}
		if err := storage.EnsureSchema(ctx, db, a.cfg.Database.DocumentsTable, a.cfg.Database.CheckpointsTable); err != nil {
			_ = db.Close()
			a.dbErr = err
			return
		}
		a.db = db
	})
	return a.db, a.dbErr
}

func (a *Application) documentStore(ctx context.Context, collection string) (*storage.DocumentStore, error) {
	db, err := a.database(ctx)
	if err != nil {
		return nil, err
	}
	return storage.NewDocumentStore(db, a.cfg.Database.DocumentsTable, collection)
}

func (a *Application) checkpoint(ctx context.Context) (ports.Checkpoint, error) {
	switch a.cfg.Enrichment.Checkpoint.Backend {
	case config.CheckpointPostgres:
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return storage.NewCheckpoint(db, a.cfg.Database.CheckpointsTable, a.cfg.Enrichment.Collection)
	default:
		return checkpoint.NewFile(a.cfg.Enrichment.Checkpoint.Path), nil
	}
}
