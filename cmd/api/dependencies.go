package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	importbatch "github.com/statementdesk/statement-desk/internal/domain/import/batch"
	importhandler "github.com/statementdesk/statement-desk/internal/domain/import/handler"
	"github.com/statementdesk/statement-desk/internal/domain/import/normalizer"
	"github.com/statementdesk/statement-desk/internal/domain/import/pipeline"
	importrepo "github.com/statementdesk/statement-desk/internal/domain/import/repository"
	"github.com/statementdesk/statement-desk/internal/domain/import/service"
	"github.com/statementdesk/statement-desk/internal/domain/quota"
	"github.com/statementdesk/statement-desk/pkg/config"
	"github.com/statementdesk/statement-desk/pkg/cron"
	"github.com/statementdesk/statement-desk/pkg/db"
	"github.com/statementdesk/statement-desk/pkg/notify"
	"github.com/statementdesk/statement-desk/pkg/observability"
	"github.com/statementdesk/statement-desk/pkg/storage"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	DB     *db.DB
	Logger *slog.Logger

	Metrics         *observability.Metrics
	MetricsHandler  http.Handler
	ShutdownTracing func(context.Context) error

	// Repositories
	ImportRepo    *importrepo.Repository
	OverrideStore *normalizer.OverrideStore

	// Services
	Pipeline    *pipeline.Pipeline
	QuotaGate   *quota.Gate
	Mailer      *notify.Mailer
	Batch       *importbatch.Processor
	FileStorage storage.Storage
	Scheduler   *cron.Scheduler

	// Handlers
	ImportHandler *importhandler.ImportHandler
	Router        http.Handler
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config: cfg,
		Logger: logger,
	}

	if err := deps.initObservability(); err != nil {
		return nil, fmt.Errorf("failed to init observability: %w", err)
	}

	if cfg.Database.Enabled {
		if err := deps.initDatabase(); err != nil {
			return nil, fmt.Errorf("failed to init database: %w", err)
		}
		deps.initRepositories()
	} else {
		logger.Warn("database disabled, conversions will not be stored")
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	deps.initHandlers()

	logger.Info("all dependencies initialized successfully",
		slog.Bool("database", deps.DB != nil),
		slog.Bool("ocr", deps.Pipeline.OCREnabled),
		slog.Bool("ai", deps.Pipeline.AIEnabled),
		slog.Bool("email", deps.Mailer.Enabled()),
	)
	return deps, nil
}

func (d *Dependencies) initObservability() error {
	tracingCfg := observability.TracingConfig{ServiceName: d.Config.Observability.ServiceName}
	if d.Config.Observability.TraceStdout {
		tracingCfg.Writer = os.Stdout
	}
	shutdown, err := observability.InitTracing(tracingCfg)
	if err != nil {
		return err
	}
	d.ShutdownTracing = shutdown

	if d.Config.Observability.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		d.Metrics = observability.NewMetrics(reg)
		d.MetricsHandler = d.Metrics.Handler()
	}
	return nil
}

// initDatabase initializes the database connection and runs migrations
func (d *Dependencies) initDatabase() error {
	dbCfg := d.Config.Database
	database, err := db.New(db.Config{
		DSN:             dbCfg.DSN(),
		MaxConns:        int32(dbCfg.MaxConns),
		MinConns:        int32(dbCfg.MinConns),
		MaxConnLifetime: dbCfg.MaxConnLifetime,
		MaxConnIdleTime: dbCfg.MaxConnIdleTime,
	}, d.Logger)
	if err != nil {
		return err
	}
	d.DB = database

	if err := d.DB.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	d.Logger.Info("database connected and migrations completed successfully")
	return nil
}

// initRepositories initializes all repository layer dependencies
func (d *Dependencies) initRepositories() {
	d.ImportRepo = importrepo.NewRepository(d.DB.Pool)
	d.OverrideStore = normalizer.NewOverrideStore(d.DB.Pool)

	d.Logger.Info("repositories initialized")
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	cfg := d.Config

	var overrides service.OverrideSource
	if d.OverrideStore != nil {
		overrides = d.OverrideStore
	}
	p, err := pipeline.Build(ctx, pipeline.Config{
		VisionAPIKey:         visionKey(cfg),
		GeminiAPIKey:         cfg.Gemini.APIKey,
		GeminiModel:          cfg.Gemini.Model,
		MinNativeChars:       cfg.Pipeline.MinNativeChars,
		Timeout:              cfg.Pipeline.Timeout,
		LargeAmountThreshold: cfg.Pipeline.LargeAmountThreshold,
	}, overrides, d.Metrics, d.Logger)
	if err != nil {
		return err
	}
	d.Pipeline = p

	var counter quota.Counter
	if d.ImportRepo != nil {
		counter = d.ImportRepo
	}
	d.QuotaGate = quota.NewGate(quota.Config{
		MonthlyConversions: cfg.Quota.MonthlyConversions,
		RequestsPerMinute:  cfg.Quota.RequestsPerMinute,
	}, counter, d.Metrics, d.Logger)

	d.Mailer = notify.NewMailer(cfg.Email.ResendAPIKey, cfg.Email.From, d.Logger)

	fileStorage, err := storage.New(ctx, storage.Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		LocalPath: cfg.Storage.LocalPath,
		GCSBucket: cfg.Storage.GCSBucket,
		GCSPrefix: cfg.Storage.GCSPrefix,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	batchOpts := []importbatch.Option{
		importbatch.WithQuota(d.QuotaGate),
		importbatch.WithNotifier(d.Mailer),
		importbatch.WithMetrics(d.Metrics),
		importbatch.WithDelay(cfg.Pipeline.BatchDelay),
	}
	if d.ImportRepo != nil {
		batchOpts = append(batchOpts, importbatch.WithRecorder(d.ImportRepo))
	}
	d.Batch = importbatch.NewProcessor(d.Pipeline, d.Logger, batchOpts...)

	if d.ImportRepo != nil {
		d.Scheduler = cron.NewScheduler(d.ImportRepo, d.FileStorage, cron.RetentionConfig{
			Schedule:      cfg.Retention.Schedule,
			ArtifactTTL:   cfg.Retention.ArtifactTTL,
			ConversionTTL: cfg.Retention.ConversionTTL,
		}, d.Logger)
	}

	d.Logger.Info("services initialized")
	return nil
}

// initHandlers initializes all handler dependencies
func (d *Dependencies) initHandlers() {
	deps := importhandler.Deps{
		Pipeline: d.Pipeline,
		Quota:    d.QuotaGate,
		Batch:    d.Batch,
		Files:    d.FileStorage,
	}
	routerOpts := importhandler.RouterOptions{
		AllowedOrigins: d.Config.Server.AllowedOrigins,
		Metrics:        d.MetricsHandler,
	}
	if d.ImportRepo != nil {
		deps.Store = d.ImportRepo
		deps.Overrides = d.OverrideStore
		routerOpts.Health = d.DB
	}

	d.ImportHandler = importhandler.NewImportHandler(deps, importhandler.Config{
		MaxUploadBytes: d.Config.Server.MaxUploadBytes,
		MaxBatchFiles:  d.Config.Server.MaxBatchFiles,
	}, d.Logger)
	d.Router = importhandler.NewRouter(d.ImportHandler, d.Logger, routerOpts)

	d.Logger.Info("handlers initialized")
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Scheduler != nil {
		<-d.Scheduler.Stop().Done()
	}
	if d.Pipeline != nil {
		if err := d.Pipeline.Close(); err != nil {
			d.Logger.Warn("failed to close pipeline", slog.Any("error", err))
		}
	}
	if closer, ok := d.FileStorage.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.Logger.Warn("failed to close file storage", slog.Any("error", err))
		}
	}
	if d.DB != nil {
		d.DB.Close()
	}
	if d.ShutdownTracing != nil {
		if err := d.ShutdownTracing(context.Background()); err != nil {
			d.Logger.Warn("failed to flush traces", slog.Any("error", err))
		}
	}
	d.Logger.Info("cleanup completed")
}

func visionKey(cfg *config.Config) string {
	if !cfg.VisionEnabled() {
		return ""
	}
	return cfg.Vision.APIKey
}
