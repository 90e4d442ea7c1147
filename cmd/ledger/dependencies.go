package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/FACorreiaa/ledger-core/internal/domain/categorization"
	importservice "github.com/FACorreiaa/ledger-core/internal/domain/import/service"
	"github.com/FACorreiaa/ledger-core/internal/domain/installment"
	"github.com/FACorreiaa/ledger-core/internal/domain/ledger/repository"

	"github.com/FACorreiaa/ledger-core/pkg/config"
	"github.com/FACorreiaa/ledger-core/pkg/db"
	"github.com/FACorreiaa/ledger-core/pkg/metrics"
	"github.com/FACorreiaa/ledger-core/pkg/storage"
	"github.com/FACorreiaa/ledger-core/pkg/tracing"
)

// Dependencies holds all application dependencies
type Dependencies struct {
	Config *config.Config
	Logger *slog.Logger

	// Exactly one of these is set, per DB_DRIVER.
	Postgres *db.DB
	SQLite   *db.SQLite

	// Repositories
	Repo repository.Repository

	// Services
	Metrics               *metrics.Metrics
	FileStorage           storage.Storage
	CategorizationService *categorization.Service
	ImportService         *importservice.ImportService
	ReviewService         *importservice.ReviewService
	InstallmentService    *installment.Service

	shutdownTracing tracing.ShutdownFunc
}

// InitDependencies initializes all application dependencies
func InitDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:          cfg,
		Logger:          logger,
		shutdownTracing: tracing.Setup(cfg.Observability.TracingEnabled, logger),
	}

	if err := deps.initDatabase(); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init database: %w", err)
	}

	if err := deps.initServices(ctx); err != nil {
		deps.Cleanup()
		return nil, fmt.Errorf("failed to init services: %w", err)
	}

	logger.Debug("all dependencies initialized successfully", "driver", cfg.Database.Driver)

	return deps, nil
}

// initDatabase opens the configured store and its repository
func (d *Dependencies) initDatabase() error {
	switch d.Config.Database.Driver {
	case config.DriverSQLite:
		database, err := db.OpenSQLite(d.Config.Database.SQLitePath, d.Logger)
		if err != nil {
			return err
		}
		d.SQLite = database
		d.Repo = repository.NewSQLiteRepository(database.DB)
	default:
		database, err := db.New(db.Config{
			DSN:             d.Config.Database.DSN(),
			MaxConns:        d.Config.Database.MaxConns,
			MinConns:        d.Config.Database.MinConns,
			MaxConnLifetime: d.Config.Database.MaxConnLifetime,
			MaxConnIdleTime: d.Config.Database.MaxConnIdleTime,
		}, d.Logger)
		if err != nil {
			return err
		}
		d.Postgres = database
		d.Repo = repository.NewPostgresRepository(database.Pool)
	}
	return nil
}

// initServices initializes all service layer dependencies
func (d *Dependencies) initServices(ctx context.Context) error {
	if d.Config.Observability.MetricsEnabled {
		d.Metrics = metrics.New()
	}

	fileStorage, err := storage.New(ctx, storage.Config{
		Type:              storage.StorageType(d.Config.Storage.Type),
		LocalPath:         d.Config.Storage.LocalPath,
		S3Bucket:          d.Config.Storage.S3Bucket,
		S3Region:          d.Config.Storage.S3Region,
		S3AccessKeyID:     d.Config.Storage.S3AccessKeyID,
		S3SecretAccessKey: d.Config.Storage.S3SecretAccessKey,
		S3Endpoint:        d.Config.Storage.S3Endpoint,
	})
	if err != nil {
		return fmt.Errorf("failed to init file storage: %w", err)
	}
	d.FileStorage = fileStorage

	d.CategorizationService = categorization.NewService(d.Repo, d.Logger)

	d.ImportService = importservice.NewImportService(d.Repo, d.Config.Import, d.Logger).
		WithCategorizer(d.CategorizationService).
		WithMetrics(d.Metrics)
	if d.FileStorage != nil {
		d.ImportService.WithArchive(d.FileStorage)
	}

	d.ReviewService = importservice.NewReviewService(d.Repo, d.Logger).WithMetrics(d.Metrics)
	d.InstallmentService = installment.NewService(d.Repo, d.Config.Import.Currency, d.Logger).WithMetrics(d.Metrics)

	return nil
}

// RunMigrations applies the migrations of the configured store
func (d *Dependencies) RunMigrations(ctx context.Context) error {
	if d.SQLite != nil {
		return d.SQLite.RunMigrations(ctx)
	}
	return d.Postgres.RunMigrations(ctx)
}

// Cleanup closes all resources
func (d *Dependencies) Cleanup() {
	if d.Postgres != nil {
		d.Postgres.Close()
	}
	if d.SQLite != nil {
		if err := d.SQLite.Close(); err != nil {
			d.Logger.Warn("failed to close sqlite database", slog.Any("error", err))
		}
	}
	if d.shutdownTracing != nil {
		if err := d.shutdownTracing(context.Background()); err != nil {
			d.Logger.Warn("failed to shut down tracing", slog.Any("error", err))
		}
	}
}

// newLogger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
