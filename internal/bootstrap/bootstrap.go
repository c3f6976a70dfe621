// Package bootstrap assembles the offer extractor from configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/spherical/offer-extractor/internal/config"
	"github.com/spherical/offer-extractor/internal/extract"
	"github.com/spherical/offer-extractor/internal/llm"
	"github.com/spherical/offer-extractor/internal/observability"
	"github.com/spherical/offer-extractor/internal/offers"
	"github.com/spherical/offer-extractor/internal/pdf"
	"github.com/spherical/offer-extractor/internal/storage"
)

// App holds the wired components.
type App struct {
	Config  *config.Config
	Logger  *observability.Logger
	DB      *sql.DB
	Sink    *offers.Sink
	Service *extract.Service // nil for store-only apps
}

// NewLogger builds the logger described by cfg, or the development
// default when cfg is nil.
func NewLogger(cfg *config.Config, verbose bool) *observability.Logger {
	if cfg == nil {
		return observability.DefaultLogger()
	}
	level := cfg.Observability.LogLevel
	if verbose {
		level = "debug"
	}
	return observability.NewLogger(observability.LogConfig{
		Level:       level,
		Format:      cfg.Observability.LogFormat,
		Output:      os.Stderr,
		ServiceName: cfg.Observability.ServiceName,
	})
}

// OpenDatabase connects to the configured database and applies migrations.
func OpenDatabase(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*sql.DB, error) {
	opts := storage.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.DatabaseDSN(),
	}
	if cfg.Database.Driver == "sqlite" {
		opts.MaxOpenConns = cfg.Database.SQLite.MaxOpenConns
		opts.JournalMode = cfg.Database.SQLite.JournalMode
	} else {
		opts.MaxOpenConns = cfg.Database.Postgres.MaxOpenConns
		opts.MaxIdleConns = cfg.Database.Postgres.MaxIdleConns
		opts.ConnMaxLifetime = cfg.Database.Postgres.ConnMaxLifetime
	}

	db, err := storage.Open(ctx, opts)
	if err != nil {
		return nil, err
	}

	applied, err := storage.Migrate(ctx, db, cfg.Database.Driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	for _, v := range applied {
		logger.Info().Str("version", v).Msg("Applied migration")
	}
	return db, nil
}

// NewStore wires the database and offer sink only, for management commands
// that never call the model.
func NewStore(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	db, err := OpenDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Sink:   offers.NewSink(storage.NewOfferRepository(db), logger),
	}, nil
}

// New wires the full pipeline.
func New(ctx context.Context, cfg *config.Config, logger *observability.Logger) (*App, error) {
	app, err := NewStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	service, err := NewService(cfg, app.Sink, logger)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Service = service
	return app, nil
}

// NewService builds the pipeline around sink.
func NewService(cfg *config.Config, sink *offers.Sink, logger *observability.Logger) (*extract.Service, error) {
	rasterizer, err := pdf.NewRasterizer(cfg.Pipeline.DPI, cfg.Pipeline.JPEGQuality, logger)
	if err != nil {
		return nil, err
	}

	client, err := llm.NewClient(llm.Config{
		BaseURL:           cfg.LLM.BaseURL,
		APIKey:            cfg.LLM.APIKey,
		Model:             cfg.LLM.Model,
		SystemPrompt:      cfg.LLM.SystemPrompt,
		UserPrompt:        cfg.LLM.UserPrompt,
		Timeout:           cfg.LLM.Timeout,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
		Burst:             cfg.LLM.Burst,
		Referer:           cfg.LLM.Referer,
		Title:             cfg.LLM.Title,
	}, logger)
	if err != nil {
		return nil, err
	}

	return extract.NewService(
		pdf.NewChunker(logger),
		rasterizer,
		client,
		sink,
		logger,
		extract.Options{TempDir: cfg.Pipeline.TempDir, Workers: cfg.Pipeline.Workers},
	), nil
}

// Close releases the database connection.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}
