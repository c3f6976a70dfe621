// Package main provides the API router setup.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/spherical/offer-extractor/cmd/offer-api/handlers"
	"github.com/spherical/offer-extractor/cmd/offer-api/middleware"
	"github.com/spherical/offer-extractor/internal/observability"
)

// AppConfig holds router configuration.
type AppConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
	MaxUploadBytes int64
	PagesPerChunk  int
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(
	logger *observability.Logger,
	cfg *AppConfig,
	processor handlers.Processor,
	store handlers.OfferStore,
	db Pinger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"offer-extractor"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if db != nil {
			if err := db.PingContext(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	uploadHandler := handlers.NewUploadHandler(logger, processor, cfg.MaxUploadBytes, cfg.PagesPerChunk)
	offerHandler := handlers.NewOfferHandler(logger, store)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload", uploadHandler.Upload)

		r.Route("/offers", func(r chi.Router) {
			r.Get("/", offerHandler.List)
			r.Delete("/", offerHandler.DeleteAll)
			r.Delete("/file", offerHandler.DeleteByFile)
			r.Delete("/{id}", offerHandler.Delete)
		})
	})

	return r
}
