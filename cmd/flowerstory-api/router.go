// Package main provides the API router setup.
package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pinkittys/flowerstory/cmd/flowerstory-api/handlers"
	"github.com/pinkittys/flowerstory/cmd/flowerstory-api/middleware"
	"github.com/pinkittys/flowerstory/internal/api/rpc"
	"github.com/pinkittys/flowerstory/internal/app"
	"github.com/pinkittys/flowerstory/internal/observability"
)

// RouterConfig holds router settings.
type RouterConfig struct {
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// NewRouter creates the main API router with all routes configured.
func NewRouter(logger *observability.Logger, a *app.App, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestContext)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy","service":"flowerstory"}`))
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !a.Service.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"not ready","reason":"catalog is empty"}`))
			return
		}
		w.Write([]byte(`{"status":"ready"}`))
	})

	recommendHandler := handlers.NewRecommendHandler(logger, a.Service, a.Gate.DebounceWindow())
	catalogHandler := handlers.NewCatalogHandler(logger, a.Catalog, a.ReloadCatalog)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/recommend", recommendHandler.Recommend)
		r.Post("/context", recommendHandler.Context)

		r.Route("/catalog", func(r chi.Router) {
			r.Get("/", catalogHandler.List)
			r.Post("/reload", catalogHandler.Reload)
			r.Get("/{id}", catalogHandler.Get)
		})
	})

	// Connect RPC
	path, handler := rpc.NewRecommendService(logger, a.Service).Handler()
	r.Mount(path, handler)

	return r
}
