// Package api provides the HTTP API for Belfast Bikes.
package api

import (
	"bytes"
	"io/fs"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/belfastbikes/belfastbikes/internal/api/handler"
	"github.com/belfastbikes/belfastbikes/internal/api/middleware"
	"github.com/belfastbikes/belfastbikes/internal/api/response"
	"github.com/belfastbikes/belfastbikes/internal/provider/resilience"
	"github.com/belfastbikes/belfastbikes/web"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	Stations    handler.StationService
	Feedback    handler.FeedbackService
	Registry    *resilience.Registry

	// Assets is the static front end. Defaults to the embedded bundle.
	Assets fs.FS
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "belfastbikes-api"
	}

	assets := cfg.Assets
	if assets == nil {
		assets = web.Assets()
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))   // Structured logging
	r.Use(middleware.Recovery(cfg.Logger)) // Panic recovery
	r.Use(chimiddleware.RealIP)            // Real IP extraction
	r.Use(middleware.SecurityHeaders)      // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS)           // TLS enforcement (enabled via REQUIRE_TLS=true)
	r.Use(middleware.CORS())               // Any origin may call the API

	opsHandler := handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry)
	stationsHandler := handler.NewStationsHandler(cfg.Stations)
	feedbackHandler := handler.NewFeedbackHandler(cfg.Feedback)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)
		r.NotFound(response.NotFound)

		r.Get("/stations", stationsHandler.List)
		r.Get("/debug/status", stationsHandler.DebugStatus)
		r.With(middleware.RequireJSON).Post("/feedback", feedbackHandler.Submit)

		r.Get("/health", opsHandler.HealthCheck)
		r.Get("/status", opsHandler.SystemStatus)
	})

	// Everything else is the front end. FileServer redirects /index.html to
	// ./, and the offline cache stores that path, so it is served directly.
	r.Get("/index.html", serveIndex(assets))
	r.Handle("/*", http.FileServer(http.FS(assets)))

	return r
}

func serveIndex(assets fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(assets, "index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, "index.html", time.Time{}, bytes.NewReader(data))
	}
}
