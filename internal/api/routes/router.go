package routes

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/zatekoja/shopdiscovery/internal/api/handlers"
	"github.com/zatekoja/shopdiscovery/internal/api/middleware"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	searchHandler *handlers.SearchHandler
	opsHandler    *handlers.OpsHandler

	metricsHandler http.Handler
	telemetry      *telemetry.Aggregator
	logger         zerolog.Logger
}

// NewRouter creates a new router. metricsHandler and agg may be nil.
func NewRouter(
	searchHandler *handlers.SearchHandler,
	opsHandler *handlers.OpsHandler,
	metricsHandler http.Handler,
	agg *telemetry.Aggregator,
	logger zerolog.Logger,
) *Router {
	return &Router{
		mux:            http.NewServeMux(),
		searchHandler:  searchHandler,
		opsHandler:     opsHandler,
		metricsHandler: metricsHandler,
		telemetry:      agg,
		logger:         logger.With().Str("component", "http").Logger(),
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	if r.metricsHandler != nil {
		r.mux.Handle("GET /metrics", r.metricsHandler)
	}

	// Search endpoints
	r.mux.HandleFunc("GET /api/search", r.searchHandler.Search)

	// Ops endpoints
	r.mux.HandleFunc("GET /api/ops/telemetry", r.opsHandler.ListTelemetry)
	r.mux.HandleFunc("GET /api/ops/telemetry/{service}", r.opsHandler.GetTelemetry)
	r.mux.HandleFunc("DELETE /api/ops/telemetry/{service}", r.opsHandler.ResetTelemetry)
	r.mux.HandleFunc("GET /api/ops/alerts", r.opsHandler.ListAlerts)
	r.mux.HandleFunc("GET /api/ops/breakers", r.opsHandler.ListBreakers)
	r.mux.HandleFunc("GET /api/ops/errors", r.opsHandler.ListErrorPatterns)
	r.mux.HandleFunc("GET /api/ops/cache", r.opsHandler.ListCaches)
	r.mux.HandleFunc("DELETE /api/ops/cache/{pool}", r.opsHandler.InvalidateCache)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(r.logger)(handler)
	handler = middleware.ObservabilityMiddleware(r.telemetry)(handler)

	return handler
}
