package handlers

import (
	"net/http"
	"strconv"

	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/resilience"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
)

// TelemetryReader exposes aggregated telemetry and the alert log.
type TelemetryReader interface {
	Reports() []telemetry.Metrics
	Report(service string) telemetry.Metrics
	Reset(service string)
	Alerts() []telemetry.Alert
}

// BreakerReader lists circuit breaker state.
type BreakerReader interface {
	Breakers() []resilience.BreakerState
}

// PatternReader lists aggregated error patterns.
type PatternReader interface {
	Patterns() []resilience.ErrorPattern
}

// CacheAdmin inspects and invalidates cache pools.
type CacheAdmin interface {
	AllStats() []cache.Stats
	Invalidate(pool, keyOrPattern string) (int, error)
}

// UserResultsInvalidator drops the cached search results of one user.
type UserResultsInvalidator interface {
	InvalidateUser(userID string) int
}

// OpsHandler serves operational views of the query core
type OpsHandler struct {
	telemetry TelemetryReader
	breakers  BreakerReader
	patterns  PatternReader
	caches    CacheAdmin
	users     UserResultsInvalidator
}

// NewOpsHandler creates a new ops handler
func NewOpsHandler(t TelemetryReader, b BreakerReader, p PatternReader, c CacheAdmin, u UserResultsInvalidator) *OpsHandler {
	return &OpsHandler{telemetry: t, breakers: b, patterns: p, caches: c, users: u}
}

// ListTelemetry handles GET /api/ops/telemetry
func (h *OpsHandler) ListTelemetry(w http.ResponseWriter, r *http.Request) {
	reports := h.telemetry.Reports()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"services": reports,
		"count":    len(reports),
	})
}

// GetTelemetry handles GET /api/ops/telemetry/{service}
func (h *OpsHandler) GetTelemetry(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	if service == "" {
		respondWithError(w, http.StatusBadRequest, "service is required")
		return
	}
	respondWithJSON(w, http.StatusOK, h.telemetry.Report(service))
}

// ResetTelemetry handles DELETE /api/ops/telemetry/{service}
func (h *OpsHandler) ResetTelemetry(w http.ResponseWriter, r *http.Request) {
	service := r.PathValue("service")
	if service == "" {
		respondWithError(w, http.StatusBadRequest, "service is required")
		return
	}
	h.telemetry.Reset(service)
	w.WriteHeader(http.StatusNoContent)
}

// ListAlerts handles GET /api/ops/alerts. The newest alerts come last;
// limit keeps only the most recent ones.
func (h *OpsHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := h.telemetry.Alerts()
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			respondWithError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if limit < len(alerts) {
			alerts = alerts[len(alerts)-limit:]
		}
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": alerts,
		"count":  len(alerts),
	})
}

// ListBreakers handles GET /api/ops/breakers
func (h *OpsHandler) ListBreakers(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"breakers": h.breakers.Breakers(),
	})
}

// ListErrorPatterns handles GET /api/ops/errors
func (h *OpsHandler) ListErrorPatterns(w http.ResponseWriter, r *http.Request) {
	patterns := h.patterns.Patterns()
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"patterns": patterns,
		"count":    len(patterns),
	})
}

// ListCaches handles GET /api/ops/cache
func (h *OpsHandler) ListCaches(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"pools": h.caches.AllStats(),
	})
}

// InvalidateCache handles DELETE /api/ops/cache/{pool}?pattern=&user_id=
// user_id is only accepted on the results pool and takes precedence over pattern.
func (h *OpsHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	pool := r.PathValue("pool")
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		if pool != cache.PoolResults || h.users == nil {
			respondWithError(w, http.StatusBadRequest, "user_id is only supported on the results pool")
			return
		}
		respondWithJSON(w, http.StatusOK, map[string]interface{}{
			"pool":    pool,
			"user_id": userID,
			"removed": h.users.InvalidateUser(userID),
		})
		return
	}

	pattern := r.URL.Query().Get("pattern")
	if pattern == "" {
		pattern = "*"
	}

	removed, err := h.caches.Invalidate(pool, pattern)
	if err != nil {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"pool":    pool,
		"pattern": pattern,
		"removed": removed,
	})
}
