// Package handler provides HTTP handlers for all API endpoints. User
// commands go through the membership service so tier limits are enforced
// in one place; public listings read the store and are cached with ETags.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/oshri1997/Deal-Hunter/internal/api/respond"
	"github.com/oshri1997/Deal-Hunter/internal/cache"
	"github.com/oshri1997/Deal-Hunter/internal/cycle"
	"github.com/oshri1997/Deal-Hunter/internal/exchange"
	"github.com/oshri1997/Deal-Hunter/internal/membership"
	"github.com/oshri1997/Deal-Hunter/internal/model"
)

// DealReader is the read side of the deal store.
type DealReader interface {
	ListDeals(ctx context.Context, regions []string, offset, limit int) ([]model.DealView, int, error)
	GameDeals(ctx context.Context, gameID int64) ([]model.DealView, error)
	GetGame(ctx context.Context, id int64) (model.Game, error)
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ScrapeTrigger queues scrape requests.
type ScrapeTrigger interface {
	Trigger(req model.ScrapeRequest) bool
}

// Ingester runs cycles over uploaded observations.
type Ingester interface {
	IngestAll(ctx context.Context, raws []model.RawObservation) ([]cycle.Result, error)
}

// Deps are the handler's collaborators. Scraper, Ingester and Rates may be
// nil; the routes they back then answer 503.
type Deps struct {
	Members  *membership.Service
	Deals    DealReader
	DB       Pinger
	Rates    *exchange.Service
	Scraper  ScrapeTrigger
	Ingester Ingester
	Cache    *cache.Cache
	Logger   *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	members  *membership.Service
	deals    DealReader
	db       Pinger
	rates    *exchange.Service
	scraper  ScrapeTrigger
	ingester Ingester
	cache    *cache.Cache
	logger   *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		members:  d.Members,
		deals:    d.Deals,
		db:       d.DB,
		rates:    d.Rates,
		scraper:  d.Scraper,
		ingester: d.Ingester,
		cache:    d.Cache,
		logger:   logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version and status.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Deal Hunter API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Description Verifies store connectivity.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warn("Database health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
