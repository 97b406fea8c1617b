// Package handler provides HTTP handlers for all API endpoints.
// Handlers read straight from the measurement cache, the scheduler and the
// pool; there is no service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/albapepper/almaty-air/internal/airquality"
	"github.com/albapepper/almaty-air/internal/api/respond"
	"github.com/albapepper/almaty-air/internal/cache"
	"github.com/albapepper/almaty-air/internal/config"
	"github.com/albapepper/almaty-air/internal/notifications"
)

// HealthChecker verifies database connectivity. Implemented by *db.Pool.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ReadingCache is the measurement cache as seen by the API. The API only
// peeks; refreshing the slot is left to the scheduler.
type ReadingCache interface {
	Peek() (*airquality.Reading, error)
	Stats() map[string]interface{}
}

// StatusSource reports the latest scheduler cycles.
type StatusSource interface {
	Status() map[string]notifications.CycleResult
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	db        HealthChecker
	cache     ReadingCache
	scheduler StatusSource
	cfg       *config.Config
	now       func() time.Time
}

// New creates a Handler with shared dependencies. scheduler may be nil when
// the server runs without the notification loop.
func New(db HealthChecker, c ReadingCache, scheduler StatusSource, cfg *config.Config) *Handler {
	return &Handler{
		db:        db,
		cache:     c,
		scheduler: scheduler,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Root serves API info at /.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":     "Almaty Air API",
		"version":  "1.0.0",
		"status":   "running",
		"location": h.cfg.Location.Name,
		"endpoints": []string{
			"/health",
			"/health/db",
			"/health/cache",
			"/api/v1/air/current",
			"/api/v1/scheduler/status",
		},
	})
}

// HealthCheck returns basic health status.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.db.HealthCheck(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns measurement cache statistics.
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// currentAir is the body of GET /api/v1/air/current.
type currentAir struct {
	Location       string              `json:"location"`
	AQI            int                 `json:"aqi"`
	Band           string              `json:"band"`
	Level          string              `json:"level"`
	Recommendation string              `json:"recommendation"`
	MainPollutant  string              `json:"main_pollutant"`
	PollutantName  string              `json:"pollutant_name"`
	Weather        *airquality.Weather `json:"weather,omitempty"`
	CapturedAt     time.Time           `json:"captured_at"`
}

// CurrentAir serves whatever reading the cache holds, fresh or stale. It
// never triggers an upstream fetch; 503 is returned only while the cache has
// no reading at all.
func (h *Handler) CurrentAir(w http.ResponseWriter, r *http.Request) {
	reading, err := h.cache.Peek()
	if err != nil {
		if errors.Is(err, cache.ErrUnavailable) {
			respond.WriteErrorDetail(w, http.StatusServiceUnavailable,
				"READING_UNAVAILABLE", "Air quality data is temporarily unavailable", err.Error())
			return
		}
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to read air quality")
		return
	}

	etag := fmt.Sprintf(`"%d-%d"`, reading.CapturedAt.Unix(), reading.AQI)
	if r.Header.Get("If-None-Match") == etag {
		respond.WriteNotModified(w, etag)
		return
	}

	band := reading.Band()
	body, err := json.Marshal(currentAir{
		Location:       h.cfg.Location.Name,
		AQI:            reading.AQI,
		Band:           band.String(),
		Level:          band.Title(),
		Recommendation: band.Recommendation(),
		MainPollutant:  reading.MainPollutant,
		PollutantName:  airquality.PollutantName(reading.MainPollutant),
		Weather:        reading.Weather,
		CapturedAt:     reading.CapturedAt,
	})
	if err != nil {
		respond.WriteError(w, http.StatusInternalServerError, "INTERNAL", "Failed to encode reading")
		return
	}

	maxAge := h.cfg.CacheTTL - h.now().Sub(reading.CapturedAt)
	respond.WriteJSON(w, body, etag, maxAge)
}

// SchedulerStatus reports the latest digest and alert cycle results.
func (h *Handler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		respond.WriteError(w, http.StatusServiceUnavailable, "SCHEDULER_DISABLED", "Notification scheduler is not running")
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"cycles":         h.scheduler.Status(),
		"alert_interval": h.cfg.AlertInterval.String(),
		"timezone":       h.cfg.Timezone,
		"timestamp":      h.now().UTC().Format(time.RFC3339),
	})
}
