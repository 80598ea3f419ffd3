package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
	"github.com/kjstillabower/weather-lookup/internal/validation"
)

// DefaultCity is looked up when /getweather has no city parameter.
const DefaultCity = "Miami"

// WeatherService is the lookup surface the handlers need.
type WeatherService interface {
	GetWeather(ctx context.Context, city string) (models.Payload, error)
	ValidateAPIKey(ctx context.Context) error
}

// HealthConfig holds thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow   time.Duration
	DegradedErrorPct int
	// CachePing, when set, reports response cache reachability.
	CachePing func(ctx context.Context) error
	Version   string
	// KeyCheckTTL is how long an upstream API key check result is reused.
	// Zero uses defaultKeyCheckTTL.
	KeyCheckTTL time.Duration
}

const defaultKeyCheckTTL = 30 * time.Second

// Options tunes Handler. Zero values fall back to defaults.
type Options struct {
	DefaultCity   string
	CityMinLength int
	CityMaxLength int
}

type Handler struct {
	weather      WeatherService
	healthConfig *HealthConfig
	logger       *zap.Logger
	tracker      *traffic.Tracker
	opts         Options
	shuttingDown atomic.Bool

	healthStatusMu   sync.Mutex
	healthStatusPrev string

	keyCheckMu  sync.Mutex
	keyCheckTTL time.Duration
	keyCheckAt  time.Time
	keyCheckErr error
	now         func() time.Time
}

func NewHandler(weather WeatherService, healthConfig *HealthConfig, tracker *traffic.Tracker, logger *zap.Logger, opts Options) *Handler {
	if opts.DefaultCity == "" {
		opts.DefaultCity = DefaultCity
	}
	if opts.CityMaxLength == 0 {
		opts.CityMaxLength = 100
	}
	if tracker == nil {
		tracker = traffic.NewTracker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	keyCheckTTL := defaultKeyCheckTTL
	if healthConfig != nil && healthConfig.KeyCheckTTL > 0 {
		keyCheckTTL = healthConfig.KeyCheckTTL
	}
	return &Handler{
		weather:      weather,
		healthConfig: healthConfig,
		logger:       logger,
		tracker:      tracker,
		opts:         opts,
		keyCheckTTL:  keyCheckTTL,
		now:          time.Now,
	}
}

// SetShuttingDown flips /health to shutting-down so load balancers drain us.
func (h *Handler) SetShuttingDown(v bool) {
	h.shuttingDown.Store(v)
}

// GetWeather handles GET /getweather?city=. It returns the upstream payload
// unchanged (temperatures in Kelvin) or {"error": msg} with a mapped status.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	logger := observability.LoggerFromContext(r.Context(), h.logger)

	raw, present := r.URL.Query()["city"]
	input := h.opts.DefaultCity
	if present {
		input = raw[0]
	}
	city, err := validation.ValidateCity(input, h.opts.CityMinLength, h.opts.CityMaxLength)
	if err != nil {
		logger.Debug("invalid city", zap.String("city", input), zap.Error(err))
		writeError(w, http.StatusBadRequest, "Bad request")
		return
	}

	payload, err := h.weather.GetWeather(r.Context(), city)
	if err != nil {
		status, msg := client.StatusFor(err, city)
		if status >= http.StatusInternalServerError {
			h.tracker.RecordError()
			logger.Warn("weather lookup failed", zap.String("city", city), zap.Int("status", status), zap.Error(err))
		} else {
			logger.Debug("weather lookup rejected", zap.String("city", city), zap.Int("status", status), zap.Error(err))
		}
		writeError(w, status, msg)
		return
	}
	h.tracker.RecordSuccess()
	writeJSON(w, http.StatusOK, payload)
}

type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus(r.Context())

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := map[string]string{"weatherApi": "healthy"}
	if result.reason == "api_key_invalid" {
		checks["weatherApi"] = "unhealthy"
	}
	version := "dev"
	if h.healthConfig != nil {
		if h.healthConfig.CachePing != nil {
			checks["cache"] = "healthy"
			if err := h.healthConfig.CachePing(r.Context()); err != nil {
				checks["cache"] = "unhealthy"
			}
		}
		if h.healthConfig.Version != "" {
			version = h.healthConfig.Version
		}
	}

	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "weather-lookup",
		"version":   version,
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	if result.reason != "" {
		resp["reason"] = result.reason
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus checks in order: shutting-down, API key, error rate.
func (h *Handler) computeHealthStatus(ctx context.Context) healthResult {
	if h.shuttingDown.Load() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if err := h.checkAPIKey(ctx); err != nil {
		reason := "api_unreachable"
		if errors.Is(err, client.ErrInvalidAPIKey) {
			reason = "api_key_invalid"
		}
		return healthResult{"degraded", http.StatusServiceUnavailable, reason}
	}
	if h.healthConfig != nil && h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		if h.tracker.ErrorPct(h.healthConfig.DegradedWindow) >= float64(h.healthConfig.DegradedErrorPct) {
			return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// checkAPIKey reuses the last ValidateAPIKey result for keyCheckTTL so /health
// traffic cannot spend upstream quota. Concurrent callers wait for one check.
func (h *Handler) checkAPIKey(ctx context.Context) error {
	h.keyCheckMu.Lock()
	defer h.keyCheckMu.Unlock()
	now := h.now()
	if !h.keyCheckAt.IsZero() && now.Sub(h.keyCheckAt) < h.keyCheckTTL {
		return h.keyCheckErr
	}
	h.keyCheckErr = h.weather.ValidateAPIKey(ctx)
	h.keyCheckAt = now
	return h.keyCheckErr
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the {"error": msg} body the widget reads.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, models.ErrorBody{Error: msg})
}
