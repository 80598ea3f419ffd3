package http

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
)

// RouterConfig carries the middleware settings for NewRouter.
type RouterConfig struct {
	Limiter        *ClientLimiter
	Tracker        *traffic.Tracker
	InFlight       *InFlightTracker
	RequestTimeout time.Duration
	Logger         *zap.Logger
}

// NewRouter mounts /getweather, /health and /metrics. Only /getweather is
// rate limited and bounded by the request timeout.
func NewRouter(h *Handler, cfg RouterConfig) *mux.Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	inFlight := cfg.InFlight
	if inFlight == nil {
		inFlight = &InFlightTracker{}
	}

	router := mux.NewRouter()
	router.Use(inFlight.Middleware)
	router.Use(CorrelationIDMiddleware(logger))
	router.Use(RequestLogMiddleware)
	router.Use(MetricsMiddleware)
	router.HandleFunc("/health", h.GetHealth).Methods(http.MethodGet)
	router.Handle("/metrics", observability.MetricsHandler()).Methods(http.MethodGet)

	var weather http.Handler = http.HandlerFunc(h.GetWeather)
	if cfg.RequestTimeout > 0 {
		weather = TimeoutMiddleware(cfg.RequestTimeout)(weather)
	}
	weather = RateLimitMiddleware(cfg.Limiter, cfg.Tracker)(weather)
	router.Handle("/getweather", weather).Methods(http.MethodGet)
	return router
}
