package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/cache"
	"github.com/kjstillabower/weather-lookup/internal/client"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

// WeatherService serves /getweather lookups cache-aside: cache first, then
// OpenWeatherMap, storing successful responses for ttl.
type WeatherService struct {
	client    client.WeatherClient
	cache     cache.Cache
	ttl       time.Duration
	coalescer *requestCoalescer
	logger    *zap.Logger
}

// NewWeatherService wires the service. coalesceTimeout of 0 disables request
// coalescing. logger is the fallback when the request context carries none.
func NewWeatherService(c client.WeatherClient, store cache.Cache, ttl, coalesceTimeout time.Duration, logger *zap.Logger) *WeatherService {
	var coalescer *requestCoalescer
	if coalesceTimeout > 0 {
		coalescer = newRequestCoalescer(coalesceTimeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WeatherService{
		client:    c,
		cache:     store,
		ttl:       ttl,
		coalescer: coalescer,
		logger:    logger,
	}
}

// GetWeather returns the upstream payload for city. A cache read error is
// logged and treated as a miss; a cache write error never fails the lookup.
func (s *WeatherService) GetWeather(ctx context.Context, city string) (models.Payload, error) {
	key := normalizeCity(city)
	start := time.Now()
	logger := observability.LoggerFromContext(ctx, s.logger)
	observability.RecordWeatherQuery(key)

	cached, ok, err := s.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Warn("cache get failed", zap.String("city", key), zap.Error(err))
	case ok:
		logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		return cached, nil
	}

	logger.Debug("cache miss, fetching upstream", zap.String("city", key))

	var data models.Payload
	if s.coalescer != nil {
		var shared bool
		data, shared, err = s.coalescer.GetOrDo(ctx, key, func(ctx context.Context) (models.Payload, error) {
			return s.fetchAndStore(ctx, key, logger)
		})
		if shared {
			logger.Debug("joined in-flight upstream call", zap.String("city", key))
		}
	} else {
		data, err = s.fetchAndStore(ctx, key, logger)
	}
	if err != nil {
		return models.Payload{}, fmt.Errorf("fetch weather for %s: %w", key, err)
	}

	logger.Debug("weather served", zap.String("city", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	return data, nil
}

func (s *WeatherService) fetchAndStore(ctx context.Context, key string, logger *zap.Logger) (models.Payload, error) {
	data, err := s.client.GetCurrentWeather(ctx, key)
	if err != nil {
		return models.Payload{}, err
	}
	if err := s.cache.Set(ctx, key, data, s.ttl); err != nil {
		logger.Warn("cache set failed", zap.String("city", key), zap.Error(err))
	}
	return data, nil
}

// ValidateAPIKey checks the upstream with the configured key. Used by /health.
func (s *WeatherService) ValidateAPIKey(ctx context.Context) error {
	return s.client.ValidateAPIKey(ctx)
}

// normalizeCity trims and lowercases so "Miami" and " miami " share a cache key.
func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}
