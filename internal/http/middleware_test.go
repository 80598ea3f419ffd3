package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
	"github.com/kjstillabower/weather-lookup/internal/traffic"
)

func TestCorrelationIDMiddleware(t *testing.T) {
	var seen string
	h := CorrelationIDMiddleware(zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = observability.CorrelationID(r.Context())
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getweather", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Correlation-ID"))

	req := httptest.NewRequest(http.MethodGet, "/getweather", nil)
	req.Header.Set("X-Correlation-ID", "client-provided-id")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, "client-provided-id", seen)
	assert.Equal(t, "client-provided-id", w.Header().Get("X-Correlation-ID"))
}

func TestRequestLogMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := CorrelationIDMiddleware(zap.New(core))(RequestLogMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/getweather?city=x", nil))

	entries := logs.FilterMessage("request completed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "/getweather", fields["path"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.NotEmpty(t, fields["correlation_id"])
	assert.Contains(t, fields, "duration")
}

func TestTimeoutMiddleware(t *testing.T) {
	var hasDeadline bool
	h := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasDeadline = r.Context().Deadline()
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.True(t, hasDeadline)
}

func TestClientLimiter_PerClient(t *testing.T) {
	l := NewClientLimiter(10, 20*time.Second)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("1.1.1.1"), "request %d", i)
	}
	assert.False(t, l.Allow("1.1.1.1"), "11th request in the window is denied")
	assert.True(t, l.Allow("2.2.2.2"), "other clients have their own bucket")

	now = now.Add(2 * time.Second)
	assert.True(t, l.Allow("1.1.1.1"), "one token refills every 2s")
	assert.False(t, l.Allow("1.1.1.1"))

	now = now.Add(20 * time.Second)
	for i := 0; i < 10; i++ {
		require.True(t, l.Allow("1.1.1.1"), "full bucket after a window, request %d", i)
	}
}

func TestClientLimiter_SweepsIdleClients(t *testing.T) {
	l := NewClientLimiter(10, 20*time.Second)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }

	l.Allow("1.1.1.1")
	l.Allow("2.2.2.2")
	assert.Equal(t, 2, l.Clients())

	now = now.Add(2 * time.Minute)
	l.Allow("3.3.3.3")
	assert.Equal(t, 1, l.Clients())
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewClientLimiter(2, 20*time.Second)
	tracker := traffic.NewTracker()
	h := RateLimitMiddleware(limiter, tracker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		h.ServeHTTP(last, httptest.NewRequest(http.MethodGet, "/getweather", nil))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	var body models.ErrorBody
	require.NoError(t, json.NewDecoder(last.Body).Decode(&body))
	assert.Equal(t, "Rate Limit exceeded. Please try again in 20 seconds", body.Error)
	assert.Equal(t, "20", last.Header().Get("Retry-After"))
	assert.Equal(t, 1, tracker.DenialCount(time.Minute))
}

func TestRateLimitMiddleware_Disabled(t *testing.T) {
	h := RateLimitMiddleware(nil, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	for i := 0; i < 50; i++ {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/getweather", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:4242"
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	assert.Equal(t, "10.0.0.5", clientIP(req, false))
	assert.Equal(t, "203.0.113.9", clientIP(req, true))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", clientIP(req, false))
}

func TestRouter_RateLimitOnlyOnWeather(t *testing.T) {
	fw := &fakeWeather{payload: miamiPayload()}
	router := NewRouter(NewHandler(fw, nil, nil, nil, Options{}), RouterConfig{
		Limiter:        NewClientLimiter(1, 20*time.Second),
		RequestTimeout: time.Second,
	})

	assert.Equal(t, http.StatusOK, serve(t, router, "/getweather?city=Miami").Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(t, router, "/getweather?city=Miami").Code)
	assert.Equal(t, http.StatusOK, serve(t, router, "/health").Code)
	assert.Equal(t, http.StatusOK, serve(t, router, "/health").Code)
}

func TestRouter_PropagatesContext(t *testing.T) {
	var gotID string
	fw := &ctxWeather{fn: func(ctx context.Context) { gotID = observability.CorrelationID(ctx) }}
	router := NewRouter(NewHandler(fw, nil, nil, nil, Options{}), RouterConfig{})

	req := httptest.NewRequest(http.MethodGet, "/getweather?city=Miami", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	router.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "abc-123", gotID)
}

type ctxWeather struct {
	fn func(ctx context.Context)
}

func (c *ctxWeather) GetWeather(ctx context.Context, city string) (models.Payload, error) {
	c.fn(ctx)
	return models.Payload{}, nil
}

func (c *ctxWeather) ValidateAPIKey(ctx context.Context) error { return nil }
