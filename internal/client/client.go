package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/circuitbreaker"
	"github.com/kjstillabower/weather-lookup/internal/models"
	"github.com/kjstillabower/weather-lookup/internal/observability"
)

type WeatherClient interface {
	GetCurrentWeather(ctx context.Context, city string) (models.Payload, error)
	ValidateAPIKey(ctx context.Context) error
}

var (
	ErrBadRequest      = errors.New("bad request")
	ErrInvalidAPIKey   = errors.New("invalid API key")
	ErrForbidden       = errors.New("forbidden")
	ErrCityNotFound    = errors.New("city not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrConnection      = errors.New("connection error")
	ErrTimeout         = errors.New("request timeout")
	ErrCircuitOpen     = errors.New("circuit breaker open")
)

// StatusError is a non-2xx upstream status, or a 200 response whose body
// reports a different "cod". It matches the sentinel for its code via errors.Is.
type StatusError struct {
	Code int
	// Message is the upstream "message" field, when the body carried one.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream HTTP %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("upstream HTTP %d", e.Code)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrBadRequest:
		return e.Code == http.StatusBadRequest
	case ErrInvalidAPIKey:
		return e.Code == http.StatusUnauthorized
	case ErrForbidden:
		return e.Code == http.StatusForbidden
	case ErrCityNotFound:
		return e.Code == http.StatusNotFound
	case ErrRateLimited:
		return e.Code == http.StatusTooManyRequests
	case ErrUpstreamFailure:
		switch e.Code {
		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}

type OpenWeatherClient struct {
	apiKey         string
	apiURL         string
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker
}

// NewOpenWeatherClient returns a client that makes a single attempt per lookup.
func NewOpenWeatherClient(apiKey, apiURL string, timeout time.Duration) (*OpenWeatherClient, error) {
	return NewOpenWeatherClientWithRetry(apiKey, apiURL, timeout, 1, 100*time.Millisecond, 2*time.Second)
}

func NewOpenWeatherClientWithRetry(apiKey, apiURL string, timeout time.Duration, retryAttempts int, retryBaseDelay, retryMaxDelay time.Duration) (*OpenWeatherClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidAPIKey)
	}
	if len(apiKey) < 10 {
		return nil, fmt.Errorf("%w: API key appears invalid (too short)", ErrInvalidAPIKey)
	}
	if retryAttempts <= 0 {
		retryAttempts = 1
	}

	return &OpenWeatherClient{
		apiKey:         apiKey,
		apiURL:         apiURL,
		timeout:        timeout,
		retryAttempts:  retryAttempts,
		retryBaseDelay: retryBaseDelay,
		retryMaxDelay:  retryMaxDelay,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// SetCircuitBreaker guards upstream calls with cb. Only upstream-side failures
// count against the breaker.
func (c *OpenWeatherClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

func (c *OpenWeatherClient) GetCurrentWeather(ctx context.Context, city string) (models.Payload, error) {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.WeatherAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return models.Payload{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := c.guardedCall(ctx, city)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return models.Payload{}, err
		}
	}

	return models.Payload{}, fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *OpenWeatherClient) guardedCall(ctx context.Context, city string) (models.Payload, error) {
	if c.breaker == nil {
		return c.callAPI(ctx, city)
	}
	var result models.Payload
	var callErr error
	err := c.breaker.Call(ctx, func() error {
		result, callErr = c.callAPI(ctx, city)
		if callErr != nil && countsAgainstBreaker(callErr) {
			return callErr
		}
		return nil
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return models.Payload{}, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
	}
	if callErr != nil {
		return models.Payload{}, callErr
	}
	return result, err
}

func (c *OpenWeatherClient) callAPI(ctx context.Context, city string) (models.Payload, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, city)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return models.Payload{}, fmt.Errorf("build request: %w", err)
	}

	if corrID := observability.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)
		return models.Payload{}, transportError(err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if err := handleErrorResponse(resp); err != nil {
		return models.Payload{}, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Payload{}, fmt.Errorf("read response body: %w", err)
	}

	var payload struct {
		models.Payload
		Cod     json.RawMessage `json:"cod"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return models.Payload{}, fmt.Errorf("parse response: %w", err)
	}
	cod := parseCod(payload.Cod)
	if cod != 0 && cod != http.StatusOK {
		msg := payload.Message
		if msg == "" {
			msg = "Failed to fetch weather data"
		}
		return models.Payload{}, &StatusError{Code: cod, Message: msg}
	}
	out := payload.Payload
	out.Cod = http.StatusOK
	return out, nil
}

// parseCod reads OpenWeatherMap's "cod", which is a number on success and
// sometimes a string on error.
func parseCod(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		n, _ = strconv.Atoi(s)
	}
	return n
}

func transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("request canceled: %w", err)
	}
	return fmt.Errorf("%w: %v", ErrConnection, err)
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUpstreamFailure) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrConnection)
}

// countsAgainstBreaker is true for failures that say the upstream is unhealthy,
// not that the caller asked for something bad.
func countsAgainstBreaker(err error) bool {
	return errors.Is(err, ErrUpstreamFailure) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrConnection)
}

func (c *OpenWeatherClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func (c *OpenWeatherClient) buildRequest(ctx context.Context, city string) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("q", city)
	params.Set("appid", c.apiKey)
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	return req, nil
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == 429 {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}

func (c *OpenWeatherClient) ValidateAPIKey(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := c.buildRequest(ctx, "London")
	if err != nil {
		return fmt.Errorf("build validation request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: API key is invalid or not activated", ErrInvalidAPIKey)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("validation failed: HTTP %d", resp.StatusCode)
	}

	return nil
}
