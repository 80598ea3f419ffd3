package client

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// ErrorCategory is a stable label for error classification in metrics.
type ErrorCategory string

// Error category constants used as metric labels.
const (
	ErrorCategoryTimeout       ErrorCategory = "timeout"
	ErrorCategoryNetwork       ErrorCategory = "network"
	ErrorCategoryBadRequest    ErrorCategory = "bad_request"
	ErrorCategoryInvalidAPIKey ErrorCategory = "invalid_api_key"
	ErrorCategoryForbidden     ErrorCategory = "forbidden"
	ErrorCategoryCityNotFound  ErrorCategory = "city_not_found"
	ErrorCategoryRateLimited   ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx   ErrorCategory = "upstream_5xx"
	ErrorCategoryCircuitOpen   ErrorCategory = "circuit_open"
	ErrorCategoryParsing       ErrorCategory = "parsing"
	ErrorCategoryUnknown       ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory for metrics.
func CategorizeError(err error) ErrorCategory {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, ErrConnection):
		return ErrorCategoryNetwork
	case errors.Is(err, ErrCircuitOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrBadRequest):
		return ErrorCategoryBadRequest
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrForbidden):
		return ErrorCategoryForbidden
	case errors.Is(err, ErrCityNotFound):
		return ErrorCategoryCityNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case strings.Contains(err.Error(), "parse"):
		return ErrorCategoryParsing
	}
	return ErrorCategoryUnknown
}

// StatusFor returns the HTTP status and message the /getweather endpoint
// writes for an upstream error.
func StatusFor(err error, city string) (int, string) {
	switch {
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout, "Request Timeout: The request timed out"
	case errors.Is(err, ErrConnection):
		return http.StatusServiceUnavailable, "Connection Error: Failed to connect to the OpenWeatherMap API"
	case errors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable, "Service Unavailable"
	}

	var se *StatusError
	if !errors.As(err, &se) {
		return http.StatusInternalServerError, "Failed to fetch weather data"
	}
	// A body "cod" can be any integer; only error statuses are passed through.
	if se.Code < 400 || se.Code > 599 {
		msg := se.Message
		if msg == "" {
			msg = "Failed to fetch weather data"
		}
		return http.StatusBadGateway, msg
	}
	if se.Message != "" {
		return se.Code, se.Message
	}
	switch se.Code {
	case http.StatusBadRequest:
		return se.Code, "Bad request"
	case http.StatusUnauthorized:
		return se.Code, "Unauthorized request. Invalid API Key"
	case http.StatusForbidden:
		return se.Code, "Forbidden. Access Denied"
	case http.StatusNotFound:
		return se.Code, "City " + city + " NOT found"
	case http.StatusInternalServerError:
		return se.Code, "Internal Server Error. Try again later"
	case http.StatusBadGateway:
		return se.Code, "Bad Gateway"
	case http.StatusServiceUnavailable:
		return se.Code, "Service Unavailable"
	case http.StatusGatewayTimeout:
		return se.Code, "Gateway Timeout"
	}
	return se.Code, "HTTP error occurred: " + strconv.Itoa(se.Code) + " " + http.StatusText(se.Code)
}
