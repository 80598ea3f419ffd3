// Package lookup runs a weather lookup end to end: input check, loading
// state, backend call, error classification, rendering and city caching.
package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/format"
	"github.com/kjstillabower/weather-lookup/internal/models"
)

// MsgEmptyCity is rendered when the input is blank.
const MsgEmptyCity = "Please enter a city name!"

// CitySaver records a successfully looked-up city.
type CitySaver interface {
	Save(ctx context.Context, city string) error
}

// Controller owns the result area. A new lookup cancels the one in flight;
// the cancelled lookup renders nothing further and does not touch the cache.
type Controller struct {
	backend Backend
	view    View
	cities  CitySaver
	logger  *zap.Logger

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// NewController wires a controller. cities and logger may be nil.
func NewController(backend Backend, view View, cities CitySaver, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{backend: backend, view: view, cities: cities, logger: logger}
}

// Lookup runs one lookup for city and blocks until it resolves. It returns the
// final state, which has Superseded set if a newer lookup took over.
func (c *Controller) Lookup(ctx context.Context, city string) State {
	ctx, cancel, seq := c.begin(ctx)
	defer cancel()
	return c.run(ctx, seq, city)
}

// LookupAsync starts a lookup and returns immediately. The channel yields the
// final state once and is then closed. Ordering between calls follows the
// order LookupAsync was called in.
func (c *Controller) LookupAsync(ctx context.Context, city string) <-chan State {
	ctx, cancel, seq := c.begin(ctx)
	out := make(chan State, 1)
	go func() {
		defer close(out)
		defer cancel()
		out <- c.run(ctx, seq, city)
	}()
	return out
}

// begin cancels any lookup in flight and claims the view for a new one.
func (c *Controller) begin(parent context.Context) (context.Context, context.CancelFunc, uint64) {
	ctx, cancel := context.WithCancel(parent)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	c.cancel = cancel
	return ctx, cancel, c.seq
}

// renderIfCurrent renders s unless a newer lookup has started.
func (c *Controller) renderIfCurrent(seq uint64, s State) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq {
		return false
	}
	c.view.Render(s)
	return true
}

func (c *Controller) run(ctx context.Context, seq uint64, city string) State {
	if strings.TrimSpace(city) == "" {
		s := Failed(city, KindInput, MsgEmptyCity)
		if !c.renderIfCurrent(seq, s) {
			s.Superseded = true
		}
		return s
	}

	if !c.renderIfCurrent(seq, Loading(city)) {
		s := Loading(city)
		s.Superseded = true
		return s
	}

	start := time.Now()
	s := c.fetch(ctx, city)
	if !c.renderIfCurrent(seq, s) {
		s.Superseded = true
		c.logger.Debug("lookup superseded", zap.String("city", city))
		return s
	}

	fields := []zap.Field{
		zap.String("city", city),
		zap.String("phase", s.Phase.String()),
		zap.Duration("duration", time.Since(start)),
	}
	if s.Phase == PhaseFailed {
		fields = append(fields, zap.String("kind", s.Kind.String()), zap.Int("status", s.StatusCode), zap.String("message", s.Message))
	}
	c.logger.Info("weather lookup", fields...)

	// The success is on screen, so the save must outlive a newer lookup
	// cancelling ctx.
	if s.Phase == PhaseSuccess && c.cities != nil {
		if err := c.cities.Save(context.WithoutCancel(ctx), s.Result.City); err != nil {
			c.logger.Warn("city cache save failed", zap.String("city", s.Result.City), zap.Error(err))
		}
	}
	return s
}

func (c *Controller) fetch(ctx context.Context, city string) State {
	resp, err := c.backend.GetWeather(ctx, city)
	if err != nil {
		return Failed(city, KindTransport, err.Error())
	}
	if !resp.OK() {
		s := Failed(city, KindHTTPStatus, StatusMessage(resp.StatusCode, resp.StatusText, city))
		s.StatusCode = resp.StatusCode
		return s
	}

	var p models.Payload
	if err := json.Unmarshal(resp.Body, &p); err != nil {
		return Failed(city, KindTransport, fmt.Sprintf("parse response: %v", err))
	}
	if p.Error != "" {
		return Failed(city, KindDomain, p.Error)
	}
	r, err := format.Compose(city, p)
	if err != nil {
		return Failed(city, KindTransport, err.Error())
	}
	return Succeeded(city, r)
}

// StatusMessage is the user-facing text for a non-2xx backend status.
// statusText is used only for codes without a dedicated message.
func StatusMessage(code int, statusText, city string) string {
	switch code {
	case http.StatusBadRequest:
		return "Bad request. Please check the city name."
	case http.StatusUnauthorized:
		return "Unauthorized request. Invalid API Key."
	case http.StatusForbidden:
		return "Forbidden. Access Denied."
	case http.StatusNotFound:
		return `City "` + city + `" not found.`
	case http.StatusInternalServerError:
		return "Internal Server Error. Please try again later."
	case http.StatusBadGateway:
		return "Bad Gateway. Please try again later."
	case http.StatusServiceUnavailable:
		return "Service Unavailable. Please try again later."
	case http.StatusGatewayTimeout:
		return "Gateway Timeout. Please try again later."
	default:
		return "Error: " + statusText
	}
}
