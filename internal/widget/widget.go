// Package widget binds user input events to the weather lookup: submit on
// Enter or button press, and the one-time load work.
package widget

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kjstillabower/weather-lookup/internal/ambient"
	"github.com/kjstillabower/weather-lookup/internal/lookup"
)

// KeyEnter is the key name that submits the input.
const KeyEnter = "Enter"

// CityInput is the text field the user types a city into.
type CityInput interface {
	Value() string
}

// Suggester refreshes autocomplete suggestions from the city cache.
type Suggester interface {
	RefreshSuggestions(ctx context.Context)
}

// Looker starts a lookup without blocking.
type Looker interface {
	LookupAsync(ctx context.Context, city string) <-chan lookup.State
}

// Widget holds the collaborators of one page.
type Widget struct {
	input     CityInput
	lookups   Looker
	cities    Suggester
	effects   *ambient.Generator
	container ambient.Container
	logger    *zap.Logger

	loadOnce sync.Once
}

// Config lists the Widget collaborators. Effects and Container may be nil to
// skip the decorative overlay.
type Config struct {
	Input     CityInput
	Lookups   Looker
	Cities    Suggester
	Effects   *ambient.Generator
	Container ambient.Container
	Logger    *zap.Logger
}

func New(cfg Config) *Widget {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Widget{
		input:     cfg.Input,
		lookups:   cfg.Lookups,
		cities:    cfg.Cities,
		effects:   cfg.Effects,
		container: cfg.Container,
		logger:    logger,
	}
}

// Load populates suggestions and generates the ambient effect. Only the
// first call does anything.
func (w *Widget) Load(ctx context.Context) {
	w.loadOnce.Do(func() {
		if w.cities != nil {
			w.cities.RefreshSuggestions(ctx)
		}
		if w.effects != nil && w.container != nil {
			w.effects.Generate(w.container)
		}
		w.logger.Debug("widget loaded")
	})
}

// KeyPress handles a key typed in the city input. Enter submits; the
// returned bool reports whether a lookup was started.
func (w *Widget) KeyPress(ctx context.Context, key string) (<-chan lookup.State, bool) {
	if key != KeyEnter {
		return nil, false
	}
	return w.Submit(ctx), true
}

// Submit looks up the current input value.
func (w *Widget) Submit(ctx context.Context) <-chan lookup.State {
	return w.lookups.LookupAsync(ctx, w.input.Value())
}
