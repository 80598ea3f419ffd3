package widget

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kjstillabower/weather-lookup/internal/ambient"
	"github.com/kjstillabower/weather-lookup/internal/citycache"
	"github.com/kjstillabower/weather-lookup/internal/lookup"
)

type staticInput string

func (s staticInput) Value() string { return string(s) }

type fakeLooker struct {
	cities []string
}

func (f *fakeLooker) LookupAsync(ctx context.Context, city string) <-chan lookup.State {
	f.cities = append(f.cities, city)
	ch := make(chan lookup.State, 1)
	ch <- lookup.Loading(city)
	close(ch)
	return ch
}

type countingContainer struct{ n int }

func (c *countingContainer) Append(ambient.Particle) { c.n++ }

type listSuggestions struct{ items []string }

func (l *listSuggestions) Clear()          { l.items = nil }
func (l *listSuggestions) Add(city string) { l.items = append(l.items, city) }

func TestWidget_LoadRunsOnce(t *testing.T) {
	ctx := context.Background()
	store := citycache.NewMemoryStore()
	require.NoError(t, store.Set(ctx, citycache.Key, `["Paris","Tokyo"]`))
	suggestions := &listSuggestions{}
	container := &countingContainer{}

	w := New(Config{
		Input:     staticInput(""),
		Lookups:   &fakeLooker{},
		Cities:    citycache.New(store, suggestions, nil),
		Effects:   ambient.NewGenerator(rand.New(rand.NewSource(7))),
		Container: container,
	})
	w.Load(ctx)
	w.Load(ctx)

	assert.Equal(t, []string{"Paris", "Tokyo"}, suggestions.items)
	assert.Equal(t, ambient.DefaultCount, container.n)
}

func TestWidget_KeyPress(t *testing.T) {
	looker := &fakeLooker{}
	w := New(Config{Input: staticInput("paris"), Lookups: looker})

	_, ok := w.KeyPress(context.Background(), "a")
	assert.False(t, ok)
	assert.Empty(t, looker.cities)

	ch, ok := w.KeyPress(context.Background(), KeyEnter)
	require.True(t, ok)
	s := <-ch
	assert.Equal(t, "paris", s.City)
	assert.Equal(t, []string{"paris"}, looker.cities)
}

func TestWidget_SubmitPassesRawInput(t *testing.T) {
	looker := &fakeLooker{}
	w := New(Config{Input: staticInput("  Paris "), Lookups: looker})
	<-w.Submit(context.Background())
	assert.Equal(t, []string{"  Paris "}, looker.cities)
}

func TestWidget_LoadWithoutOptionalParts(t *testing.T) {
	w := New(Config{Input: staticInput(""), Lookups: &fakeLooker{}})
	assert.NotPanics(t, func() { w.Load(context.Background()) })
}
