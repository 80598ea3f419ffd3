// Package console implements the widget's display adapters for a terminal.
package console

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kjstillabower/weather-lookup/internal/ambient"
	"github.com/kjstillabower/weather-lookup/internal/lookup"
)

const loadingText = "Loading... ⏳"

// ResultView writes lookup states to a terminal.
type ResultView struct {
	mu  sync.Mutex
	out io.Writer
}

func NewResultView(out io.Writer) *ResultView {
	return &ResultView{out: out}
}

func (v *ResultView) Render(s lookup.State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, line := range Lines(s) {
		fmt.Fprintln(v.out, line)
	}
}

// Lines is the text shown for a state.
func Lines(s lookup.State) []string {
	switch s.Phase {
	case lookup.PhaseLoading:
		return []string{loadingText}
	case lookup.PhaseSuccess:
		return s.Result.Lines()
	case lookup.PhaseFailed:
		if s.Kind == lookup.KindInput {
			return []string{s.Message}
		}
		return []string{"Error: " + s.Message}
	default:
		return nil
	}
}

// Suggestions keeps the autocomplete entries in memory.
type Suggestions struct {
	mu    sync.Mutex
	items []string
}

func (s *Suggestions) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

func (s *Suggestions) Add(city string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, city)
}

// Items returns the entries in insertion order.
func (s *Suggestions) Items() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.items...)
}

// Complete returns entries starting with prefix, case-insensitively.
func (s *Suggestions) Complete(prefix string) []string {
	p := strings.ToLower(prefix)
	var out []string
	for _, item := range s.Items() {
		if strings.HasPrefix(strings.ToLower(item), p) {
			out = append(out, item)
		}
	}
	return out
}

// Sky collects ambient particles and draws them as a single row.
type Sky struct {
	mu        sync.Mutex
	particles []ambient.Particle
}

func (k *Sky) Append(p ambient.Particle) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.particles = append(k.particles, p)
}

func (k *Sky) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.particles)
}

// Row draws the particles across width columns, earliest-falling first
// taking the column when two collide.
func (k *Sky) Row(width int) string {
	if width <= 0 {
		return ""
	}
	k.mu.Lock()
	ps := append([]ambient.Particle(nil), k.particles...)
	k.mu.Unlock()

	sort.SliceStable(ps, func(i, j int) bool { return ps[i].Delay < ps[j].Delay })
	row := []rune(strings.Repeat(" ", width))
	for _, p := range ps {
		col := int(p.LeftVW / 100 * float64(width))
		if col >= width {
			col = width - 1
		}
		if row[col] == ' ' {
			row[col] = glyphFor(p)
		}
	}
	return string(row)
}

// glyphFor picks a glyph by fall speed: fast drops, slow flakes.
func glyphFor(p ambient.Particle) rune {
	switch {
	case p.Duration.Seconds() < 4.5:
		return '\''
	case p.Duration.Seconds() < 6.5:
		return '.'
	default:
		return '*'
	}
}

// Input holds the current contents of the city field.
type Input struct {
	mu    sync.Mutex
	value string
}

func (in *Input) Set(v string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.value = v
}

func (in *Input) Value() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.value
}
