// Package ambient generates the decorative falling particles shown behind the
// widget. It has no interaction with the weather lookup.
package ambient

import (
	"math/rand"
	"time"
)

// DefaultCount is the number of particles generated per load.
const DefaultCount = 50

// Particle is one decorative element.
type Particle struct {
	// LeftVW is the horizontal position in viewport-width percent, [0, 100).
	LeftVW   float64
	Duration time.Duration
	Delay    time.Duration
}

// Container receives generated particles.
type Container interface {
	Append(Particle)
}

// Generator creates particles from its random source.
type Generator struct {
	Count int
	rng   *rand.Rand
}

// NewGenerator returns a Generator producing DefaultCount particles.
// A nil rng is seeded from the clock.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Generator{Count: DefaultCount, rng: rng}
}

// Generate appends Count particles to c. Durations fall in [3s, 8s) and
// delays in [0s, 5s).
func (g *Generator) Generate(c Container) {
	for i := 0; i < g.Count; i++ {
		c.Append(Particle{
			LeftVW:   g.rng.Float64() * 100,
			Duration: seconds(g.rng.Float64()*5 + 3),
			Delay:    seconds(g.rng.Float64() * 5),
		})
	}
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
