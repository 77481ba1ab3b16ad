package identity

import (
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

const goldenRatio = 0.618033988749895

// ColorGenerator hands out well separated colours. Successive hues step by
// the golden ratio so neighbours never land close together.
type ColorGenerator struct {
	mu      sync.Mutex
	counter int
	byID    map[string]string
}

func NewColorGenerator() *ColorGenerator {
	return &ColorGenerator{byID: make(map[string]string)}
}

// Next returns the next colour in the sequence as #rrggbb.
func (g *ColorGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nextLocked()
}

// For returns a stable colour for id, allocating one on first use.
func (g *ColorGenerator) For(id string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if c, ok := g.byID[id]; ok {
		return c
	}
	c := g.nextLocked()
	g.byID[id] = c
	return c
}

// Forget releases id's colour. The sequence position is not reused.
func (g *ColorGenerator) Forget(id string) {
	g.mu.Lock()
	delete(g.byID, id)
	g.mu.Unlock()
}

func (g *ColorGenerator) nextLocked() string {
	hue := float64(g.counter) * goldenRatio
	hue -= float64(int(hue))
	g.counter++

	return colorful.Hsl(hue*360, 0.85, 0.55).Hex()
}
