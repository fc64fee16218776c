package store

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// IDGenerator hands out run ids.
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator issues UUIDv7 run ids, which sort by creation time.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7. It panics only if the system
// random source fails.
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator replays a preset list of run ids. Safe for concurrent use.
type FixedGenerator struct {
	mu   sync.Mutex
	ids  []string
	next int
}

// NewFixedGenerator returns a generator yielding ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next preset id and panics once they run out.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.next == len(g.ids) {
		panic(fmt.Sprintf("store: FixedGenerator used %d times, only %d ids", g.next+1, len(g.ids)))
	}
	id := g.ids[g.next]
	g.next++
	return id
}
