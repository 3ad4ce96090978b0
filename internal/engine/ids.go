package engine

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// CallIDGenerator produces journal ids for calls.
// Implemented by UUIDv7Generator (production) and FixedGenerator (tests).
type CallIDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 call ids.
//
// Call ids are bookkeeping for correlating journal rows with logs. They
// are excluded from replay comparison.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new hyphenated UUIDv7.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator returns predetermined ids in order, for tests.
type FixedGenerator struct {
	mu  sync.Mutex
	ids []string
	idx int
}

// NewFixedGenerator creates a generator that returns ids in order.
func NewFixedGenerator(ids ...string) *FixedGenerator {
	return &FixedGenerator{ids: ids}
}

// Generate returns the next id. Panics when exhausted, to catch a test
// that applies more calls than it planned for.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.idx >= len(g.ids) {
		panic("FixedGenerator: all ids exhausted")
	}
	id := g.ids[g.idx]
	g.idx++
	return id
}

// SeqGenerator derives ids from a counter: "call-1", "call-2", ...
// Replay uses it so runs never touch the system clock.
type SeqGenerator struct {
	n atomic.Int64
}

// Generate implements CallIDGenerator.
func (g *SeqGenerator) Generate() string {
	return "call-" + strconv.FormatInt(g.n.Add(1), 10)
}
