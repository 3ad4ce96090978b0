// Package testutil holds deterministic helpers shared by tests and the
// scenario harness.
package testutil

import (
	"fmt"
	"sync"
)

// SeqIDs generates call ids "<prefix>-1", "<prefix>-2", ...
//
// Unlike engine.UUIDv7Generator it never reads the system clock, so the
// same scenario produces byte-identical journals on every run. It can be
// reset for reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SeqIDs struct {
	mu     sync.Mutex
	prefix string
	n      int64
}

// NewSeqIDs creates a generator. An empty prefix becomes "test".
func NewSeqIDs(prefix string) *SeqIDs {
	if prefix == "" {
		prefix = "test"
	}
	return &SeqIDs{prefix: prefix}
}

// Generate returns the next id. Implements engine.CallIDGenerator.
func (g *SeqIDs) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}

// Current returns how many ids have been issued.
func (g *SeqIDs) Current() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.n
}

// Reset restarts numbering at 1.
func (g *SeqIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n = 0
}
