package testutil

import (
	"fmt"
	"sync"
)

// SequenceNames generates "<prefix>-1", "<prefix>-2", ... so that anonymous
// mutation names are predictable in tests.
//
// Thread-safety: safe for concurrent use.
type SequenceNames struct {
	mu     sync.Mutex
	prefix string
	n      int
}

// NewSequenceNames creates a generator. An empty prefix means "mutation".
func NewSequenceNames(prefix string) *SequenceNames {
	if prefix == "" {
		prefix = "mutation"
	}
	return &SequenceNames{prefix: prefix}
}

// Generate returns the next name.
func (g *SequenceNames) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
