package testutil

import (
	"fmt"
	"sync"
)

// SequenceIDs generates predictable record identifiers: prefix-1, prefix-2, ...
//
// The fake banking app uses it for new records so that request paths and
// golden traces are identical across runs.
//
// Thread-safety: Next is safe for concurrent use.
type SequenceIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int
}

// NewSequenceIDs creates a generator. An empty prefix defaults to "id".
func NewSequenceIDs(prefix string) *SequenceIDs {
	if prefix == "" {
		prefix = "id"
	}
	return &SequenceIDs{prefix: prefix}
}

// Next returns the next identifier.
func (g *SequenceIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return fmt.Sprintf("%s-%d", g.prefix, g.seq)
}
