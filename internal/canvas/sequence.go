package canvas

import (
	"strconv"
	"strings"
	"sync"
)

const nodeIDPrefix = "node_"

// Sequence issues canvas node ids for one session.
type Sequence struct {
	mu sync.Mutex
	n  int
}

// Next returns a fresh node id.
func (s *Sequence) Next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return nodeIDPrefix + strconv.Itoa(s.n)
}

// Value returns the last issued counter.
func (s *Sequence) Value() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.n
}

// Reset starts the sequence over.
func (s *Sequence) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = 0
}

// Restore sets the counter to at least n and past every id in existing.
func (s *Sequence) Restore(n int, existing ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n = n
	for _, id := range existing {
		v, err := strconv.Atoi(strings.TrimPrefix(id, nodeIDPrefix))
		if err == nil && strings.HasPrefix(id, nodeIDPrefix) && v > s.n {
			s.n = v
		}
	}
}
