package waiter

import (
	"sync"

	"politerm/internal/protocol"
)

// SeenSet records the blocks already routed during one run. It only grows.
type SeenSet struct {
	mu   sync.Mutex
	keys map[protocol.Key]struct{}
}

func NewSeenSet() *SeenSet {
	return &SeenSet{keys: make(map[protocol.Key]struct{})}
}

// Mark adds key and reports whether it was new.
func (s *SeenSet) Mark(key protocol.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	s.keys[key] = struct{}{}
	return true
}

func (s *SeenSet) Contains(key protocol.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}
