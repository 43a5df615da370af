// Package reload holds the shared "data changed" counter that uploads write
// and dashboard views observe.
package reload

import (
	"sync"
	"sync/atomic"
)

// Signal is a monotonic counter with change notification.
// The zero value is ready to use.
type Signal struct {
	value atomic.Uint64

	mu      sync.Mutex
	changed chan struct{}
}

// Value returns the current counter.
func (s *Signal) Value() uint64 {
	return s.value.Load()
}

// Bump increments the counter and wakes every waiter of Changed.
func (s *Signal) Bump() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.value.Add(1)
	if s.changed != nil {
		close(s.changed)
		s.changed = nil
	}
	return n
}

// Changed returns a channel closed on the next Bump. Callers must call
// Changed again after each wake-up to keep observing.
func (s *Signal) Changed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.changed == nil {
		s.changed = make(chan struct{})
	}
	return s.changed
}
