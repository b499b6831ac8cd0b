package audit

import (
	"context"
	"sync"
)

// MemorySink keeps the most recent events in a fixed-size ring.
type MemorySink struct {
	mu     sync.RWMutex
	events []Event
	next   int
	full   bool
}

// NewMemorySink creates a sink holding at most capacity events.
func NewMemorySink(capacity int) *MemorySink {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemorySink{events: make([]Event, capacity)}
}

func (s *MemorySink) Emit(_ context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[s.next] = event
	s.next = (s.next + 1) % len(s.events)
	if s.next == 0 {
		s.full = true
	}
	return nil
}

// Recent returns retained events, oldest first.
func (s *MemorySink) Recent() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.full {
		return append([]Event(nil), s.events[:s.next]...)
	}
	out := make([]Event, 0, len(s.events))
	out = append(out, s.events[s.next:]...)
	return append(out, s.events[:s.next]...)
}
