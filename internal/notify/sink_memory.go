package notify

import (
	"context"
	"sync"
)

// MemorySink records delivered notifications. Used by tests and development.
type MemorySink struct {
	mu        sync.Mutex
	delivered []Notification
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Deliver(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, n)
	return nil
}

// Delivered returns a copy of everything delivered so far.
func (s *MemorySink) Delivered() []Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Notification{}, s.delivered...)
}
