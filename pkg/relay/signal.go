package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Signal is the notification value long-pollers wait on.
type Signal struct {
	mu      sync.Mutex
	value   json.RawMessage
	changed chan struct{}
}

func NewSignal() *Signal {
	return &Signal{
		value:   json.RawMessage("false"),
		changed: make(chan struct{}),
	}
}

func (s *Signal) Current() json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(json.RawMessage(nil), s.value...)
}

// Set replaces the value and wakes every waiter.
func (s *Signal) Set(v json.RawMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = append(json.RawMessage(nil), v...)
	close(s.changed)
	s.changed = make(chan struct{})
}

// Wait blocks until the value changes, timeout elapses or ctx ends, and
// returns the value at that point.
func (s *Signal) Wait(ctx context.Context, timeout time.Duration) json.RawMessage {
	s.mu.Lock()
	changed := s.changed
	s.mu.Unlock()

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-changed:
	case <-t.C:
	case <-ctx.Done():
	}
	return s.Current()
}
