package audit

import (
	"context"
	"sync"

	"github.com/veridocs/veridocs/internal/model"
)

// MemorySink is an in-process Sink for tests and ephemeral tooling. It
// preserves insertion order and can be armed to fail, which exercises the
// fail-closed paths of the logger and orchestrator.
type MemorySink struct {
	mu     sync.Mutex
	events []model.AuditEvent

	// FailErr, when non-nil, is returned from every Insert.
	FailErr error
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Insert appends the event, or returns FailErr when armed.
func (s *MemorySink) Insert(_ context.Context, ev model.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailErr != nil {
		return s.FailErr
	}
	s.events = append(s.events, ev)
	return nil
}

// EventsByQueryID returns events for a query_id in insertion order.
func (s *MemorySink) EventsByQueryID(_ context.Context, queryID string) ([]model.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AuditEvent
	for _, ev := range s.events {
		if ev.QueryID() == queryID {
			out = append(out, ev)
		}
	}
	return out, nil
}

// Events returns a copy of all recorded events in insertion order.
func (s *MemorySink) Events() []model.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Actions returns the recorded action sequence, for ordering assertions.
func (s *MemorySink) Actions() []model.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Action, len(s.events))
	for i, ev := range s.events {
		out[i] = ev.Action
	}
	return out
}
