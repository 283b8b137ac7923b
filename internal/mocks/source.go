package mocks

import (
	"context"

	"chat-client/internal/models"
)

// StubSource is a scriptable in-memory event source for session tests.
type StubSource struct {
	ch     chan models.ChatEvent
	closed chan struct{}
}

func NewStubSource() *StubSource {
	return &StubSource{ch: make(chan models.ChatEvent, 16), closed: make(chan struct{})}
}

// Push feeds one event to the subscriber.
func (s *StubSource) Push(ev models.ChatEvent) {
	s.ch <- ev
}

func (s *StubSource) Events(ctx context.Context) <-chan models.ChatEvent {
	out := make(chan models.ChatEvent)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case ev := <-s.ch:
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (s *StubSource) Close() error {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
	return nil
}
