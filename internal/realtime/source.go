package realtime

import (
	"context"

	"chat-client/internal/models"
)

// EventSource is the subscribe side of the real-time channel. The session
// owns exactly one subscription per open conversation; canceling the context
// ends it. Implementations deliver at-least-once with no ordering guarantee.
type EventSource interface {
	Events(ctx context.Context) <-chan models.ChatEvent
	Close() error
}

// PresencePublisher carries the client's outbound signaling: typing,
// appointment activity, online checks. Not part of the message protocol
// proper; losses are acceptable.
type PresencePublisher interface {
	Publish(ctx context.Context, ev models.ChatEvent) error
}
