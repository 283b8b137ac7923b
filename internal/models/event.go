package models

import "time"

// Event types pushed over the real-time channel.
const (
	EventMessageCreated        = "messageCreated"
	EventMessageDelivered      = "messageDelivered"
	EventMessageRead           = "messageRead"
	EventMessageUpdated        = "messageUpdated"
	EventChatClearedForUser    = "chatClearedForUser"
	EventMessageRemovedForUser = "messageRemovedForUser"
)

// Event types published by the client (presence signaling, not part of the
// message protocol proper).
const (
	EventTyping                 = "typing"
	EventUserAppointmentsActive = "userAppointmentsActive"
	EventCheckUserOnline        = "checkUserOnline"
)

// ChatEvent is the wire envelope for real-time pushes. The channel is
// at-least-once and unordered, so every consumer of these must be idempotent.
type ChatEvent struct {
	Type           string     `json:"type"`
	ConversationID string     `json:"conversationId"`
	MessageID      string     `json:"messageId,omitempty"`
	Message        *Message   `json:"message,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	Body           string     `json:"body,omitempty"`
	EditedAt       *time.Time `json:"editedAt,omitempty"`
	Emoji          string     `json:"emoji,omitempty"`
	Added          bool       `json:"added,omitempty"`
	Deleted        bool       `json:"deleted,omitempty"`
	ClearedAt      *time.Time `json:"clearedAt,omitempty"`
}
