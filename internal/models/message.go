package models

import (
	"strings"
	"time"
)

// DeliveryState is the lifecycle stage of a message as observed by its sender.
type DeliveryState string

const (
	DeliverySending   DeliveryState = "sending"
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
	DeliveryRead      DeliveryState = "read"
)

var deliveryRank = map[DeliveryState]int{
	DeliverySending:   0,
	DeliverySent:      1,
	DeliveryDelivered: 2,
	DeliveryRead:      3,
}

// Rank returns the position of the state in the forward transition order.
// Unknown states rank below sending so a malformed event can never escalate.
func (s DeliveryState) Rank() int {
	if rank, ok := deliveryRank[s]; ok {
		return rank
	}
	return -1
}

// AtLeast reports whether s is as far along as other.
func (s DeliveryState) AtLeast(other DeliveryState) bool {
	return s.Rank() >= other.Rank()
}

// Escalate returns the later of the two states. Status transitions are
// strictly forward; a stale event must never move a message backward.
func Escalate(current, incoming DeliveryState) DeliveryState {
	if incoming.Rank() > current.Rank() {
		return incoming
	}
	return current
}

// TempIDPrefix marks ids synthesized locally before server confirmation.
// Such ids must never be sent to the server as durable identifiers.
const TempIDPrefix = "temp-"

// IsTempID reports whether id is a locally synthesized temporary id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// TombstonePlaceholder replaces the body of a message deleted for everyone.
const TombstonePlaceholder = "This message was deleted"

// Reaction is a single emoji reaction, unique per (emoji, user).
type Reaction struct {
	Emoji  string `json:"emoji"`
	UserID string `json:"userId"`
}

// Message is one chat entry in a conversation.
type Message struct {
	ID                 string        `json:"id"`
	ConversationID     string        `json:"conversationId"`
	SenderID           string        `json:"senderId"`
	Body               string        `json:"body"`
	ImageURL           string        `json:"imageUrl,omitempty"`
	ReplyToID          string        `json:"replyToId,omitempty"`
	CreatedAt          time.Time     `json:"createdAt"`
	DeliveryState      DeliveryState `json:"deliveryState"`
	ReadBy             []string      `json:"readBy,omitempty"`
	Edited             bool          `json:"edited"`
	EditedAt           *time.Time    `json:"editedAt,omitempty"`
	Reactions          []Reaction    `json:"reactions,omitempty"`
	Pinned             bool          `json:"pinned"`
	PinExpiresAt       *time.Time    `json:"pinExpiresAt,omitempty"`
	StarredBy          []string      `json:"starredBy,omitempty"`
	DeletedForEveryone bool          `json:"deletedForEveryone"`
}

// ReadByUser reports whether userID is in the read set.
func (m *Message) ReadByUser(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// MarkReadBy adds userID to the read set. The set grows only.
func (m *Message) MarkReadBy(userID string) {
	if !m.ReadByUser(userID) {
		m.ReadBy = append(m.ReadBy, userID)
	}
}

// HasReaction reports whether the (emoji, user) pair is present.
func (m *Message) HasReaction(emoji, userID string) bool {
	for _, r := range m.Reactions {
		if r.Emoji == emoji && r.UserID == userID {
			return true
		}
	}
	return false
}

// AddReaction adds the (emoji, user) pair; duplicate add is a no-op.
func (m *Message) AddReaction(emoji, userID string) {
	if !m.HasReaction(emoji, userID) {
		m.Reactions = append(m.Reactions, Reaction{Emoji: emoji, UserID: userID})
	}
}

// RemoveReaction removes the (emoji, user) pair if present.
func (m *Message) RemoveReaction(emoji, userID string) {
	for i, r := range m.Reactions {
		if r.Emoji == emoji && r.UserID == userID {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			return
		}
	}
}

// StarredByUser reports whether userID starred the message.
func (m *Message) StarredByUser(userID string) bool {
	for _, id := range m.StarredBy {
		if id == userID {
			return true
		}
	}
	return false
}

// SetStarred adds or removes userID from the star set, idempotently.
func (m *Message) SetStarred(userID string, want bool) {
	if want {
		if !m.StarredByUser(userID) {
			m.StarredBy = append(m.StarredBy, userID)
		}
		return
	}
	for i, id := range m.StarredBy {
		if id == userID {
			m.StarredBy = append(m.StarredBy[:i], m.StarredBy[i+1:]...)
			return
		}
	}
}

// Scrub clears the body and attachment after a delete-for-everyone. The
// original content must not be retained once deletion is confirmed.
func (m *Message) Scrub() {
	m.DeletedForEveryone = true
	m.Body = TombstonePlaceholder
	m.ImageURL = ""
	m.ReplyToID = ""
	m.Reactions = nil
	m.Pinned = false
	m.PinExpiresAt = nil
}
