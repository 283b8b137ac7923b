package store

import (
	"sync"
	"time"

	"chat-client/internal/models"
)

// MessageStore holds the ordered message list for one open conversation.
// Ordering is insertion order: a later-submitted message that confirms first
// still renders after an earlier one still pending. All operations are
// idempotent with respect to message id.
type MessageStore struct {
	mu       sync.RWMutex
	messages []models.Message
	index    map[string]int
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{index: make(map[string]int)}
}

// Append inserts a message at the end. Appending an id already present is a
// no-op, so replaying a create push cannot duplicate a message.
func (s *MessageStore) Append(msg models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[msg.ID]; ok {
		return false
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	return true
}

// Replace swaps a temporary record for its server-confirmed counterpart,
// keeping the temporary record's position. Any higher-priority local status
// survives the swap: a copy already marked read by a racing event is not
// regressed by the confirmation payload. When the confirmed id is already
// present, because the create push for the sender's own message raced ahead
// of the confirmation, the pushed copy wins its position and the temp record
// is folded into it instead of duplicated next to it.
func (s *MessageStore) Replace(tempID string, confirmed models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.index[tempID]
	if !ok {
		// The temp record is already gone (rolled back or replaced by a
		// replayed event); fall back to a plain idempotent insert.
		if _, exists := s.index[confirmed.ID]; exists {
			return false
		}
		s.index[confirmed.ID] = len(s.messages)
		s.messages = append(s.messages, confirmed)
		return true
	}

	local := s.messages[pos]

	if existingPos, exists := s.index[confirmed.ID]; exists && confirmed.ID != tempID {
		target := &s.messages[existingPos]
		target.DeliveryState = models.Escalate(target.DeliveryState,
			models.Escalate(local.DeliveryState, confirmed.DeliveryState))
		for _, reader := range local.ReadBy {
			target.MarkReadBy(reader)
		}
		for _, reader := range confirmed.ReadBy {
			target.MarkReadBy(reader)
		}
		s.removeAt(pos)
		return true
	}

	confirmed.DeliveryState = models.Escalate(confirmed.DeliveryState, local.DeliveryState)
	for _, reader := range local.ReadBy {
		confirmed.MarkReadBy(reader)
	}

	delete(s.index, tempID)
	s.index[confirmed.ID] = pos
	s.messages[pos] = confirmed
	return true
}

// Patch applies a mutation to the message with the given id without touching
// unrelated records. Returns false when the id is unknown.
func (s *MessageStore) Patch(id string, apply func(*models.Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	apply(&s.messages[pos])
	return true
}

// SetDeliveryState escalates the delivery state of a message. The transition
// graph is strictly forward; a stale event never moves a message backward.
func (s *MessageStore) SetDeliveryState(id string, state models.DeliveryState) bool {
	return s.Patch(id, func(m *models.Message) {
		m.DeliveryState = models.Escalate(m.DeliveryState, state)
	})
}

// RemoveLocalOnly drops a record from the list without signaling the server.
// Used for optimistic rollback and together with the tombstone ledger.
func (s *MessageStore) RemoveLocalOnly(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.index[id]
	if !ok {
		return false
	}
	s.removeAt(pos)
	return true
}

// removeAt drops the record at pos and reindexes the tail. Caller holds mu.
func (s *MessageStore) removeAt(pos int) {
	delete(s.index, s.messages[pos].ID)
	s.messages = append(s.messages[:pos], s.messages[pos+1:]...)
	for i := pos; i < len(s.messages); i++ {
		s.index[s.messages[i].ID] = i
	}
}

// Get returns a copy of the message with the given id.
func (s *MessageStore) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.index[id]
	if !ok {
		return models.Message{}, false
	}
	return clone(s.messages[pos]), true
}

// Contains reports whether the id is present.
func (s *MessageStore) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[id]
	return ok
}

// Len returns the number of records, including ones hidden from any viewer.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Messages returns a copy of the full ordered list.
func (s *MessageStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		out = append(out, clone(m))
	}
	return out
}

// VisibleTo projects the messages a viewer actually sees. A message is hidden
// when the viewer removed it for themselves or it predates the effective
// clear cutoff; a message deleted for everyone renders as tombstone text.
// The projection never mutates the store.
func (s *MessageStore) VisibleTo(viewerID string, hidden func(messageID string) bool, clearedAt time.Time) []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if hidden != nil && hidden(m.ID) {
			continue
		}
		if !clearedAt.IsZero() && !m.CreatedAt.After(clearedAt) {
			continue
		}
		out = append(out, clone(m))
	}
	return out
}

func clone(m models.Message) models.Message {
	out := m
	out.ReadBy = append([]string(nil), m.ReadBy...)
	out.StarredBy = append([]string(nil), m.StarredBy...)
	out.Reactions = append([]models.Reaction(nil), m.Reactions...)
	return out
}
