package reconciler

import (
	"context"
	"log"
	"sync"
	"time"

	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/store"
)

// maxBufferedPerMessage bounds how many events are held for a message id that
// has not appeared yet. Overflow drops the oldest; a later full refetch
// restores the authoritative state.
const maxBufferedPerMessage = 32

// Tombstones is the slice of the ledger the reconciler writes to when the
// backend mirrors per-user hides and clears across devices.
type Tombstones interface {
	MarkRemoved(ctx context.Context, conversationID, messageID string) error
	SetClearedAt(ctx context.Context, conversationID string, at time.Time) error
}

// Reconciler folds asynchronous real-time events into the message store. The
// channel is at-least-once and unordered, so every handler is idempotent and
// delivery-state changes are strictly forward. Handlers never panic out: a
// malformed event is dropped rather than crashing the conversation view.
type Reconciler struct {
	store          *store.MessageStore
	tombstones     Tombstones
	conversationID string
	selfID         string

	mu      sync.Mutex
	pending map[string][]models.ChatEvent
	held    int
}

// New builds a Reconciler for one open conversation.
func New(s *store.MessageStore, tombstones Tombstones, conversationID, selfID string) *Reconciler {
	return &Reconciler{
		store:          s,
		tombstones:     tombstones,
		conversationID: conversationID,
		selfID:         selfID,
		pending:        make(map[string][]models.ChatEvent),
	}
}

// HandleEvent routes one push event. Safe to call with anything the channel
// produces, including events for other conversations or unknown messages.
func (r *Reconciler) HandleEvent(ev models.ChatEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			observability.IncDroppedEvent()
			log.Printf("reconciler: dropped event %q: %v", ev.Type, rec)
		}
	}()

	if ev.ConversationID != "" && ev.ConversationID != r.conversationID {
		return
	}

	switch ev.Type {
	case models.EventMessageCreated:
		if ev.Message == nil {
			observability.IncDroppedEvent()
			return
		}
		r.OnCreated(*ev.Message)
	case models.EventMessageDelivered:
		r.OnDelivered(ev.MessageID)
	case models.EventMessageRead:
		r.OnRead(ev.MessageID, ev.UserID)
	case models.EventMessageUpdated:
		r.onUpdated(ev)
	case models.EventChatClearedForUser:
		if ev.UserID == r.selfID && ev.ClearedAt != nil {
			r.OnChatCleared(*ev.ClearedAt)
		}
	case models.EventMessageRemovedForUser:
		r.OnRemoteDeleteForUser(ev.MessageID, ev.UserID)
	default:
		observability.IncDroppedEvent()
	}
}

// OnCreated appends a freshly pushed message and replays any events that
// arrived before it. Duplicate pushes are no-ops.
func (r *Reconciler) OnCreated(msg models.Message) {
	if msg.ID == "" {
		observability.IncDroppedEvent()
		return
	}
	if msg.DeliveryState.Rank() < models.DeliverySent.Rank() {
		msg.DeliveryState = models.DeliverySent
	}
	r.store.Append(msg)
	observability.IncReconciledEvent(models.EventMessageCreated)
	r.flush(msg.ID)
}

// NoteConfirmed replays events buffered against a server id that arrived
// before the optimistic send pipeline finished the temp-to-real swap.
func (r *Reconciler) NoteConfirmed(messageID string) {
	r.flush(messageID)
}

// OnDelivered escalates a message to delivered. A message already read stays
// read.
func (r *Reconciler) OnDelivered(messageID string) {
	if messageID == "" {
		observability.IncDroppedEvent()
		return
	}
	if !r.store.SetDeliveryState(messageID, models.DeliveryDelivered) {
		r.buffer(models.ChatEvent{Type: models.EventMessageDelivered, MessageID: messageID})
		return
	}
	observability.IncReconciledEvent(models.EventMessageDelivered)
}

// OnRead records a read receipt. The read set grows only; read is terminal
// for delivery state, so arrival order against delivered events is
// irrelevant.
func (r *Reconciler) OnRead(messageID, readerID string) {
	if messageID == "" || readerID == "" {
		observability.IncDroppedEvent()
		return
	}
	ok := r.store.Patch(messageID, func(m *models.Message) {
		m.MarkReadBy(readerID)
		if readerID != m.SenderID {
			m.DeliveryState = models.Escalate(m.DeliveryState, models.DeliveryRead)
		}
	})
	if !ok {
		r.buffer(models.ChatEvent{Type: models.EventMessageRead, MessageID: messageID, UserID: readerID})
		return
	}
	observability.IncReconciledEvent(models.EventMessageRead)
}

// OnEdited replaces the body of a message. Delivery state is untouched and a
// scrubbed message stays scrubbed.
func (r *Reconciler) OnEdited(messageID, body string, editedAt *time.Time) {
	if messageID == "" {
		observability.IncDroppedEvent()
		return
	}
	ok := r.store.Patch(messageID, func(m *models.Message) {
		if m.DeletedForEveryone {
			return
		}
		m.Body = body
		m.Edited = true
		m.EditedAt = editedAt
	})
	if !ok {
		r.buffer(models.ChatEvent{Type: models.EventMessageUpdated, MessageID: messageID, Body: body, EditedAt: editedAt})
		return
	}
	observability.IncReconciledEvent(models.EventMessageUpdated)
}

// OnReactionChanged adds or removes a (emoji, user) pair. Duplicate adds and
// removes of absent pairs are no-ops.
func (r *Reconciler) OnReactionChanged(messageID, emoji, userID string, added bool) {
	if messageID == "" || emoji == "" || userID == "" {
		observability.IncDroppedEvent()
		return
	}
	ok := r.store.Patch(messageID, func(m *models.Message) {
		if added {
			m.AddReaction(emoji, userID)
		} else {
			m.RemoveReaction(emoji, userID)
		}
	})
	if !ok {
		r.buffer(models.ChatEvent{Type: models.EventMessageUpdated, MessageID: messageID, Emoji: emoji, UserID: userID, Added: added})
		return
	}
	observability.IncReconciledEvent(models.EventMessageUpdated)
}

// OnRemoteDeleteForEveryone scrubs a message for all viewers.
func (r *Reconciler) OnRemoteDeleteForEveryone(messageID string) {
	if messageID == "" {
		observability.IncDroppedEvent()
		return
	}
	ok := r.store.Patch(messageID, func(m *models.Message) {
		m.Scrub()
	})
	if !ok {
		r.buffer(models.ChatEvent{Type: models.EventMessageUpdated, MessageID: messageID, Deleted: true})
		return
	}
	observability.IncReconciledEvent(models.EventMessageUpdated)
}

// OnRemoteDeleteForUser handles a cross-device mirror of a delete-for-me.
// Only instructions addressed to the current user are honored; another
// user's tombstones are private and never reach this client's view anyway.
func (r *Reconciler) OnRemoteDeleteForUser(messageID, userID string) {
	if messageID == "" || userID != r.selfID {
		return
	}
	if err := r.tombstones.MarkRemoved(context.Background(), r.conversationID, messageID); err != nil {
		log.Printf("reconciler: mark removed %s: %v", messageID, err)
		return
	}
	observability.IncReconciledEvent(models.EventMessageRemovedForUser)
}

// OnChatCleared merges a server-confirmed clear time. The ledger keeps the
// max of local and server cutoffs.
func (r *Reconciler) OnChatCleared(clearedAt time.Time) {
	if err := r.tombstones.SetClearedAt(context.Background(), r.conversationID, clearedAt); err != nil {
		log.Printf("reconciler: set cleared at: %v", err)
		return
	}
	observability.IncReconciledEvent(models.EventChatClearedForUser)
}

// onUpdated handles the composite update push: a full authoritative record,
// a deletion marker, an edit, or a reaction toggle.
func (r *Reconciler) onUpdated(ev models.ChatEvent) {
	switch {
	case ev.Message != nil:
		r.applyServerRecord(*ev.Message)
	case ev.Deleted:
		r.OnRemoteDeleteForEveryone(ev.MessageID)
	case ev.Emoji != "":
		r.OnReactionChanged(ev.MessageID, ev.Emoji, ev.UserID, ev.Added)
	case ev.MessageID != "":
		r.OnEdited(ev.MessageID, ev.Body, ev.EditedAt)
	default:
		observability.IncDroppedEvent()
	}
}

// applyServerRecord folds a full server record over the local copy, keeping
// whatever local status is further along.
func (r *Reconciler) applyServerRecord(msg models.Message) {
	ok := r.store.Patch(msg.ID, func(m *models.Message) {
		incoming := msg
		incoming.DeliveryState = models.Escalate(incoming.DeliveryState, m.DeliveryState)
		for _, reader := range m.ReadBy {
			incoming.MarkReadBy(reader)
		}
		if incoming.DeletedForEveryone {
			incoming.Scrub()
		}
		*m = incoming
	})
	if !ok {
		r.buffer(models.ChatEvent{Type: models.EventMessageUpdated, MessageID: msg.ID, Message: &msg})
		return
	}
	observability.IncReconciledEvent(models.EventMessageUpdated)
}

// buffer holds an event for a message the store has not seen yet, bounded
// per id with drop-oldest.
func (r *Reconciler) buffer(ev models.ChatEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	queue := r.pending[ev.MessageID]
	if len(queue) >= maxBufferedPerMessage {
		queue = queue[1:]
		r.held--
		observability.IncDroppedEvent()
	}
	r.pending[ev.MessageID] = append(queue, ev)
	r.held++
	observability.SetBufferedEvents(r.held)
}

// flush replays buffered events for a message that just appeared.
func (r *Reconciler) flush(messageID string) {
	r.mu.Lock()
	queue := r.pending[messageID]
	if queue == nil {
		r.mu.Unlock()
		return
	}
	delete(r.pending, messageID)
	r.held -= len(queue)
	observability.SetBufferedEvents(r.held)
	r.mu.Unlock()

	for _, ev := range queue {
		r.HandleEvent(ev)
	}
}

// PendingEvents reports how many events are buffered, for debug surfaces.
func (r *Reconciler) PendingEvents() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.held
}
