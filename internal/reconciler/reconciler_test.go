package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
	"chat-client/internal/store"
)

type fakeTombstones struct {
	removed map[string]bool
	cleared map[string]time.Time
}

func newFakeTombstones() *fakeTombstones {
	return &fakeTombstones{removed: make(map[string]bool), cleared: make(map[string]time.Time)}
}

func (f *fakeTombstones) MarkRemoved(_ context.Context, conversationID, messageID string) error {
	f.removed[conversationID+"/"+messageID] = true
	return nil
}

func (f *fakeTombstones) SetClearedAt(_ context.Context, conversationID string, at time.Time) error {
	if at.After(f.cleared[conversationID]) {
		f.cleared[conversationID] = at
	}
	return nil
}

func newTestReconciler() (*Reconciler, *store.MessageStore, *fakeTombstones) {
	s := store.NewMessageStore()
	tombs := newFakeTombstones()
	return New(s, tombs, "conv-1", "A"), s, tombs
}

func TestDeliveryStateIsMonotonicAcrossInterleavings(t *testing.T) {
	interleavings := [][]func(r *Reconciler){
		{func(r *Reconciler) { r.OnDelivered("m-1") }, func(r *Reconciler) { r.OnRead("m-1", "B") }},
		{func(r *Reconciler) { r.OnRead("m-1", "B") }, func(r *Reconciler) { r.OnDelivered("m-1") }},
		{func(r *Reconciler) { r.OnRead("m-1", "B") }, func(r *Reconciler) { r.OnDelivered("m-1") }, func(r *Reconciler) { r.OnDelivered("m-1") }},
	}

	for _, steps := range interleavings {
		r, s, _ := newTestReconciler()
		s.Append(models.Message{ID: "m-1", SenderID: "A", DeliveryState: models.DeliverySent})
		for _, step := range steps {
			step(r)
		}
		msg, ok := s.Get("m-1")
		require.True(t, ok)
		assert.Equal(t, models.DeliveryRead, msg.DeliveryState)
	}
}

func TestReactionEventIsIdempotent(t *testing.T) {
	r, s, _ := newTestReconciler()
	s.Append(models.Message{ID: "m-1", SenderID: "A"})

	r.OnReactionChanged("m-1", "👍", "u1", true)
	r.OnReactionChanged("m-1", "👍", "u1", true)

	msg, _ := s.Get("m-1")
	require.Len(t, msg.Reactions, 1)
	assert.Equal(t, models.Reaction{Emoji: "👍", UserID: "u1"}, msg.Reactions[0])
}

func TestSendConfirmDeliverReadScenario(t *testing.T) {
	r, s, _ := newTestReconciler()

	// Optimistic record, then server confirmation swaps it in place.
	s.Append(models.Message{ID: "temp-1", SenderID: "A", Body: "Hello", DeliveryState: models.DeliverySending})
	s.Replace("temp-1", models.Message{ID: "m-100", SenderID: "A", Body: "Hello", DeliveryState: models.DeliverySent})
	r.NoteConfirmed("m-100")

	r.OnDelivered("m-100")
	msg, _ := s.Get("m-100")
	require.Equal(t, models.DeliveryDelivered, msg.DeliveryState)

	r.OnRead("m-100", "B")
	msg, _ = s.Get("m-100")
	assert.Equal(t, models.DeliveryRead, msg.DeliveryState)
	assert.Equal(t, []string{"B"}, msg.ReadBy)
	assert.Equal(t, "Hello", msg.Body)
}

func TestEarlyEventsAreBufferedUntilMessageAppears(t *testing.T) {
	r, s, _ := newTestReconciler()

	// Pushes arrive before the initial fetch has a record for them.
	r.OnDelivered("m-7")
	r.OnRead("m-7", "B")
	require.Equal(t, 2, r.PendingEvents())

	r.OnCreated(models.Message{ID: "m-7", SenderID: "A", Body: "hey"})

	require.Equal(t, 0, r.PendingEvents())
	msg, ok := s.Get("m-7")
	require.True(t, ok)
	assert.Equal(t, models.DeliveryRead, msg.DeliveryState)
	assert.True(t, msg.ReadByUser("B"))
}

func TestBufferedEventsFlushOnConfirmation(t *testing.T) {
	r, s, _ := newTestReconciler()

	// The delivered push for the server id raced the confirmation response.
	r.OnDelivered("m-50")

	s.Append(models.Message{ID: "temp-9", SenderID: "A", DeliveryState: models.DeliverySending})
	s.Replace("temp-9", models.Message{ID: "m-50", SenderID: "A", DeliveryState: models.DeliverySent})
	r.NoteConfirmed("m-50")

	msg, _ := s.Get("m-50")
	assert.Equal(t, models.DeliveryDelivered, msg.DeliveryState)
}

func TestRemoteDeleteForEveryoneScrubsBody(t *testing.T) {
	r, s, _ := newTestReconciler()
	s.Append(models.Message{ID: "m-1", SenderID: "B", Body: "offer details"})

	r.OnRemoteDeleteForEveryone("m-1")
	r.OnRemoteDeleteForEveryone("m-1")

	msg, _ := s.Get("m-1")
	assert.True(t, msg.DeletedForEveryone)
	assert.Equal(t, models.TombstonePlaceholder, msg.Body)
}

func TestRemoteDeleteForUserIsPrivate(t *testing.T) {
	r, s, tombs := newTestReconciler()
	s.Append(models.Message{ID: "m-5", SenderID: "B", Body: "hi"})

	// Instruction for the counterpart must not touch this client's ledger.
	r.OnRemoteDeleteForUser("m-5", "B")
	assert.Empty(t, tombs.removed)

	r.OnRemoteDeleteForUser("m-5", "A")
	assert.True(t, tombs.removed["conv-1/m-5"])

	// The shared record itself is untouched.
	msg, ok := s.Get("m-5")
	require.True(t, ok)
	assert.False(t, msg.DeletedForEveryone)
	assert.Equal(t, "hi", msg.Body)
}

func TestHandleEventIgnoresForeignConversationsAndMalformedEvents(t *testing.T) {
	r, s, _ := newTestReconciler()
	s.Append(models.Message{ID: "m-1", SenderID: "A", DeliveryState: models.DeliverySent})

	r.HandleEvent(models.ChatEvent{Type: models.EventMessageDelivered, ConversationID: "conv-2", MessageID: "m-1"})
	msg, _ := s.Get("m-1")
	assert.Equal(t, models.DeliverySent, msg.DeliveryState)

	// Malformed events are dropped without panicking the dispatch loop.
	r.HandleEvent(models.ChatEvent{Type: models.EventMessageCreated})
	r.HandleEvent(models.ChatEvent{Type: "somethingElse"})
	r.HandleEvent(models.ChatEvent{Type: models.EventMessageRead, MessageID: "m-1"})
	assert.Equal(t, 1, s.Len())
}

func TestChatClearedEventForSelfUpdatesLedger(t *testing.T) {
	r, _, tombs := newTestReconciler()
	at := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)

	r.HandleEvent(models.ChatEvent{Type: models.EventChatClearedForUser, ConversationID: "conv-1", UserID: "B", ClearedAt: &at})
	assert.True(t, tombs.cleared["conv-1"].IsZero())

	r.HandleEvent(models.ChatEvent{Type: models.EventChatClearedForUser, ConversationID: "conv-1", UserID: "A", ClearedAt: &at})
	assert.Equal(t, at, tombs.cleared["conv-1"])
}

func TestUpdatedEventWithFullRecordKeepsLocalProgress(t *testing.T) {
	r, s, _ := newTestReconciler()
	s.Append(models.Message{ID: "m-1", SenderID: "A", Body: "old", DeliveryState: models.DeliveryRead, ReadBy: []string{"B"}})

	edited := time.Now()
	r.HandleEvent(models.ChatEvent{
		Type:           models.EventMessageUpdated,
		ConversationID: "conv-1",
		Message: &models.Message{
			ID: "m-1", SenderID: "A", Body: "new", Edited: true, EditedAt: &edited,
			DeliveryState: models.DeliveryDelivered,
		},
	})

	msg, _ := s.Get("m-1")
	assert.Equal(t, "new", msg.Body)
	assert.True(t, msg.Edited)
	assert.Equal(t, models.DeliveryRead, msg.DeliveryState, "stale server state must not regress local read")
	assert.True(t, msg.ReadByUser("B"))
}
