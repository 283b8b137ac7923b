package session

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chat-client/internal/api"
	"chat-client/internal/ledger"
	"chat-client/internal/mocks"
	"chat-client/internal/models"
	"chat-client/internal/pipeline"
)

func openTestLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	db, err := ledger.Open(filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	l, err := ledger.New(db, 0)
	require.NoError(t, err)
	return l
}

func openTestSession(t *testing.T, backend *mocks.BackendMock, source *mocks.StubSource, conv models.Conversation, history []models.Message) *Session {
	t.Helper()
	backend.On("Conversation", mock.Anything, conv.ID).Return(conv, nil).Once()
	backend.On("ListMessages", mock.Anything, conv.ID).Return(history, nil).Once()

	s, err := Open(context.Background(), Config{
		ConversationID: conv.ID,
		SelfID:         "buyer-1",
		Backend:        backend,
		Ledger:         openTestLedger(t),
		Source:         source,
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenHydratesHistoryWithSentFloor(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	history := []models.Message{
		{ID: "m-1", ConversationID: "conv-1", SenderID: "buyer-1", Body: "hi", CreatedAt: time.Now().Add(-time.Hour)},
		{ID: "m-2", ConversationID: "conv-1", SenderID: "seller-1", Body: "hello", CreatedAt: time.Now().Add(-time.Minute), DeliveryState: models.DeliveryRead},
	}

	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	msgs := s.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, models.DeliverySent, msgs[0].DeliveryState, "history without a state is at least sent")
	assert.Equal(t, models.DeliveryRead, msgs[1].DeliveryState)
	backend.AssertExpectations(t)
}

func TestOpenMergesServerClearTime(t *testing.T) {
	backend := new(mocks.BackendMock)
	cutoff := time.Now().Add(-time.Minute)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1", ClearedAt: &cutoff}
	history := []models.Message{
		{ID: "m-old", ConversationID: "conv-1", SenderID: "seller-1", Body: "before clear", CreatedAt: cutoff.Add(-time.Hour)},
		{ID: "m-new", ConversationID: "conv-1", SenderID: "seller-1", Body: "after clear", CreatedAt: cutoff.Add(time.Second)},
	}

	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-new", msgs[0].ID)
}

func TestLockedConversationRendersNothing(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1", Locked: true}
	history := []models.Message{
		{ID: "m-1", ConversationID: "conv-1", SenderID: "seller-1", Body: "hidden"},
	}

	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	assert.Empty(t, s.Messages())
}

func TestDispatchFoldsRealtimeEventsIntoTheStore(t *testing.T) {
	backend := new(mocks.BackendMock)
	source := mocks.NewStubSource()
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	s := openTestSession(t, backend, source, conv, nil)

	source.Push(models.ChatEvent{
		Type:           models.EventMessageCreated,
		ConversationID: "conv-1",
		Message:        &models.Message{ID: "m-1", ConversationID: "conv-1", SenderID: "seller-1", Body: "incoming"},
	})
	require.Eventually(t, func() bool {
		return len(s.Messages()) == 1
	}, time.Second, 10*time.Millisecond)

	source.Push(models.ChatEvent{Type: models.EventMessageRead, ConversationID: "conv-1", MessageID: "m-1", UserID: "buyer-1"})
	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].DeliveryState == models.DeliveryRead
	}, time.Second, 10*time.Millisecond)
}

func TestSendReturnsTempRecordAndSettlesInBackground(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, nil)

	backend.On("SendMessage", mock.Anything, "conv-1", mock.Anything).
		Return(models.Message{ID: "m-1", ConversationID: "conv-1", SenderID: "buyer-1", Body: "hi", DeliveryState: models.DeliverySent}, nil).Once()

	temp := s.Send(context.Background(), pipeline.Draft{Text: "hi"})
	assert.True(t, models.IsTempID(temp.ID))

	require.Eventually(t, func() bool {
		msgs := s.Messages()
		return len(msgs) == 1 && msgs[0].ID == "m-1"
	}, time.Second, 10*time.Millisecond)
	backend.AssertExpectations(t)
}

func TestSendAndWaitReturnsConfirmedRecord(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, nil)

	backend.On("SendMessage", mock.Anything, "conv-1", mock.Anything).
		Return(models.Message{ID: "m-1", ConversationID: "conv-1", SenderID: "buyer-1", Body: "hi", DeliveryState: models.DeliverySent}, nil).Once()

	msg, err := s.SendAndWait(context.Background(), pipeline.Draft{Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "m-1", msg.ID)
}

func TestDeleteForMeHidesOnlyLocally(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	history := []models.Message{
		{ID: "m-1", ConversationID: "conv-1", SenderID: "seller-1", Body: "keep"},
		{ID: "m-2", ConversationID: "conv-1", SenderID: "seller-1", Body: "hide"},
	}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	backend.On("RemoveForMe", mock.Anything, "conv-1", "m-2").Return(nil).Once()
	require.NoError(t, s.DeleteForMe(context.Background(), "m-2"))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "m-1", msgs[0].ID)
	backend.AssertExpectations(t)
}

func TestDeleteForMeSurvivesMirrorFailure(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	history := []models.Message{{ID: "m-1", ConversationID: "conv-1", SenderID: "seller-1", Body: "hide"}}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	backend.On("RemoveForMe", mock.Anything, "conv-1", "m-1").Return(assert.AnError).Once()
	require.NoError(t, s.DeleteForMe(context.Background(), "m-1"), "the hide is durable locally even if the mirror fails")

	assert.Empty(t, s.Messages())
}

func TestDeleteForMeRejectsPendingMessages(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, nil)

	assert.ErrorIs(t, s.DeleteForMe(context.Background(), "temp-abc"), pipeline.ErrPendingMessage)
	backend.AssertNotCalled(t, "RemoveForMe", mock.Anything, mock.Anything, mock.Anything)
}

func TestUndoDeleteForMeRestoresVisibility(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	history := []models.Message{{ID: "m-1", ConversationID: "conv-1", SenderID: "seller-1", Body: "hide then restore"}}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	backend.On("RemoveForMe", mock.Anything, "conv-1", "m-1").Return(nil).Once()
	require.NoError(t, s.DeleteForMe(context.Background(), "m-1"))
	require.Empty(t, s.Messages())

	require.NoError(t, s.UndoDeleteForMe(context.Background(), "m-1"))
	assert.Len(t, s.Messages(), 1)
}

func TestClearChatHidesEverythingUpToNow(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	history := []models.Message{
		{ID: "m-1", ConversationID: "conv-1", SenderID: "seller-1", Body: "old", CreatedAt: time.Now().Add(-time.Hour)},
	}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, history)

	require.NoError(t, s.ClearChat(context.Background()))
	assert.Empty(t, s.Messages())

	// New traffic after the clear is visible again.
	backend.On("SendMessage", mock.Anything, "conv-1", mock.Anything).
		Return(models.Message{ID: "m-2", ConversationID: "conv-1", SenderID: "buyer-1", Body: "fresh", CreatedAt: time.Now().Add(time.Minute), DeliveryState: models.DeliverySent}, nil).Once()
	_, err := s.SendAndWait(context.Background(), pipeline.Draft{Text: "fresh"})
	require.NoError(t, err)
	assert.Len(t, s.Messages(), 1)
}

func TestDraftRoundTrip(t *testing.T) {
	backend := new(mocks.BackendMock)
	conv := models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}
	s := openTestSession(t, backend, mocks.NewStubSource(), conv, nil)

	require.NoError(t, s.SaveDraft(context.Background(), "half-written reply"))
	draft, err := s.Draft(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "half-written reply", draft)
}

func TestManagerReturnsSameSessionPerConversation(t *testing.T) {
	backend := new(mocks.BackendMock)
	backend.On("Conversation", mock.Anything, "conv-1").
		Return(models.Conversation{ID: "conv-1", BuyerID: "buyer-1", SellerID: "seller-1"}, nil).Once()
	backend.On("ListMessages", mock.Anything, "conv-1").Return(nil, nil).Once()

	l := openTestLedger(t)
	m := NewManager(func(conversationID string) (Config, error) {
		return Config{
			ConversationID: conversationID,
			SelfID:         "buyer-1",
			Backend:        backend,
			Ledger:         l,
			Source:         mocks.NewStubSource(),
		}, nil
	})
	t.Cleanup(m.CloseAll)

	first, err := m.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	second, err := m.Get(context.Background(), "conv-1")
	require.NoError(t, err)
	assert.Same(t, first, second)
	backend.AssertExpectations(t)
}

var _ api.Service = (*mocks.BackendMock)(nil)
