package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-client/internal/models"
)

type wsBackend struct {
	upgrader websocket.Upgrader
	// script is sent to every client that connects.
	script []models.ChatEvent
	// received collects frames published by the client.
	received chan models.ChatEvent
}

func newWSBackend(script []models.ChatEvent) *wsBackend {
	return &wsBackend{
		script:   script,
		received: make(chan models.ChatEvent, 16),
	}
}

func (b *wsBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, ev := range b.script {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
	for {
		var ev models.ChatEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return
		}
		b.received <- ev
	}
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestEventsDeliversServerFrames(t *testing.T) {
	backendEvents := []models.ChatEvent{
		{Type: models.EventMessageCreated, ConversationID: "conv-1", MessageID: "m-1"},
		{Type: models.EventMessageRead, ConversationID: "conv-1", MessageID: "m-1", UserID: "buyer-1"},
	}
	server := httptest.NewServer(newWSBackend(backendEvents))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := NewWSSource(wsURL(server), "token-1", "conv-1")
	events := source.Events(ctx)

	for _, want := range backendEvents {
		select {
		case got := <-events:
			assert.Equal(t, want.Type, got.Type)
			assert.Equal(t, want.MessageID, got.MessageID)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want.Type)
		}
	}
}

func TestEventsChannelClosesWhenContextEnds(t *testing.T) {
	server := httptest.NewServer(newWSBackend(nil))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	source := NewWSSource(wsURL(server), "token-1", "conv-1")
	events := source.Events(ctx)

	// Wait for the dial to land so the shutdown exercises an open socket.
	require.Eventually(t, func() bool {
		return source.Publish(ctx, models.ChatEvent{Type: models.EventCheckUserOnline}) == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	source.Close()

	select {
	case _, open := <-events:
		assert.False(t, open, "channel must close after cancellation")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for channel close")
	}
}

func TestPublishSendsFrameOverTheSocket(t *testing.T) {
	backend := newWSBackend(nil)
	server := httptest.NewServer(backend)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := NewWSSource(wsURL(server), "token-1", "conv-1")
	source.Events(ctx)

	// Wait for the dial to land before publishing.
	require.Eventually(t, func() bool {
		return source.Publish(ctx, models.ChatEvent{Type: models.EventTyping, ConversationID: "conv-1", UserID: "buyer-1"}) == nil
	}, 2*time.Second, 20*time.Millisecond)

	select {
	case got := <-backend.received:
		assert.Equal(t, models.EventTyping, got.Type)
		assert.Equal(t, "conv-1", got.ConversationID)
	case <-time.After(2 * time.Second):
		t.Fatal("backend never received the typing frame")
	}
}

func TestPublishClearsDeadlineLeftByEarlierCall(t *testing.T) {
	backend := newWSBackend(nil)
	server := httptest.NewServer(backend)
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := NewWSSource(wsURL(server), "token-1", "conv-1")
	source.Events(ctx)

	// The first publish carries a short deadline and succeeds well inside it.
	bounded, release := context.WithTimeout(ctx, 100*time.Millisecond)
	defer release()
	require.Eventually(t, func() bool {
		return source.Publish(bounded, models.ChatEvent{Type: models.EventCheckUserOnline}) == nil
	}, 2*time.Second, 10*time.Millisecond)

	// Let that deadline pass. A deadline-free publish afterwards must not
	// inherit it and time out on a healthy socket.
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, source.Publish(ctx, models.ChatEvent{Type: models.EventTyping, ConversationID: "conv-1"}))

	for {
		select {
		case got := <-backend.received:
			if got.Type == models.EventTyping {
				return
			}
		case <-time.After(2 * time.Second):
			t.Fatal("backend never received the follow-up frame")
		}
	}
}

func TestPublishWhileDisconnected(t *testing.T) {
	source := NewWSSource("ws://127.0.0.1:1", "token-1", "conv-1")
	err := source.Publish(context.Background(), models.ChatEvent{Type: models.EventTyping})
	assert.ErrorIs(t, err, ErrNotConnected)
}
