package realtime

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/models"
	"chat-client/internal/observability"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// ErrNotConnected is returned by Publish while the socket is down; presence
// signals are not queued.
var ErrNotConnected = errors.New("websocket not connected")

type connInfo struct {
	ConnID      string
	ConnectedAt time.Time
}

// WSSource maintains the websocket to the backend for one conversation,
// reconnecting with exponential backoff. It implements both EventSource and
// PresencePublisher.
type WSSource struct {
	baseURL        string
	token          string
	conversationID string
	tracer         trace.Tracer

	mu   sync.Mutex
	conn *websocket.Conn
	info connInfo
}

// NewWSSource builds a source for one conversation. baseURL is the ws(s)
// endpoint of the backend, e.g. wss://api.example.com.
func NewWSSource(baseURL, token, conversationID string) *WSSource {
	return &WSSource{
		baseURL:        baseURL,
		token:          token,
		conversationID: conversationID,
		tracer:         otel.Tracer("chat-client/realtime"),
	}
}

// Events dials and reads until ctx ends. The channel closes only when ctx is
// done; connection drops trigger reconnects behind the scenes.
func (s *WSSource) Events(ctx context.Context) <-chan models.ChatEvent {
	out := make(chan models.ChatEvent)
	go s.run(ctx, out)
	return out
}

func (s *WSSource) run(ctx context.Context, out chan<- models.ChatEvent) {
	defer close(out)
	backoff := initialBackoff

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(ctx)
		if err != nil {
			observability.IncWSDial("failure")
			log.Printf("websocket dial failed, retrying in %s: %v", backoff, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		observability.IncWSDial("success")
		observability.IncWSActive()
		backoff = initialBackoff

		closeReason := s.readLoop(ctx, conn, out)
		observability.DecWSActive()

		s.mu.Lock()
		duration := time.Since(s.info.ConnectedAt)
		s.conn = nil
		s.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("websocket closed after %s: %s", duration.Round(time.Millisecond), closeReason)
	}
}

func (s *WSSource) dial(ctx context.Context) (*websocket.Conn, error) {
	ctx, span := s.tracer.Start(ctx, "ws.handshake")
	defer span.End()

	target := s.baseURL + "/ws/conversations/" + url.PathEscape(s.conversationID) + "?token=" + url.QueryEscape(s.token)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.conn = conn
	s.info = connInfo{ConnID: newConnID(), ConnectedAt: time.Now()}
	s.mu.Unlock()
	return conn, nil
}

func (s *WSSource) readLoop(ctx context.Context, conn *websocket.Conn, out chan<- models.ChatEvent) string {
	for {
		var ev models.ChatEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "normal closure"
			}
			return err.Error()
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return "context canceled"
		}
	}
}

// Publish writes a presence or typing frame. Returns ErrNotConnected while
// the socket is down instead of queueing; presence is best effort.
func (s *WSSource) Publish(ctx context.Context, ev models.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetWriteDeadline(deadline)
	} else {
		// A deadline set for an earlier publish would otherwise stick to the
		// connection and expire future writes.
		_ = s.conn.SetWriteDeadline(time.Time{})
	}
	return s.conn.WriteJSON(ev)
}

// Close drops the current connection; a running Events loop will redial
// unless its context has ended.
func (s *WSSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

func newConnID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return ""
	}
	return hex.EncodeToString(buf)
}
