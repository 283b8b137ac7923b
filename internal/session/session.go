package session

import (
	"context"
	"fmt"
	"log"
	"time"

	"chat-client/internal/api"
	"chat-client/internal/ledger"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/pipeline"
	"chat-client/internal/realtime"
	"chat-client/internal/reconciler"
	"chat-client/internal/store"
	"chat-client/internal/telemetry"
)

// Session owns one open conversation: the message store, the optimistic send
// pipeline, the reconciler, and the single dispatch loop that feeds real-time
// events into it. The store is owned exclusively by the session; nothing else
// mutates it.
type Session struct {
	ConversationID string

	selfID   string
	backend  api.Service
	ledger   *ledger.Ledger
	source   realtime.EventSource
	presence realtime.PresencePublisher
	audit    *telemetry.AuditEmitter

	store    *store.MessageStore
	pipeline *pipeline.Pipeline
	recon    *reconciler.Reconciler

	conv   models.Conversation
	cancel context.CancelFunc
	done   chan struct{}
}

// Config carries the collaborators a session is built from.
type Config struct {
	ConversationID string
	SelfID         string
	Backend        api.Service
	Ledger         *ledger.Ledger
	Source         realtime.EventSource
	Presence       realtime.PresencePublisher
	Audit          *telemetry.AuditEmitter
}

// Open hydrates the store from a full fetch, merges the server's clear time,
// and starts the dispatch loop. The returned session must be closed.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	s := &Session{
		ConversationID: cfg.ConversationID,
		selfID:         cfg.SelfID,
		backend:        cfg.Backend,
		ledger:         cfg.Ledger,
		source:         cfg.Source,
		presence:       cfg.Presence,
		audit:          cfg.Audit,
		store:          store.NewMessageStore(),
		done:           make(chan struct{}),
	}
	s.recon = reconciler.New(s.store, cfg.Ledger, cfg.ConversationID, cfg.SelfID)
	s.pipeline = pipeline.New(s.store, cfg.Backend, s.recon, cfg.ConversationID, cfg.SelfID)

	conv, err := cfg.Backend.Conversation(ctx, cfg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	s.conv = conv

	// Clearing on one device is honored on this one: the effective cutoff is
	// the max of local and server clear times.
	if conv.ClearedAt != nil {
		if err := cfg.Ledger.SetClearedAt(ctx, cfg.ConversationID, *conv.ClearedAt); err != nil {
			return nil, fmt.Errorf("merge server clear time: %w", err)
		}
	}

	msgs, err := cfg.Backend.ListMessages(ctx, cfg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	for _, msg := range msgs {
		if msg.DeliveryState.Rank() < models.DeliverySent.Rank() {
			msg.DeliveryState = models.DeliverySent
		}
		s.store.Append(msg)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.dispatch(loopCtx)

	s.publishPresence(ctx, models.EventUserAppointmentsActive)
	s.audit.Emit(ctx, "INFO", "session opened", cfg.ConversationID, cfg.SelfID, "")
	observability.IncOpenSessions()
	return s, nil
}

// dispatch is the single loop folding events into the store. Reconciler
// handlers run to completion per event; there is no other writer racing
// them mid-event.
func (s *Session) dispatch(ctx context.Context) {
	defer close(s.done)
	for ev := range s.source.Events(ctx) {
		s.recon.HandleEvent(ev)
	}
}

// Messages returns the projection the current user actually sees. A locked
// conversation without granted access renders nothing.
func (s *Session) Messages() []models.Message {
	if !s.conv.Readable() {
		return nil
	}
	return s.store.VisibleTo(
		s.selfID,
		func(id string) bool { return s.ledger.IsRemoved(s.ConversationID, id) },
		s.ledger.ClearedAt(s.ConversationID),
	)
}

// Send performs an optimistic send and returns the temporary record
// immediately. The background outcome is logged and audited; on failure the
// record has already been retracted by the pipeline.
func (s *Session) Send(ctx context.Context, draft pipeline.Draft) models.Message {
	temp, result := s.pipeline.Send(ctx, draft)
	go func() {
		if res := <-result; res.Err != nil {
			log.Printf("session %s: send failed: %v", s.ConversationID, res.Err)
			s.audit.Emit(context.Background(), "WARN", "send failed: "+res.Err.Error(), s.ConversationID, s.selfID, "")
		}
	}()
	return temp
}

// SendAndWait is the synchronous variant used by callers that need the
// confirmed record or the failure, such as the upload retry surface.
func (s *Session) SendAndWait(ctx context.Context, draft pipeline.Draft) (models.Message, error) {
	_, result := s.pipeline.Send(ctx, draft)
	res := <-result
	if res.Err != nil {
		return models.Message{}, res.Err
	}
	return res.Message, nil
}

// SendImages forwards a multi-file batch to the pipeline.
func (s *Session) SendImages(ctx context.Context, items []pipeline.UploadItem) pipeline.BatchResult {
	return s.pipeline.SendImages(ctx, items)
}

// Edit rewrites a confirmed message's body.
func (s *Session) Edit(ctx context.Context, messageID, body string) error {
	return s.pipeline.Edit(ctx, messageID, body)
}

// React toggles a reaction.
func (s *Session) React(ctx context.Context, messageID, emoji string, added bool) error {
	return s.pipeline.React(ctx, messageID, emoji, added)
}

// Star toggles the caller's star.
func (s *Session) Star(ctx context.Context, messageID string, starred bool) error {
	return s.pipeline.Star(ctx, messageID, starred)
}

// Pin toggles a pin.
func (s *Session) Pin(ctx context.Context, messageID string, pinned bool) error {
	return s.pipeline.Pin(ctx, messageID, pinned)
}

// DeleteForEveryone hard-deletes a message for both parties.
func (s *Session) DeleteForEveryone(ctx context.Context, messageID string) error {
	err := s.pipeline.DeleteForEveryone(ctx, messageID)
	if err == nil {
		s.audit.Emit(ctx, "INFO", "message deleted for everyone", s.ConversationID, s.selfID, "")
	}
	return err
}

// DeleteForMe records a private tombstone and mirrors it to the server best
// effort. The counterpart's view is unaffected either way.
func (s *Session) DeleteForMe(ctx context.Context, messageID string) error {
	if models.IsTempID(messageID) {
		return pipeline.ErrPendingMessage
	}
	if err := s.ledger.MarkRemoved(ctx, s.ConversationID, messageID); err != nil {
		return fmt.Errorf("mark removed: %w", err)
	}
	if err := s.backend.RemoveForMe(ctx, s.ConversationID, messageID); err != nil {
		// The hide is already durable locally; the mirror is best effort.
		log.Printf("session %s: remove-for-me mirror failed: %v", s.ConversationID, err)
	}
	return nil
}

// UndoDeleteForMe reverses a delete-for-me within the grace window.
func (s *Session) UndoDeleteForMe(ctx context.Context, messageID string) error {
	return s.ledger.Unmark(ctx, s.ConversationID, messageID)
}

// ClearChat hides everything at or before now for this user, locally.
func (s *Session) ClearChat(ctx context.Context) error {
	err := s.ledger.SetClearedAt(ctx, s.ConversationID, time.Now())
	if err == nil {
		s.audit.Emit(ctx, "INFO", "chat cleared", s.ConversationID, s.selfID, "")
	}
	return err
}

// Draft returns the persisted composer draft.
func (s *Session) Draft(ctx context.Context) (string, error) {
	return s.ledger.Draft(ctx, s.ConversationID)
}

// SaveDraft persists the composer draft.
func (s *Session) SaveDraft(ctx context.Context, body string) error {
	return s.ledger.SaveDraft(ctx, s.ConversationID, body)
}

// Typing publishes a typing signal, best effort.
func (s *Session) Typing(ctx context.Context) {
	s.publishPresence(ctx, models.EventTyping)
}

// PendingEvents reports buffered reconciler events, for the debug surface.
func (s *Session) PendingEvents() int {
	return s.recon.PendingEvents()
}

func (s *Session) publishPresence(ctx context.Context, eventType string) {
	if s.presence == nil {
		return
	}
	ev := models.ChatEvent{Type: eventType, ConversationID: s.ConversationID, UserID: s.selfID}
	if err := s.presence.Publish(ctx, ev); err != nil {
		log.Printf("session %s: publish %s: %v", s.ConversationID, eventType, err)
	}
}

// Close stops the dispatch loop and the event source.
func (s *Session) Close() error {
	s.cancel()
	err := s.source.Close()
	<-s.done
	observability.DecOpenSessions()
	return err
}
