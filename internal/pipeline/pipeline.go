package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"chat-client/internal/api"
	"chat-client/internal/models"
	"chat-client/internal/observability"
	"chat-client/internal/store"
)

// ErrPendingMessage is returned when a durable action targets a message that
// has not been server-confirmed. Temporary ids must never leave the client.
var ErrPendingMessage = errors.New("message is still pending confirmation")

// Draft is the user's submission.
type Draft struct {
	Text      string
	ReplyToID string
	ImageURL  string
}

// Confirmer is told when a temporary id has been swapped for its server
// counterpart, so events buffered against the real id can be replayed.
type Confirmer interface {
	NoteConfirmed(messageID string)
}

// Pipeline makes message authoring feel instantaneous: a temporary record is
// appended to the store immediately and the durable write happens in the
// background. On success the record is swapped in place for the confirmed
// one; on failure it is retracted entirely, leaving no ghost.
type Pipeline struct {
	store          *store.MessageStore
	backend        api.Service
	confirmer      Confirmer
	conversationID string
	selfID         string
	tracer         trace.Tracer
	now            func() time.Time
}

// New builds a Pipeline for one open conversation.
func New(s *store.MessageStore, backend api.Service, confirmer Confirmer, conversationID, selfID string) *Pipeline {
	return &Pipeline{
		store:          s,
		backend:        backend,
		confirmer:      confirmer,
		conversationID: conversationID,
		selfID:         selfID,
		tracer:         otel.Tracer("chat-client/pipeline"),
		now:            time.Now,
	}
}

// SendResult is the single outcome of a background durable write. On success
// Message is the confirmed record as it landed in the store, local status
// merged in.
type SendResult struct {
	Message models.Message
	Err     error
}

// Send appends an optimistic record and starts the durable write. It returns
// the temporary record immediately; the channel yields the single outcome of
// the background write. Concurrent sends each get an independent temporary id
// and keep insertion order regardless of confirmation order.
func (p *Pipeline) Send(ctx context.Context, draft Draft) (models.Message, <-chan SendResult) {
	temp := models.Message{
		ID:             newTempID(),
		ConversationID: p.conversationID,
		SenderID:       p.selfID,
		Body:           draft.Text,
		ImageURL:       draft.ImageURL,
		ReplyToID:      draft.ReplyToID,
		CreatedAt:      p.now(),
		DeliveryState:  models.DeliverySending,
	}
	p.store.Append(temp)

	// The write must outlive the caller: the local API answers 202 while the
	// write is still in flight, and a served request's context is canceled
	// the moment the handler returns. Values (trace context) are kept.
	ctx = context.WithoutCancel(ctx)

	result := make(chan SendResult, 1)
	go func() {
		msg, err := p.deliver(ctx, temp.ID, draft)
		result <- SendResult{Message: msg, Err: err}
	}()
	return temp, result
}

// deliver runs the durable write and reconciles the outcome into the store.
func (p *Pipeline) deliver(ctx context.Context, tempID string, draft Draft) (models.Message, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.send")
	defer span.End()
	start := p.now()

	confirmed, err := p.backend.SendMessage(ctx, p.conversationID, api.SendRequest{
		Text:      draft.Text,
		ReplyToID: draft.ReplyToID,
		ImageURL:  draft.ImageURL,
	})
	if err != nil {
		// Retract the temporary record entirely; the user resubmits manually.
		p.store.RemoveLocalOnly(tempID)
		observability.IncSend("failure")
		return models.Message{}, fmt.Errorf("send message: %w", err)
	}

	if confirmed.DeliveryState.Rank() < models.DeliverySent.Rank() {
		confirmed.DeliveryState = models.DeliverySent
	}
	p.store.Replace(tempID, confirmed)
	if p.confirmer != nil {
		p.confirmer.NoteConfirmed(confirmed.ID)
	}
	observability.IncSend("success")
	observability.ObserveSendDuration(p.now().Sub(start))

	if merged, ok := p.store.Get(confirmed.ID); ok {
		return merged, nil
	}
	return confirmed, nil
}

// Edit replaces the body of a confirmed message. Not optimistic: the server
// response is authoritative, and on failure the local copy stays last known
// good.
func (p *Pipeline) Edit(ctx context.Context, messageID, body string) error {
	if models.IsTempID(messageID) {
		return ErrPendingMessage
	}
	updated, err := p.backend.EditMessage(ctx, p.conversationID, messageID, body)
	if err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	p.store.Patch(messageID, func(m *models.Message) {
		m.Body = updated.Body
		m.Edited = true
		m.EditedAt = updated.EditedAt
	})
	return nil
}

// DeleteForEveryone hard-deletes a confirmed message for both parties and
// scrubs the local copy.
func (p *Pipeline) DeleteForEveryone(ctx context.Context, messageID string) error {
	if models.IsTempID(messageID) {
		return ErrPendingMessage
	}
	if err := p.backend.DeleteForEveryone(ctx, p.conversationID, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	p.store.Patch(messageID, func(m *models.Message) {
		m.Scrub()
	})
	return nil
}

// React toggles a reaction on a confirmed message.
func (p *Pipeline) React(ctx context.Context, messageID, emoji string, added bool) error {
	if models.IsTempID(messageID) {
		return ErrPendingMessage
	}
	if err := p.backend.React(ctx, p.conversationID, messageID, emoji, added); err != nil {
		return fmt.Errorf("react: %w", err)
	}
	p.store.Patch(messageID, func(m *models.Message) {
		if added {
			m.AddReaction(emoji, p.selfID)
		} else {
			m.RemoveReaction(emoji, p.selfID)
		}
	})
	return nil
}

// Star toggles the caller's private star on a confirmed message.
func (p *Pipeline) Star(ctx context.Context, messageID string, starred bool) error {
	if models.IsTempID(messageID) {
		return ErrPendingMessage
	}
	if err := p.backend.Star(ctx, p.conversationID, messageID, starred); err != nil {
		return fmt.Errorf("star: %w", err)
	}
	p.store.Patch(messageID, func(m *models.Message) {
		m.SetStarred(p.selfID, starred)
	})
	return nil
}

// Pin toggles a pin on a confirmed message. The pin expiry is server
// assigned and arrives through the update push.
func (p *Pipeline) Pin(ctx context.Context, messageID string, pinned bool) error {
	if models.IsTempID(messageID) {
		return ErrPendingMessage
	}
	if err := p.backend.Pin(ctx, p.conversationID, messageID, pinned); err != nil {
		return fmt.Errorf("pin: %w", err)
	}
	p.store.Patch(messageID, func(m *models.Message) {
		m.Pinned = pinned
		if !pinned {
			m.PinExpiresAt = nil
		}
	})
	return nil
}

func newTempID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		log.Printf("pipeline: temp id entropy: %v", err)
	}
	return models.TempIDPrefix + hex.EncodeToString(buf)
}
