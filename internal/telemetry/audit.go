package telemetry

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// AuditEmitter emits client-side audit events (session opens, send failures,
// destructive actions) to the audit exchange.
type AuditEmitter struct {
	publisher   Publisher
	routingKey  string
	service     string
	environment string
}

type AuditEnvelope struct {
	SchemaVersion  int          `json:"schema_version"`
	EventType      string       `json:"event_type"`
	OccurredAt     string       `json:"occurred_at"`
	RequestID      string       `json:"request_id"`
	Service        string       `json:"service"`
	Environment    string       `json:"environment"`
	ConversationID string       `json:"conversation_id,omitempty"`
	UserID         string       `json:"user_id,omitempty"`
	Payload        AuditPayload `json:"payload"`
}

type AuditPayload struct {
	Level string `json:"level"`
	Text  string `json:"text"`
}

func NewAuditEmitter(publisher Publisher, routingKey, service, environment string) *AuditEmitter {
	return &AuditEmitter{
		publisher:   publisher,
		routingKey:  routingKey,
		service:     service,
		environment: environment,
	}
}

// Emit publishes one audit envelope. requestID may be empty; envelopes from
// background work get a generated one so they stay traceable.
func (e *AuditEmitter) Emit(ctx context.Context, level, text, conversationID, userID, requestID string) {
	if e == nil || e.publisher == nil {
		return
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	log.Printf("audit emit: level=%s conversation_id=%s user_id=%s text=%q", level, conversationID, userID, text)
	envelope := AuditEnvelope{
		SchemaVersion:  1,
		EventType:      "audit_log",
		OccurredAt:     time.Now().UTC().Format(time.RFC3339Nano),
		RequestID:      requestID,
		Service:        e.service,
		Environment:    e.environment,
		ConversationID: conversationID,
		UserID:         userID,
		Payload: AuditPayload{
			Level: level,
			Text:  text,
		},
	}

	if err := e.publisher.Publish(ctx, e.routingKey, envelope); err != nil {
		log.Printf("audit publish failed: %v", err)
	}
}
