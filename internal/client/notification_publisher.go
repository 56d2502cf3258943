package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// Event types published on <prefix>.<event_type>
const (
	EventDocumentSubmitted   = "document_submitted"
	EventDocumentApproved    = "document_approved"
	EventDocumentDisapproved = "document_disapproved"
	EventDocumentDeleted     = "document_deleted"
)

// NotificationPublisher publishes document events to NATS JetStream.
//
// All publish operations are non-fatal: errors are logged and never returned,
// so a notification failure never interrupts a document operation.
type NotificationPublisher struct {
	js     jetstream.JetStream
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string                 `json:"event_type"`
	DocumentType string                 `json:"document_type"`
	DocumentID   string                 `json:"document_id"`
	ActorID      string                 `json:"actor_id"`
	OccurredAt   time.Time              `json:"occurred_at"`
	Category     string                 `json:"category"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
}

// ConnectNATS dials url and opens a JetStream context
func ConnectNATS(url, name string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to open JetStream: %w", err)
	}
	return nc, js, nil
}

// NewNotificationPublisher creates a publisher; a nil js disables publishing
func NewNotificationPublisher(js jetstream.JetStream, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "notifications.freight"
	}
	return &NotificationPublisher{js: js, prefix: prefix, log: log}
}

// PublishDocumentEvent publishes one event. Subject: <prefix>.<eventType>
func (p *NotificationPublisher) PublishDocumentEvent(ctx context.Context, eventType string, t document.Type, documentID, actorID int64, payload map[string]interface{}) {
	if p == nil || p.js == nil {
		return
	}

	event := &NotificationEvent{
		EventType:    eventType,
		DocumentType: t.Code,
		DocumentID:   strconv.FormatInt(documentID, 10),
		ActorID:      strconv.FormatInt(actorID, 10),
		OccurredAt:   time.Now().UTC(),
		Category:     "freight_documents",
		Payload:      payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.prefix + "." + eventType
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Int64("document_id", documentID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Int64("document_id", documentID).
		Msg("notification: event published")
}
