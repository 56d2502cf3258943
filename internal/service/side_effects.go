package service

import (
	"context"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/repository"
)

// sideEffects writes the audit log and publishes events after a successful
// upstream mutation. Failures are logged, never returned.
type sideEffects struct {
	audit  repository.AuditRecorder
	events client.EventPublisherInterface
	log    *logger.Logger
}

func newSideEffects(audit repository.AuditRecorder, events client.EventPublisherInterface, log *logger.Logger) sideEffects {
	if audit == nil {
		audit = repository.NopAuditRecorder{}
	}
	return sideEffects{audit: audit, events: events, log: log}
}

func (e sideEffects) appendAudit(ctx context.Context, entries ...*repository.AuditEntry) {
	if err := e.audit.Append(ctx, entries...); err != nil {
		ev := e.log.Warn().Err(err).Int("entries", len(entries))
		if len(entries) > 0 {
			ev = ev.Str("action", entries[0].Action).Int64("document_id", entries[0].DocumentID)
		}
		ev.Msg("Failed to append audit entry (non-fatal)")
	}
}

func (e sideEffects) publish(ctx context.Context, eventType string, t document.Type, documentID, actorID int64, payload map[string]interface{}) {
	if e.events == nil {
		return
	}
	e.events.PublishDocumentEvent(ctx, eventType, t, documentID, actorID, payload)
}

func auditEntry(t document.Type, documentID int64, action string, actorID int64, metadata map[string]interface{}) *repository.AuditEntry {
	return &repository.AuditEntry{
		DocumentType: t.Code,
		DocumentID:   documentID,
		Action:       action,
		PerformedBy:  actorID,
		Metadata:     metadata,
	}
}
