package service

import (
	"context"
	"fmt"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/metrics"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/repository"
)

// ApprovalView is a viewer's status after a decision. Authoritative is false
// when the status is the decision just written and the follow-up read failed.
type ApprovalView struct {
	Status        document.ApprovalStatus `json:"status"`
	Authoritative bool                    `json:"authoritative"`
}

// ApprovalTracker records per-approver decisions. Each approver has an
// independent record; there is no document-wide status.
type ApprovalTracker struct {
	docs    client.DocumentsClientInterface
	effects sideEffects
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewApprovalTracker creates an approval tracker
func NewApprovalTracker(
	docs client.DocumentsClientInterface,
	audit repository.AuditRecorder,
	events client.EventPublisherInterface,
	log *logger.Logger,
	m *metrics.Metrics,
) *ApprovalTracker {
	return &ApprovalTracker{
		docs:    docs,
		effects: newSideEffects(audit, events, log),
		log:     log,
		metrics: m,
	}
}

// Refresh re-reads viewerID's own record on documentID
func (t *ApprovalTracker) Refresh(ctx context.Context, s auth.Session, documentID, viewerID int64) (document.ApprovalStatus, error) {
	if documentID == 0 || viewerID == 0 {
		return document.StatusPending, nil
	}
	rec, err := t.docs.ApprovalRecord(ctx, s, documentID, viewerID)
	if err != nil {
		return "", err
	}
	return rec.Status(), nil
}

// Approve records the session actor's approval. Legal from Pending and
// Disapproved.
func (t *ApprovalTracker) Approve(ctx context.Context, s auth.Session, documentID int64) (ApprovalView, error) {
	return t.decide(ctx, s, documentID, document.StatusApproved)
}

// Disapprove records the session actor's disapproval. Legal from Pending and
// Approved.
func (t *ApprovalTracker) Disapprove(ctx context.Context, s auth.Session, documentID int64) (ApprovalView, error) {
	return t.decide(ctx, s, documentID, document.StatusDisapproved)
}

func (t *ApprovalTracker) decide(ctx context.Context, s auth.Session, documentID int64, target document.ApprovalStatus) (ApprovalView, error) {
	if err := s.RequireActor(); err != nil {
		return ApprovalView{}, err
	}
	if documentID == 0 {
		return ApprovalView{}, errors.Precondition("an unsaved document cannot be approved")
	}
	typ := t.docs.Type()

	current, err := t.Refresh(ctx, s, documentID, s.PersonID)
	if err != nil {
		return ApprovalView{}, fmt.Errorf("failed to read current approval: %w", err)
	}
	if current == target {
		return ApprovalView{Status: current, Authoritative: true},
			errors.Conflict(fmt.Sprintf("%s %d is already %s by this approver", typ.Label, documentID, current)).
				WithDetail("status", current)
	}

	action, eventType := repository.AuditApproved, client.EventDocumentApproved
	write := t.docs.Approve
	if target == document.StatusDisapproved {
		action, eventType = repository.AuditDisapproved, client.EventDocumentDisapproved
		write = t.docs.Disapprove
	}

	if err := write(ctx, s, documentID); err != nil {
		t.log.Error().Err(err).
			Str("document_type", typ.Code).
			Int64("document_id", documentID).
			Int64("actor_id", s.PersonID).
			Str("decision", string(target)).
			Msg("Approval decision failed")
		return ApprovalView{Status: current, Authoritative: true}, err
	}

	t.metrics.RecordApproval(typ.Code, action)
	t.log.Info().
		Str("document_type", typ.Code).
		Int64("document_id", documentID).
		Int64("actor_id", s.PersonID).
		Str("from", string(current)).
		Str("to", string(target)).
		Msg("Approval decision recorded")

	meta := map[string]interface{}{"from": string(current), "to": string(target)}
	t.effects.appendAudit(ctx, auditEntry(typ, documentID, action, s.PersonID, meta))
	t.effects.publish(ctx, eventType, typ, documentID, s.PersonID, meta)

	refreshed, err := t.Refresh(ctx, s, documentID, s.PersonID)
	if err != nil {
		t.log.Warn().Err(err).
			Int64("document_id", documentID).
			Msg("Approval written but status refresh failed")
		return ApprovalView{Status: target, Authoritative: false}, fmt.Errorf("approval recorded but refresh failed: %w", err)
	}
	return ApprovalView{Status: refreshed, Authoritative: true}, nil
}
