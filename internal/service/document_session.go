package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/metrics"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/repository"
)

// SessionDefaults seed a new draft header
type SessionDefaults struct {
	CompanyID int64
}

// ControllerDeps wires a SessionController
type ControllerDeps struct {
	Documents      client.DocumentsClientInterface
	Catalogs       client.CatalogClientInterface
	Audit          repository.AuditRecorder
	Events         client.EventPublisherInterface
	Confirmations  *ConfirmationRegistry
	Defaults       SessionDefaults
	MaxConcurrency int
	Log            *logger.Logger
	Metrics        *metrics.Metrics
}

// SessionController opens document sessions for one document type and runs
// the operations that do not need an open session (list, delete, audit).
type SessionController struct {
	typ           document.Type
	docs          client.DocumentsClientInterface
	catalogs      client.CatalogClientInterface
	audit         repository.AuditRecorder
	reconciler    *LineReconciler
	tracker       *ApprovalTracker
	confirmations *ConfirmationRegistry
	effects       sideEffects
	defaults      SessionDefaults
	log           *logger.Logger
	metrics       *metrics.Metrics
}

// NewSessionController creates a controller from its dependencies
func NewSessionController(deps ControllerDeps) *SessionController {
	audit := deps.Audit
	if audit == nil {
		audit = repository.NopAuditRecorder{}
	}
	confirmations := deps.Confirmations
	if confirmations == nil {
		confirmations = NewConfirmationRegistry(0)
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	typ := deps.Documents.Type()
	componentLog := log.Component(typ.Code)

	return &SessionController{
		typ:           typ,
		docs:          deps.Documents,
		catalogs:      deps.Catalogs,
		audit:         audit,
		reconciler:    NewLineReconciler(deps.Documents, deps.MaxConcurrency, componentLog, deps.Metrics),
		tracker:       NewApprovalTracker(deps.Documents, audit, deps.Events, componentLog, deps.Metrics),
		confirmations: confirmations,
		effects:       newSideEffects(audit, deps.Events, componentLog),
		defaults:      deps.Defaults,
		log:           componentLog,
		metrics:       deps.Metrics,
	}
}

// Type returns the controller's document type
func (c *SessionController) Type() document.Type {
	return c.typ
}

// Start opens a session on documentID, or on a new draft when documentID is 0.
// Catalog and approval-status failures become warnings; header and line read
// failures abort.
func (c *SessionController) Start(ctx context.Context, s auth.Session, documentID int64) (*DocumentSession, error) {
	if err := s.RequireCredential(); err != nil {
		return nil, err
	}

	sess := &DocumentSession{
		ctl:      c,
		session:  s,
		resolver: NewCatalogResolver(c.catalogs, s, c.log, c.metrics),
		status:   ApprovalView{Status: document.StatusPending, Authoritative: true},
	}
	for _, err := range sess.resolver.LoadAll(ctx, catalogsFor(c.typ)...) {
		sess.warnings = append(sess.warnings, err.Error())
	}

	if documentID == 0 {
		sess.header = document.Header{CompanyID: c.defaults.CompanyID}
		sess.resolver.EnrichHeader(&sess.header)
		return sess, nil
	}

	snap, err := c.docs.Get(ctx, s, documentID)
	if err != nil {
		return nil, err
	}

	lines, err := c.docs.ListLines(ctx, s, documentID)
	if err != nil {
		if !snap.Embedded {
			return nil, err
		}
		c.log.Warn().Err(err).Int64("document_id", documentID).Msg("Line list failed, using embedded lines")
		sess.warnings = append(sess.warnings, "line items were read from the document body: "+err.Error())
		lines = snap.Lines
	}
	orderLines(lines)

	sess.header = snap.Header
	sess.resolver.EnrichHeader(&sess.header)
	sess.resolver.EnrichLines(lines)
	sess.lines = lines

	if s.PersonID != 0 {
		status, err := c.tracker.Refresh(ctx, s, documentID, s.PersonID)
		if err != nil {
			c.log.Warn().Err(err).Int64("document_id", documentID).Msg("Approval status unavailable")
			sess.warnings = append(sess.warnings, "approval status unavailable: "+err.Error())
			sess.status = ApprovalView{Status: document.StatusPending, Authoritative: false}
		} else {
			sess.status = ApprovalView{Status: status, Authoritative: true}
		}
	}
	return sess, nil
}

// List returns a page of headers with their labels resolved
func (c *SessionController) List(ctx context.Context, s auth.Session, opts client.ListOptions) (*client.Page, []string, error) {
	page, err := c.docs.List(ctx, s, opts)
	if err != nil {
		return nil, nil, err
	}

	resolver := NewCatalogResolver(c.catalogs, s, c.log, c.metrics)
	var warnings []string
	for _, err := range resolver.LoadAll(ctx, document.Companies, document.Customers, document.Suppliers, document.Currencies) {
		warnings = append(warnings, err.Error())
	}
	for i := range page.Items {
		resolver.EnrichHeader(&page.Items[i])
	}
	return page, warnings, nil
}

// Catalog returns one reference catalog for the caller
func (c *SessionController) Catalog(ctx context.Context, s auth.Session, catalog document.Catalog) ([]document.Reference, error) {
	return c.catalogs.ListReference(ctx, s, catalog)
}

// RequestDelete issues the first step of a document (lineID 0) or line delete
func (c *SessionController) RequestDelete(s auth.Session, documentID, lineID int64) (Ticket, error) {
	if err := s.RequireActor(); err != nil {
		return Ticket{}, err
	}
	if documentID == 0 {
		return Ticket{}, errors.Precondition("an unsaved document has nothing to delete upstream")
	}
	return c.confirmations.Request(c.target(s, documentID, lineID)), nil
}

func (c *SessionController) target(s auth.Session, documentID, lineID int64) DeleteTarget {
	return DeleteTarget{
		DocumentType: c.typ.Code,
		DocumentID:   documentID,
		LineID:       lineID,
		ActorID:      s.PersonID,
	}
}

// DeleteDocument soft-deletes the document once token confirms it
func (c *SessionController) DeleteDocument(ctx context.Context, s auth.Session, documentID int64, token string) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	if err := c.confirmations.Consume(token, c.target(s, documentID, 0)); err != nil {
		return err
	}

	if err := c.docs.DeleteHeader(ctx, s, documentID); err != nil {
		c.log.Error().Err(err).Int64("document_id", documentID).Int64("actor_id", s.PersonID).Msg("Document delete failed")
		return err
	}

	c.log.Info().
		Str("document_type", c.typ.Code).
		Int64("document_id", documentID).
		Int64("actor_id", s.PersonID).
		Msg("Document deleted")
	c.effects.appendAudit(ctx, auditEntry(c.typ, documentID, repository.AuditDeleted, s.PersonID, nil))
	c.effects.publish(ctx, client.EventDocumentDeleted, c.typ, documentID, s.PersonID, nil)
	return nil
}

// DeleteLine removes one persisted line once token confirms it. A line that
// is already gone counts as deleted.
func (c *SessionController) DeleteLine(ctx context.Context, s auth.Session, documentID, lineID int64, token string) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	if err := c.confirmations.Consume(token, c.target(s, documentID, lineID)); err != nil {
		return err
	}

	err := c.docs.DeleteLine(ctx, s, lineID)
	outcome := "ok"
	switch {
	case err == nil:
	case errors.IsCode(err, errors.ErrCodeGone):
		outcome = "gone"
	default:
		c.metrics.RecordLineOperation(c.typ.Code, PhaseDelete, "error")
		c.log.Error().Err(err).Int64("document_id", documentID).Int64("line_id", lineID).Msg("Line delete failed")
		return err
	}
	c.metrics.RecordLineOperation(c.typ.Code, PhaseDelete, outcome)

	c.log.Info().
		Str("document_type", c.typ.Code).
		Int64("document_id", documentID).
		Int64("line_id", lineID).
		Int64("actor_id", s.PersonID).
		Str("outcome", outcome).
		Msg("Line item deleted")
	c.effects.appendAudit(ctx, auditEntry(c.typ, documentID, repository.AuditLineDeleted, s.PersonID,
		map[string]interface{}{"lineId": lineID, "outcome": outcome}))
	return nil
}

// Approve records the caller's approval without opening a session
func (c *SessionController) Approve(ctx context.Context, s auth.Session, documentID int64) (ApprovalView, error) {
	return c.tracker.Approve(ctx, s, documentID)
}

// Disapprove records the caller's disapproval without opening a session
func (c *SessionController) Disapprove(ctx context.Context, s auth.Session, documentID int64) (ApprovalView, error) {
	return c.tracker.Disapprove(ctx, s, documentID)
}

// Status reads the caller's own approval record on documentID
func (c *SessionController) Status(ctx context.Context, s auth.Session, documentID int64) (ApprovalView, error) {
	if err := s.RequireCredential(); err != nil {
		return ApprovalView{}, err
	}
	status, err := c.tracker.Refresh(ctx, s, documentID, s.PersonID)
	if err != nil {
		return ApprovalView{Status: document.StatusPending, Authoritative: false}, err
	}
	return ApprovalView{Status: status, Authoritative: true}, nil
}

// Audit returns the document's audit trail
func (c *SessionController) Audit(ctx context.Context, documentID int64, limit int) ([]*repository.AuditEntry, error) {
	return c.audit.ListByDocument(ctx, c.typ.Code, documentID, limit)
}

// DocumentSession owns one document's editable state for one caller. Calls
// on a session are serialized: a submit finishes its header write before any
// line operation starts.
type DocumentSession struct {
	ctl      *SessionController
	session  auth.Session
	resolver *CatalogResolver

	mu       sync.Mutex
	header   document.Header
	lines    []document.LineItem
	status   ApprovalView
	warnings []string
}

// SubmitResult reports a submit. Reconcile is nil when the submit stopped
// before line reconciliation.
type SubmitResult struct {
	Header    document.Header  `json:"header"`
	Created   bool             `json:"created"`
	Reconcile *ReconcileResult `json:"reconcile,omitempty"`
}

// Header returns a copy of the current header
func (d *DocumentSession) Header() document.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.header.Clone()
}

// SetHeader applies an edited header. Identity, series and audit fields are
// kept from the loaded document; a draft keeps its default company when the
// edit leaves it unset.
func (d *DocumentSession) SetHeader(h document.Header) {
	d.mu.Lock()
	defer d.mu.Unlock()
	merged := d.header.MergeEdit(h)
	if merged.IsDraft() && merged.CompanyID == 0 {
		merged.CompanyID = d.ctl.defaults.CompanyID
	}
	d.header = merged
	d.resolver.EnrichHeader(&d.header)
}

// Lines returns a copy of the current lines
func (d *DocumentSession) Lines() []document.LineItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	return cloneLines(d.lines)
}

// AddLine appends a draft line and returns it
func (d *DocumentSession) AddLine(f document.LineFields) document.LineItem {
	d.mu.Lock()
	defer d.mu.Unlock()
	l := document.NewLineItem(f)
	d.lines = append(d.lines, l)
	document.Renumber(d.lines)
	d.resolver.EnrichLines(d.lines)
	return d.lines[len(d.lines)-1]
}

// UpdateLine edits the line with localID
func (d *DocumentSession) UpdateLine(localID uuid.UUID, f document.LineFields) (document.LineItem, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.lines {
		if d.lines[i].LocalID == localID {
			d.lines[i].Apply(f)
			d.resolver.EnrichLines(d.lines[i : i+1])
			return d.lines[i], nil
		}
	}
	return document.LineItem{}, errors.NotFound("line", localID)
}

// RemoveLine drops a line from the edited set. Nothing is sent upstream until
// Submit, which deletes removed Stored lines.
func (d *DocumentSession) RemoveLine(localID uuid.UUID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := range d.lines {
		if d.lines[i].LocalID == localID {
			d.lines = append(d.lines[:i], d.lines[i+1:]...)
			document.Renumber(d.lines)
			return nil
		}
	}
	return errors.NotFound("line", localID)
}

// Validate checks the current header against lines
func (d *DocumentSession) Validate(lines []document.LineItem) map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return ValidateDocument(d.ctl.typ, d.header, lines)
}

// Submit validates, writes the header (creating it when new) and reconciles
// lines against a fresh read of the persisted lines. A nil lines submits the
// session's own lines. A header failure aborts before any line call; a line
// failure leaves the header committed and returns a *ReconcileError together
// with the partial result. Submit never changes approval.
func (d *DocumentSession) Submit(ctx context.Context, lines []document.LineItem) (*SubmitResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	c := d.ctl
	s := d.session
	if lines == nil {
		lines = cloneLines(d.lines)
	} else {
		lines = cloneLines(lines)
	}

	if err := errors.Validation(ValidateDocument(c.typ, d.header, lines)); err != nil {
		c.metrics.RecordSubmit(c.typ.Code, "invalid")
		return nil, err
	}
	if err := checkDuplicateIDs(lines); err != nil {
		c.metrics.RecordSubmit(c.typ.Code, "invalid")
		return nil, err
	}
	if err := s.RequireActor(); err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	if d.header.IsDraft() {
		created, err := c.docs.CreateHeader(ctx, s, d.header)
		if err != nil {
			c.metrics.RecordSubmit(c.typ.Code, "header_failed")
			c.log.Error().Err(err).Int64("actor_id", s.PersonID).Msg("Header create failed, no line items sent")
			return nil, err
		}
		d.header.ID = created.ID
		d.header.Series = created.Series
		d.header.RowVersion = created.RowVersion
		d.header.CreatedByID = s.PersonID
		d.header.CreatedAt = created.CreatedAt
		result.Created = true
		c.log.Info().
			Str("document_type", c.typ.Code).
			Int64("document_id", d.header.ID).
			Str("series", d.header.Series).
			Int64("actor_id", s.PersonID).
			Msg("Document created")
	} else {
		if err := c.docs.UpdateHeader(ctx, s, d.header); err != nil {
			c.metrics.RecordSubmit(c.typ.Code, "header_failed")
			c.log.Error().Err(err).Int64("document_id", d.header.ID).Int64("actor_id", s.PersonID).Msg("Header update failed, no line items sent")
			return nil, err
		}
	}
	documentID := d.header.ID
	result.Header = d.header.Clone()

	persisted, err := c.docs.ListLines(ctx, s, documentID)
	if err != nil {
		c.metrics.RecordSubmit(c.typ.Code, "partial")
		return result, fmt.Errorf("header saved but persisted lines could not be read: %w", err)
	}

	rec, err := c.reconciler.Reconcile(ctx, s, documentID, persisted, lines)
	if rec != nil {
		d.resolver.EnrichLines(rec.Lines)
		d.lines = cloneLines(rec.Lines)
		result.Reconcile = rec
	}

	meta := map[string]interface{}{"created": result.Created}
	var lineMeta map[string]interface{}
	if rec != nil {
		lineMeta = map[string]interface{}{
			"created": len(rec.Created),
			"updated": len(rec.Updated),
			"deleted": len(rec.Deleted),
		}
	}
	if err != nil {
		var re *ReconcileError
		if errors.As(err, &re) && lineMeta != nil {
			lineMeta["failedPhase"] = re.Phase
			lineMeta["failed"] = len(re.Errors)
		}
	}
	entries := []*repository.AuditEntry{auditEntry(c.typ, documentID, repository.AuditSubmitted, s.PersonID, meta)}
	if lineMeta != nil {
		entries = append(entries, auditEntry(c.typ, documentID, repository.AuditLineReconciled, s.PersonID, lineMeta))
	}
	c.effects.appendAudit(ctx, entries...)

	if err != nil {
		c.metrics.RecordSubmit(c.typ.Code, "partial")
		return result, err
	}

	c.metrics.RecordSubmit(c.typ.Code, "ok")
	c.effects.publish(ctx, client.EventDocumentSubmitted, c.typ, documentID, s.PersonID, lineMeta)
	return result, nil
}

// Status returns the viewer's last known approval status
func (d *DocumentSession) Status() ApprovalView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// RefreshStatus re-reads the viewer's own approval record
func (d *DocumentSession) RefreshStatus(ctx context.Context) (ApprovalView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, err := d.ctl.tracker.Refresh(ctx, d.session, d.header.ID, d.session.PersonID)
	if err != nil {
		d.status.Authoritative = false
		return d.status, err
	}
	d.status = ApprovalView{Status: status, Authoritative: true}
	return d.status, nil
}

// Approve records the viewer's approval and refreshes the status
func (d *DocumentSession) Approve(ctx context.Context) (ApprovalView, error) {
	return d.decide(ctx, d.ctl.tracker.Approve)
}

// Disapprove records the viewer's disapproval and refreshes the status
func (d *DocumentSession) Disapprove(ctx context.Context) (ApprovalView, error) {
	return d.decide(ctx, d.ctl.tracker.Disapprove)
}

func (d *DocumentSession) decide(ctx context.Context, fn func(context.Context, auth.Session, int64) (ApprovalView, error)) (ApprovalView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	view, err := fn(ctx, d.session, d.header.ID)
	if view.Status != "" {
		d.status = view
	}
	return view, err
}

// Warnings lists non-fatal problems met while loading the session
func (d *DocumentSession) Warnings() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.warnings...)
}

// Resolver exposes the session's catalog resolver
func (d *DocumentSession) Resolver() *CatalogResolver {
	return d.resolver
}

func cloneLines(lines []document.LineItem) []document.LineItem {
	if lines == nil {
		return []document.LineItem{}
	}
	out := make([]document.LineItem, len(lines))
	copy(out, lines)
	return out
}

// orderLines sorts by upstream line number when every line carries one
func orderLines(lines []document.LineItem) {
	for _, l := range lines {
		if l.LineNumber <= 0 {
			return
		}
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].LineNumber < lines[j].LineNumber })
}
