package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/metrics"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// Reconcile phases, executed in this order
const (
	PhaseDelete = "delete"
	PhaseCreate = "create"
	PhaseUpdate = "update"
)

// Plan is the set of child operations one reconcile pass issues. No
// persisted id appears in more than one of Deletes and Updates.
type Plan struct {
	Deletes []int64
	Creates []document.LineItem
	Updates []document.LineItem
	// Stale are current lines whose stored id is no longer upstream; they are
	// neither updated nor recreated
	Stale []document.LineItem
}

// OperationError is one failed child call
type OperationError struct {
	Phase       string
	Resource    string
	DocumentID  int64
	LocalID     uuid.UUID
	PersistedID int64
	Err         error
}

func (e *OperationError) Error() string {
	target := e.LocalID.String()
	if e.PersistedID != 0 {
		target = fmt.Sprintf("%d", e.PersistedID)
	}
	return fmt.Sprintf("%s %s %s (document %d): %v", e.Phase, e.Resource, target, e.DocumentID, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// ReconcileResult is what a pass achieved, complete or partial
type ReconcileResult struct {
	Created []document.LineItem `json:"created"`
	Updated []document.LineItem `json:"updated"`
	Deleted []int64             `json:"deleted"`
	Stale   []document.LineItem `json:"stale,omitempty"`
	// Lines is the surviving set in submitted order, numbered 1..N
	Lines []document.LineItem `json:"lines"`
}

// ReconcileError reports the phase that failed with each failed operation.
// Operations that succeeded before it are not rolled back; Result shows them.
type ReconcileError struct {
	Phase  string
	Errors []*OperationError
	Result *ReconcileResult
}

func (e *ReconcileError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("reconcile %s phase failed: %v", e.Phase, e.Errors[0])
	}
	return fmt.Sprintf("reconcile %s phase failed: %d operations failed, first: %v", e.Phase, len(e.Errors), e.Errors[0])
}

func (e *ReconcileError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, op := range e.Errors {
		out[i] = op
	}
	return out
}

// LineReconciler diffs persisted against edited lines and applies the
// difference upstream: deletes, then creates, then updates.
type LineReconciler struct {
	docs           client.DocumentsClientInterface
	maxConcurrency int
	log            *logger.Logger
	metrics        *metrics.Metrics
}

// NewLineReconciler creates a reconciler; maxConcurrency bounds the calls in
// flight within one phase
func NewLineReconciler(docs client.DocumentsClientInterface, maxConcurrency int, log *logger.Logger, m *metrics.Metrics) *LineReconciler {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	return &LineReconciler{
		docs:           docs,
		maxConcurrency: maxConcurrency,
		log:            log,
		metrics:        m,
	}
}

// Plan partitions the edited lines. It performs no I/O.
func (r *LineReconciler) Plan(persisted, current []document.LineItem) Plan {
	return diffLines(persisted, current)
}

func diffLines(persisted, current []document.LineItem) Plan {
	stored := make(map[int64]bool, len(persisted))
	for _, l := range persisted {
		if id, ok := l.PersistedID(); ok {
			stored[id] = true
		}
	}

	var plan Plan
	kept := make(map[int64]bool, len(current))
	for _, l := range current {
		id, ok := l.PersistedID()
		switch {
		case !ok:
			plan.Creates = append(plan.Creates, l)
		case stored[id]:
			kept[id] = true
			plan.Updates = append(plan.Updates, l)
		default:
			plan.Stale = append(plan.Stale, l)
		}
	}

	queued := make(map[int64]bool)
	for _, l := range persisted {
		id, ok := l.PersistedID()
		if !ok || kept[id] || queued[id] {
			continue
		}
		queued[id] = true
		plan.Deletes = append(plan.Deletes, id)
	}
	return plan
}

// Reconcile applies the plan for documentID. It fails fast without any call
// when the session has no actor. The first phase with a failure ends the
// pass; the returned *ReconcileError carries the partial result. Nothing is
// retried: running Reconcile again against freshly read persisted lines
// converges.
func (r *LineReconciler) Reconcile(ctx context.Context, s auth.Session, documentID int64, persisted, current []document.LineItem) (*ReconcileResult, error) {
	if err := s.RequireActor(); err != nil {
		return nil, err
	}
	if documentID == 0 {
		return nil, errors.Precondition("line items cannot be reconciled before the document exists")
	}
	if err := checkDuplicateIDs(current); err != nil {
		return nil, err
	}

	plan := diffLines(persisted, current)
	typ := r.docs.Type()

	// final numbering is known up front, so creates and updates carry it
	stale := make(map[uuid.UUID]bool, len(plan.Stale))
	for _, l := range plan.Stale {
		stale[l.LocalID] = true
	}
	numbers := make(map[uuid.UUID]int, len(current))
	n := 0
	for _, l := range current {
		if !stale[l.LocalID] {
			n++
			numbers[l.LocalID] = n
		}
	}
	for i := range plan.Creates {
		plan.Creates[i].LineNumber = numbers[plan.Creates[i].LocalID]
	}
	for i := range plan.Updates {
		plan.Updates[i].LineNumber = numbers[plan.Updates[i].LocalID]
	}

	result := &ReconcileResult{Stale: plan.Stale}
	createdByLocal := make(map[uuid.UUID]document.LineItem, len(plan.Creates))

	finish := func() {
		result.Lines = survivingLines(current, stale, createdByLocal)
	}

	// deletes
	deleted := make([]bool, len(plan.Deletes))
	failures := r.runPhase(len(plan.Deletes), func(i int) *OperationError {
		id := plan.Deletes[i]
		err := r.docs.DeleteLine(ctx, s, id)
		switch {
		case err == nil:
			r.metrics.RecordLineOperation(typ.Code, PhaseDelete, "ok")
		case errors.IsCode(err, errors.ErrCodeGone):
			r.metrics.RecordLineOperation(typ.Code, PhaseDelete, "gone")
		default:
			r.metrics.RecordLineOperation(typ.Code, PhaseDelete, "error")
			return &OperationError{Phase: PhaseDelete, Resource: typ.ChildResource(), DocumentID: documentID, PersistedID: id, Err: err}
		}
		deleted[i] = true
		return nil
	})
	for i, ok := range deleted {
		if ok {
			result.Deleted = append(result.Deleted, plan.Deletes[i])
		}
	}
	if len(failures) > 0 {
		finish()
		return result, r.fail(PhaseDelete, documentID, s, failures, result)
	}

	// creates
	created := make([]*document.LineItem, len(plan.Creates))
	failures = r.runPhase(len(plan.Creates), func(i int) *OperationError {
		l := plan.Creates[i]
		id, err := r.docs.CreateLine(ctx, s, documentID, l)
		if err != nil {
			r.metrics.RecordLineOperation(typ.Code, PhaseCreate, "error")
			return &OperationError{Phase: PhaseCreate, Resource: typ.ChildResource(), DocumentID: documentID, LocalID: l.LocalID, Err: err}
		}
		r.metrics.RecordLineOperation(typ.Code, PhaseCreate, "ok")
		l.Origin = document.Stored{ID: id}
		created[i] = &l
		return nil
	})
	for _, l := range created {
		if l != nil {
			createdByLocal[l.LocalID] = *l
			result.Created = append(result.Created, *l)
		}
	}
	if len(failures) > 0 {
		finish()
		return result, r.fail(PhaseCreate, documentID, s, failures, result)
	}

	// updates
	updated := make([]bool, len(plan.Updates))
	failures = r.runPhase(len(plan.Updates), func(i int) *OperationError {
		l := plan.Updates[i]
		if err := r.docs.UpdateLine(ctx, s, documentID, l); err != nil {
			r.metrics.RecordLineOperation(typ.Code, PhaseUpdate, "error")
			id, _ := l.PersistedID()
			return &OperationError{Phase: PhaseUpdate, Resource: typ.ChildResource(), DocumentID: documentID, LocalID: l.LocalID, PersistedID: id, Err: err}
		}
		r.metrics.RecordLineOperation(typ.Code, PhaseUpdate, "ok")
		updated[i] = true
		return nil
	})
	for i, ok := range updated {
		if ok {
			result.Updated = append(result.Updated, plan.Updates[i])
		}
	}
	finish()
	if len(failures) > 0 {
		return result, r.fail(PhaseUpdate, documentID, s, failures, result)
	}

	event := r.log.Info().
		Str("document_type", typ.Code).
		Int64("document_id", documentID).
		Int64("actor_id", s.PersonID).
		Int("created", len(result.Created)).
		Int("updated", len(result.Updated)).
		Int("deleted", len(result.Deleted))
	if len(result.Stale) > 0 {
		event = event.Int("stale", len(result.Stale))
	}
	event.Msg("Line items reconciled")

	return result, nil
}

// runPhase runs n independent operations with bounded concurrency and
// returns every failure, ordered by operation index.
func (r *LineReconciler) runPhase(n int, op func(i int) *OperationError) []*OperationError {
	if n == 0 {
		return nil
	}
	results := make([]*OperationError, n)

	var g errgroup.Group
	g.SetLimit(r.maxConcurrency)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			results[i] = op(i)
			return nil
		})
	}
	_ = g.Wait()

	var failures []*OperationError
	for _, f := range results {
		if f != nil {
			failures = append(failures, f)
		}
	}
	return failures
}

func (r *LineReconciler) fail(phase string, documentID int64, s auth.Session, failures []*OperationError, result *ReconcileResult) error {
	r.log.Error().
		Err(failures[0]).
		Str("document_type", r.docs.Type().Code).
		Str("phase", phase).
		Int64("document_id", documentID).
		Int64("actor_id", s.PersonID).
		Int("failed", len(failures)).
		Int("created", len(result.Created)).
		Int("deleted", len(result.Deleted)).
		Msg("Line item reconciliation stopped")
	return &ReconcileError{Phase: phase, Errors: failures, Result: result}
}

// survivingLines is current minus stale lines, with created lines swapped for
// their stored version, numbered 1..N.
func survivingLines(current []document.LineItem, stale map[uuid.UUID]bool, created map[uuid.UUID]document.LineItem) []document.LineItem {
	out := make([]document.LineItem, 0, len(current))
	for _, l := range current {
		if stale[l.LocalID] {
			continue
		}
		if c, ok := created[l.LocalID]; ok {
			l = c
		}
		out = append(out, l)
	}
	document.Renumber(out)
	return out
}

func checkDuplicateIDs(current []document.LineItem) error {
	seenID := make(map[int64]bool, len(current))
	seenLocal := make(map[uuid.UUID]bool, len(current))
	for i, l := range current {
		if seenLocal[l.LocalID] {
			return errors.InvalidInput(fmt.Sprintf("lines[%d].localId", i+1), "duplicate local id")
		}
		seenLocal[l.LocalID] = true
		if id, ok := l.PersistedID(); ok {
			if seenID[id] {
				return errors.InvalidInput(fmt.Sprintf("lines[%d].persistedId", i+1), fmt.Sprintf("line %d appears more than once", id))
			}
			seenID[id] = true
		}
	}
	return nil
}
