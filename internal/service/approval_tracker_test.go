package service

import (
	"context"
	"testing"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/repository"
)

func newTracker(up *fakeUpstream) (*ApprovalTracker, *memoryAudit, *recordingPublisher) {
	audit := &memoryAudit{}
	events := &recordingPublisher{}
	return NewApprovalTracker(up, audit, events, testLog(), nil), audit, events
}

func TestApprovalTracker_ApproversAreIndependent(t *testing.T) {
	up := newFakeUpstream("sales-rfq")
	tracker, audit, events := newTracker(up)
	ctx := context.Background()

	view, err := tracker.Approve(ctx, actor, 42)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if view.Status != document.StatusApproved || !view.Authoritative {
		t.Errorf("view = %+v, want authoritative Approved", view)
	}

	other := auth.NewSession("token", 9)
	status, err := tracker.Refresh(ctx, other, 42, 9)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if status != document.StatusPending {
		t.Errorf("approver 9 sees %s, want Pending", status)
	}

	if got := audit.actions(); len(got) != 1 || got[0] != repository.AuditApproved {
		t.Errorf("audit = %v", got)
	}
	if len(events.events) != 1 || events.events[0] != client.EventDocumentApproved {
		t.Errorf("events = %v", events.events)
	}
}

func TestApprovalTracker_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		seed     *bool
		approve  bool
		want     document.ApprovalStatus
		conflict bool
	}{
		{name: "approve pending", approve: true, want: document.StatusApproved},
		{name: "disapprove pending", approve: false, want: document.StatusDisapproved},
		{name: "approve disapproved", seed: boolPtr(false), approve: true, want: document.StatusApproved},
		{name: "disapprove approved", seed: boolPtr(true), approve: false, want: document.StatusDisapproved},
		{name: "approve approved", seed: boolPtr(true), approve: true, want: document.StatusApproved, conflict: true},
		{name: "disapprove disapproved", seed: boolPtr(false), approve: false, want: document.StatusDisapproved, conflict: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := newFakeUpstream("purchase-rfq")
			if tt.seed != nil {
				up.approvals[[2]int64{42, actor.PersonID}] = *tt.seed
			}
			tracker, _, _ := newTracker(up)

			decide := tracker.Disapprove
			call := "disapprove:42"
			if tt.approve {
				decide, call = tracker.Approve, "approve:42"
			}
			view, err := decide(context.Background(), actor, 42)

			if tt.conflict {
				if !errors.IsCode(err, errors.ErrCodeConflict) {
					t.Fatalf("err = %v, want conflict", err)
				}
				if indexOf(up.callLog(), call) >= 0 {
					t.Errorf("%s was sent for an illegal transition", call)
				}
			} else if err != nil {
				t.Fatalf("decide: %v", err)
			}
			if view.Status != tt.want {
				t.Errorf("status = %s, want %s", view.Status, tt.want)
			}
		})
	}
}

func TestApprovalTracker_RefreshFailureAfterWrite(t *testing.T) {
	up := newFakeUpstream("sales-rfq")
	up.failNth["approval:42:7"] = 2
	tracker, _, _ := newTracker(up)

	view, err := tracker.Approve(context.Background(), actor, 42)
	if err == nil {
		t.Fatal("expected the refresh failure to be reported")
	}
	if view.Status != document.StatusApproved || view.Authoritative {
		t.Errorf("view = %+v, want non-authoritative Approved", view)
	}
	if !up.approvals[[2]int64{42, 7}] {
		t.Error("decision should still be written")
	}
}

func TestApprovalTracker_WriteFailureKeepsStatus(t *testing.T) {
	up := newFakeUpstream("sales-rfq")
	up.fail["disapprove:42"] = errBoom
	tracker, audit, _ := newTracker(up)

	view, err := tracker.Disapprove(context.Background(), actor, 42)
	if !errors.IsCode(err, errors.ErrCodeUpstream) {
		t.Fatalf("err = %v, want upstream error", err)
	}
	if view.Status != document.StatusPending {
		t.Errorf("status = %s, want Pending", view.Status)
	}
	if len(audit.actions()) != 0 {
		t.Error("failed decision should not be audited")
	}
}

func TestApprovalTracker_Preconditions(t *testing.T) {
	up := newFakeUpstream("sales-rfq")
	tracker, _, _ := newTracker(up)
	ctx := context.Background()

	if _, err := tracker.Approve(ctx, actor, 0); !errors.IsCode(err, errors.ErrCodePrecondition) {
		t.Errorf("unsaved document: err = %v, want precondition", err)
	}
	if _, err := tracker.Approve(ctx, auth.NewSession("token", 0), 42); !errors.IsCode(err, errors.ErrCodePrecondition) {
		t.Errorf("no actor: err = %v, want precondition", err)
	}
	if calls := up.callLog(); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}

	status, err := tracker.Refresh(ctx, actor, 0, 7)
	if err != nil || status != document.StatusPending {
		t.Errorf("refresh of unsaved document = %s, %v", status, err)
	}
}

func boolPtr(b bool) *bool { return &b }
