package document

import "time"

// ApprovalStatus is one viewer's decision on a document. There is no
// document-wide status: two approvers can see different values.
type ApprovalStatus string

const (
	StatusPending     ApprovalStatus = "Pending"
	StatusApproved    ApprovalStatus = "Approved"
	StatusDisapproved ApprovalStatus = "Disapproved"
)

// ApprovalRecord is the stored decision of one approver
type ApprovalRecord struct {
	DocumentID int64     `json:"documentId"`
	ApproverID int64     `json:"approverId"`
	ApprovedYN bool      `json:"approvedYN"`
	DecidedAt  time.Time `json:"decidedAt,omitempty"`
}

// Status maps a record (nil = none) onto the viewer's status
func (r *ApprovalRecord) Status() ApprovalStatus {
	switch {
	case r == nil:
		return StatusPending
	case r.ApprovedYN:
		return StatusApproved
	default:
		return StatusDisapproved
	}
}
