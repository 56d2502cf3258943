package repository

import "time"

// Audit actions
const (
	AuditSubmitted      = "submitted"
	AuditLineReconciled = "line_reconciled"
	AuditApproved       = "approved"
	AuditDisapproved    = "disapproved"
	AuditDeleted        = "deleted"
	AuditLineDeleted    = "line_deleted"
)

// AuditEntry is one immutable record in the document audit log.
type AuditEntry struct {
	ID           string                 `json:"id"`
	DocumentType string                 `json:"documentType"`
	DocumentID   int64                  `json:"documentId"`
	Action       string                 `json:"action"`
	PerformedBy  int64                  `json:"performedBy"`
	PerformedAt  time.Time              `json:"performedAt"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"` // arbitrary JSON context
}
