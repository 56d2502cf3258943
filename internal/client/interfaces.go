package client

import (
	"context"

	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// DocumentsClientInterface is the upstream contract for one document type
type DocumentsClientInterface interface {
	Type() document.Type
	List(ctx context.Context, s auth.Session, opts ListOptions) (*Page, error)
	Get(ctx context.Context, s auth.Session, id int64) (*Snapshot, error)
	CreateHeader(ctx context.Context, s auth.Session, h document.Header) (*document.Header, error)
	UpdateHeader(ctx context.Context, s auth.Session, h document.Header) error
	DeleteHeader(ctx context.Context, s auth.Session, id int64) error
	ListLines(ctx context.Context, s auth.Session, documentID int64) ([]document.LineItem, error)
	CreateLine(ctx context.Context, s auth.Session, documentID int64, l document.LineItem) (int64, error)
	UpdateLine(ctx context.Context, s auth.Session, documentID int64, l document.LineItem) error
	DeleteLine(ctx context.Context, s auth.Session, lineID int64) error
	Approve(ctx context.Context, s auth.Session, documentID int64) error
	Disapprove(ctx context.Context, s auth.Session, documentID int64) error
	ApprovalRecord(ctx context.Context, s auth.Session, documentID, approverID int64) (*document.ApprovalRecord, error)
}

// CatalogClientInterface loads reference catalogs
type CatalogClientInterface interface {
	ListReference(ctx context.Context, s auth.Session, c document.Catalog) ([]document.Reference, error)
}

// EventPublisherInterface publishes document events; implementations never fail the caller
type EventPublisherInterface interface {
	PublishDocumentEvent(ctx context.Context, eventType string, t document.Type, documentID, actorID int64, payload map[string]interface{})
}
