package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/httpclient"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// DocumentsClient talks to the upstream REST resources of one document type
type DocumentsClient struct {
	client *httpclient.Client
	typ    document.Type
}

// NewDocumentsClient creates a client for typ on top of a shared REST client
func NewDocumentsClient(c *httpclient.Client, typ document.Type) *DocumentsClient {
	return &DocumentsClient{client: c, typ: typ}
}

// Type returns the document type this client serves
func (c *DocumentsClient) Type() document.Type {
	return c.typ
}

// List returns one page of headers
func (c *DocumentsClient) List(ctx context.Context, s auth.Session, opts ListOptions) (*Page, error) {
	if err := s.RequireCredential(); err != nil {
		return nil, err
	}

	q := url.Values{}
	if opts.PageNumber > 0 {
		q.Set("pageNumber", strconv.Itoa(opts.PageNumber))
	}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	if opts.FromDate != nil {
		q.Set("fromDate", opts.FromDate.Format("2006-01-02"))
	}
	if opts.ToDate != nil {
		q.Set("toDate", opts.ToDate.Format("2006-01-02"))
	}

	var raw json.RawMessage
	if err := c.client.Get(ctx, s, "/"+c.typ.Resource, q, &raw); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.typ.Resource, err)
	}
	records, total, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", c.typ.Resource, err)
	}

	page := &Page{Items: make([]document.Header, 0, len(records)), TotalRecords: total}
	for _, r := range records {
		page.Items = append(page.Items, toHeader(c.typ, r))
	}
	return page, nil
}

// Get reads one header and any embedded children
func (c *DocumentsClient) Get(ctx context.Context, s auth.Session, id int64) (*Snapshot, error) {
	if err := s.RequireCredential(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	path := fmt.Sprintf("/%s/%d", c.typ.Resource, id)
	if err := c.client.Get(ctx, s, path, nil, &raw); err != nil {
		if httpclient.StatusOf(err) == http.StatusNotFound {
			return nil, errors.NotFound(c.typ.Label, id)
		}
		return nil, fmt.Errorf("failed to get %s %d: %w", c.typ.Resource, id, err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %d: %w", c.typ.Resource, id, err)
	}
	if rec == nil {
		return nil, errors.NotFound(c.typ.Label, id)
	}

	snap := &Snapshot{Header: toHeader(c.typ, rec)}
	if snap.Header.ID == 0 {
		snap.Header.ID = id
	}
	if children, ok := rec.list("parcels", "items", "lines"); ok {
		snap.Embedded = true
		snap.Lines = make([]document.LineItem, 0, len(children))
		for _, child := range children {
			snap.Lines = append(snap.Lines, toLine(c.typ, child))
		}
	}
	return snap, nil
}

// CreateHeader creates the header and returns it as stored upstream. A
// response without an id is an upstream error.
func (c *DocumentsClient) CreateHeader(ctx context.Context, s auth.Session, h document.Header) (*document.Header, error) {
	if err := s.RequireActor(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	body := headerBody(c.typ, h, "createdById", s.PersonID, false)
	if err := c.client.Post(ctx, s, "/"+c.typ.Resource, body, &raw); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", c.typ.Resource, err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", c.typ.Resource, err)
	}

	created := toHeader(c.typ, rec)
	if created.ID == 0 {
		return nil, errors.New(errors.ErrCodeUpstream, "create "+c.typ.Resource+" response carries no id")
	}
	return &created, nil
}

// UpdateHeader writes h in full; unset references and dates are sent as null.
// RowVersion is passed through when known.
func (c *DocumentsClient) UpdateHeader(ctx context.Context, s auth.Session, h document.Header) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	if h.ID == 0 {
		return errors.Precondition("cannot update an unsaved " + c.typ.Label)
	}

	path := fmt.Sprintf("/%s/%d", c.typ.Resource, h.ID)
	if err := c.client.Put(ctx, s, path, headerBody(c.typ, h, "modifiedById", s.PersonID, true), nil); err != nil {
		return fmt.Errorf("failed to update %s %d: %w", c.typ.Resource, h.ID, err)
	}
	return nil
}

// DeleteHeader soft-deletes the document
func (c *DocumentsClient) DeleteHeader(ctx context.Context, s auth.Session, id int64) error {
	if err := s.RequireActor(); err != nil {
		return err
	}

	path := fmt.Sprintf("/%s/%d", c.typ.Resource, id)
	if err := c.client.Delete(ctx, s, path, map[string]int64{"deletedById": s.PersonID}, nil); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", c.typ.Resource, id, err)
	}
	return nil
}

// ListLines reads the persisted children of a document
func (c *DocumentsClient) ListLines(ctx context.Context, s auth.Session, documentID int64) ([]document.LineItem, error) {
	if err := s.RequireCredential(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	q := url.Values{c.typ.ParentKey: {strconv.FormatInt(documentID, 10)}}
	if err := c.client.Get(ctx, s, "/"+c.typ.ChildResource(), q, &raw); err != nil {
		return nil, fmt.Errorf("failed to list %s for %d: %w", c.typ.ChildResource(), documentID, err)
	}
	records, _, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s for %d: %w", c.typ.ChildResource(), documentID, err)
	}

	lines := make([]document.LineItem, 0, len(records))
	for _, r := range records {
		if deleted, ok := r.flag("isDeleted"); ok && deleted {
			continue
		}
		lines = append(lines, toLine(c.typ, r))
	}
	return lines, nil
}

// CreateLine creates a child and returns its new id
func (c *DocumentsClient) CreateLine(ctx context.Context, s auth.Session, documentID int64, l document.LineItem) (int64, error) {
	if err := s.RequireActor(); err != nil {
		return 0, err
	}

	var raw json.RawMessage
	body := lineBody(c.typ, documentID, l, "createdById", s.PersonID)
	if err := c.client.Post(ctx, s, "/"+c.typ.ChildResource(), body, &raw); err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", c.typ.ChildResource(), err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", c.typ.ChildResource(), err)
	}
	id := rec.id(lineIDKeys(c.typ)...)
	if id == 0 {
		return 0, errors.New(errors.ErrCodeUpstream, "create "+c.typ.ChildResource()+" response carries no id")
	}
	return id, nil
}

// UpdateLine writes a Stored line
func (c *DocumentsClient) UpdateLine(ctx context.Context, s auth.Session, documentID int64, l document.LineItem) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	id, ok := l.PersistedID()
	if !ok {
		return errors.Precondition("cannot update a line that was never created")
	}

	path := fmt.Sprintf("/%s/%d", c.typ.ChildResource(), id)
	body := lineBody(c.typ, documentID, l, "modifiedById", s.PersonID)
	if err := c.client.Put(ctx, s, path, body, nil); err != nil {
		return fmt.Errorf("failed to update %s %d: %w", c.typ.ChildResource(), id, err)
	}
	return nil
}

// DeleteLine soft-deletes a child. A child that is already gone comes back
// as a GONE error so the caller can treat it as done.
func (c *DocumentsClient) DeleteLine(ctx context.Context, s auth.Session, lineID int64) error {
	if err := s.RequireActor(); err != nil {
		return err
	}

	path := fmt.Sprintf("/%s/%d", c.typ.ChildResource(), lineID)
	err := c.client.Delete(ctx, s, path, map[string]int64{"deletedById": s.PersonID}, nil)
	if err == nil {
		return nil
	}
	if alreadyDeleted(err) {
		return errors.Wrap(err, errors.ErrCodeGone, fmt.Sprintf("%s %d already deleted", c.typ.ChildResource(), lineID))
	}
	return fmt.Errorf("failed to delete %s %d: %w", c.typ.ChildResource(), lineID, err)
}

func alreadyDeleted(err error) bool {
	var se *httpclient.StatusError
	if !errors.As(err, &se) {
		return false
	}
	if se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusGone {
		return true
	}
	return strings.Contains(strings.ToLower(se.Body), "already deleted")
}

// Approve records the session's approval
func (c *DocumentsClient) Approve(ctx context.Context, s auth.Session, documentID int64) error {
	return c.decide(ctx, s, documentID, "approve")
}

// Disapprove records the session's disapproval
func (c *DocumentsClient) Disapprove(ctx context.Context, s auth.Session, documentID int64) error {
	return c.decide(ctx, s, documentID, "disapprove")
}

func (c *DocumentsClient) decide(ctx context.Context, s auth.Session, documentID int64, action string) error {
	if err := s.RequireActor(); err != nil {
		return err
	}

	body := map[string]int64{"documentId": documentID, "approverId": s.PersonID}
	if err := c.client.Post(ctx, s, "/"+c.typ.Resource+"/"+action, body, nil); err != nil {
		return fmt.Errorf("failed to %s %s %d: %w", action, c.typ.Resource, documentID, err)
	}
	return nil
}

// ApprovalRecord reads one approver's record; nil means Pending
func (c *DocumentsClient) ApprovalRecord(ctx context.Context, s auth.Session, documentID, approverID int64) (*document.ApprovalRecord, error) {
	if err := s.RequireCredential(); err != nil {
		return nil, err
	}

	var raw json.RawMessage
	path := fmt.Sprintf("/%s/%d/%d", c.typ.ApprovalResource(), documentID, approverID)
	if err := c.client.Get(ctx, s, path, nil, &raw); err != nil {
		if httpclient.StatusOf(err) == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read approval for %s %d: %w", c.typ.Resource, documentID, err)
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read approval for %s %d: %w", c.typ.Resource, documentID, err)
	}
	if rec == nil {
		return nil, nil
	}

	approval := toApproval(rec)
	if approval == nil {
		return nil, nil
	}
	if approval.DocumentID == 0 {
		approval.DocumentID = documentID
	}
	if approval.ApproverID == 0 {
		approval.ApproverID = approverID
	}
	return approval, nil
}
