package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/document"
	"github.com/pesio-ai/be-freight-documents/internal/repository"
)

// fakeUpstream is an in-memory ERP implementing the client interfaces
type fakeUpstream struct {
	mu  sync.Mutex
	typ document.Type

	nextID    int64
	headers   map[int64]document.Header
	lines     map[int64]document.LineItem // line id -> line
	lineDoc   map[int64]int64             // line id -> document id
	approvals map[[2]int64]bool

	calls   []string
	counts  map[string]int
	fail    map[string]error
	failNth map[string]int

	catalogs     map[document.Catalog][]document.Reference
	catalogErr   map[document.Catalog]error
	catalogCalls map[document.Catalog]int
}

func newFakeUpstream(code string) *fakeUpstream {
	typ, err := document.Lookup(code)
	if err != nil {
		panic(err)
	}
	return &fakeUpstream{
		typ:          typ,
		nextID:       100,
		headers:      make(map[int64]document.Header),
		lines:        make(map[int64]document.LineItem),
		lineDoc:      make(map[int64]int64),
		approvals:    make(map[[2]int64]bool),
		counts:       make(map[string]int),
		fail:         make(map[string]error),
		failNth:      make(map[string]int),
		catalogs:     make(map[document.Catalog][]document.Reference),
		catalogErr:   make(map[document.Catalog]error),
		catalogCalls: make(map[document.Catalog]int),
	}
}

var errBoom = errors.Wrap(fmt.Errorf("status 500"), errors.ErrCodeUpstream, "upstream request failed")

func (f *fakeUpstream) record(call string) error {
	f.calls = append(f.calls, call)
	f.counts[call]++
	if err, ok := f.fail[call]; ok {
		return err
	}
	if n, ok := f.failNth[call]; ok && f.counts[call] == n {
		return errBoom
	}
	return nil
}

func (f *fakeUpstream) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// seed stores a header and its lines and returns the stored lines
func (f *fakeUpstream) seed(h document.Header, lines ...document.LineFields) []document.LineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers[h.ID] = h
	var out []document.LineItem
	for i, fields := range lines {
		f.nextID++
		l := document.StoredLineItem(f.nextID, fields)
		l.LineNumber = i + 1
		f.lines[f.nextID] = l
		f.lineDoc[f.nextID] = h.ID
		out = append(out, l)
	}
	return out
}

func (f *fakeUpstream) seedLine(documentID, id int64, fields document.LineFields) document.LineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	l := document.StoredLineItem(id, fields)
	f.lines[id] = l
	f.lineDoc[id] = documentID
	return l
}

func (f *fakeUpstream) documentLines(documentID int64) []document.LineItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, doc := range f.lineDoc {
		if doc == documentID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]document.LineItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.lines[id])
	}
	return out
}

func (f *fakeUpstream) Type() document.Type { return f.typ }

func (f *fakeUpstream) List(ctx context.Context, s auth.Session, opts client.ListOptions) (*client.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("list"); err != nil {
		return nil, err
	}
	page := &client.Page{}
	for _, h := range f.headers {
		page.Items = append(page.Items, h)
	}
	sort.Slice(page.Items, func(i, j int) bool { return page.Items[i].ID < page.Items[j].ID })
	page.TotalRecords = len(page.Items)
	return page, nil
}

func (f *fakeUpstream) Get(ctx context.Context, s auth.Session, id int64) (*client.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("get:%d", id)); err != nil {
		return nil, err
	}
	h, ok := f.headers[id]
	if !ok {
		return nil, errors.NotFound(f.typ.Label, id)
	}
	return &client.Snapshot{Header: h}, nil
}

func (f *fakeUpstream) CreateHeader(ctx context.Context, s auth.Session, h document.Header) (*document.Header, error) {
	if err := s.RequireActor(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create-header"); err != nil {
		return nil, err
	}
	f.nextID++
	h.ID = f.nextID
	h.Series = fmt.Sprintf("DOC-%d", h.ID)
	f.headers[h.ID] = h
	return &h, nil
}

func (f *fakeUpstream) UpdateHeader(ctx context.Context, s auth.Session, h document.Header) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("update-header:%d", h.ID)); err != nil {
		return err
	}
	f.headers[h.ID] = h
	return nil
}

func (f *fakeUpstream) DeleteHeader(ctx context.Context, s auth.Session, id int64) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("delete-header:%d", id)); err != nil {
		return err
	}
	delete(f.headers, id)
	return nil
}

func (f *fakeUpstream) ListLines(ctx context.Context, s auth.Session, documentID int64) ([]document.LineItem, error) {
	f.mu.Lock()
	err := f.record(fmt.Sprintf("list-lines:%d", documentID))
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.documentLines(documentID), nil
}

func (f *fakeUpstream) CreateLine(ctx context.Context, s auth.Session, documentID int64, l document.LineItem) (int64, error) {
	if err := s.RequireActor(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create:" + fmt.Sprint(l.ItemID)); err != nil {
		return 0, err
	}
	f.nextID++
	l.Origin = document.Stored{ID: f.nextID}
	f.lines[f.nextID] = l
	f.lineDoc[f.nextID] = documentID
	return f.nextID, nil
}

func (f *fakeUpstream) UpdateLine(ctx context.Context, s auth.Session, documentID int64, l document.LineItem) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := l.PersistedID()
	if err := f.record(fmt.Sprintf("update:%d", id)); err != nil {
		return err
	}
	f.lines[id] = l
	return nil
}

func (f *fakeUpstream) DeleteLine(ctx context.Context, s auth.Session, lineID int64) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("delete:%d", lineID)); err != nil {
		return err
	}
	if _, ok := f.lines[lineID]; !ok {
		return errors.New(errors.ErrCodeGone, "already deleted")
	}
	delete(f.lines, lineID)
	delete(f.lineDoc, lineID)
	return nil
}

func (f *fakeUpstream) Approve(ctx context.Context, s auth.Session, documentID int64) error {
	return f.decide(s, documentID, true)
}

func (f *fakeUpstream) Disapprove(ctx context.Context, s auth.Session, documentID int64) error {
	return f.decide(s, documentID, false)
}

func (f *fakeUpstream) decide(s auth.Session, documentID int64, approved bool) error {
	if err := s.RequireActor(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	call := "approve"
	if !approved {
		call = "disapprove"
	}
	if err := f.record(fmt.Sprintf("%s:%d", call, documentID)); err != nil {
		return err
	}
	f.approvals[[2]int64{documentID, s.PersonID}] = approved
	return nil
}

func (f *fakeUpstream) ApprovalRecord(ctx context.Context, s auth.Session, documentID, approverID int64) (*document.ApprovalRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(fmt.Sprintf("approval:%d:%d", documentID, approverID)); err != nil {
		return nil, err
	}
	approved, ok := f.approvals[[2]int64{documentID, approverID}]
	if !ok {
		return nil, nil
	}
	return &document.ApprovalRecord{DocumentID: documentID, ApproverID: approverID, ApprovedYN: approved}, nil
}

func (f *fakeUpstream) ListReference(ctx context.Context, s auth.Session, c document.Catalog) ([]document.Reference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.catalogCalls[c]++
	if err := f.catalogErr[c]; err != nil {
		return nil, err
	}
	return f.catalogs[c], nil
}

// memoryAudit records audit entries for assertions
type memoryAudit struct {
	mu      sync.Mutex
	entries []*repository.AuditEntry
}

func (m *memoryAudit) Append(ctx context.Context, entries ...*repository.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memoryAudit) ListByDocument(ctx context.Context, documentType string, documentID int64, limit int) ([]*repository.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*repository.AuditEntry
	for _, e := range m.entries {
		if e.DocumentType == documentType && e.DocumentID == documentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memoryAudit) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.Action)
	}
	return out
}

// recordingPublisher captures published event types
type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) PublishDocumentEvent(ctx context.Context, eventType string, t document.Type, documentID, actorID int64, payload map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, eventType)
}

var actor = auth.NewSession("token", 7)

func qty(n int64) decimal.Decimal { return decimal.NewFromInt(n) }

func testLog() *logger.Logger { return logger.Nop() }

func indexOf(calls []string, call string) int {
	for i, c := range calls {
		if c == call {
			return i
		}
	}
	return -1
}
