package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/common/httpclient"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

var testSession = auth.NewSession("tok", 7)

func newTestClient(t *testing.T, code string, h http.HandlerFunc) *DocumentsClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	typ, err := document.Lookup(code)
	if err != nil {
		t.Fatal(err)
	}
	return NewDocumentsClient(httpclient.NewClient(srv.URL), typ)
}

func TestList_Shapes(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		wantCount int
		wantTotal int
	}{
		{"envelope with pagination", `{"data":[{"SalesRFQID":1,"Series":"A"},{"SalesRFQID":2}],"pagination":{"totalRecords":40}}`, 2, 40},
		{"envelope without pagination", `{"data":[{"id":"3"}]}`, 1, 1},
		{"bare array", `[{"id":1},{"id":2},{"id":3}]`, 3, 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/sales-rfq" || r.URL.Query().Get("pageSize") != "20" {
					t.Errorf("unexpected request %s", r.URL)
				}
				_, _ = w.Write([]byte(tc.body))
			})
			page, err := c.List(context.Background(), testSession, ListOptions{PageNumber: 1, PageSize: 20})
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(page.Items) != tc.wantCount || page.TotalRecords != tc.wantTotal {
				t.Errorf("got %d items total %d", len(page.Items), page.TotalRecords)
			}
			if page.Items[0].ID == 0 {
				t.Error("id not normalized")
			}
		})
	}
}

func TestGet_EmbeddedChildrenAndCasing(t *testing.T) {
	c := newTestClient(t, "supplier-quotation", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{
			"SupplierQuotationID":"42","Series":"SQ-42","SupplierID":5,"currencyID":"2",
			"RowVersion":"AAAAB9E=","DeliveryDate":"2024-03-01T00:00:00",
			"parcels":[{"SupplierQuotationParcelID":9,"ItemID":1,"UOMID":2,"Quantity":5,"Rate":"1.5","Amount":7.5}]
		}}`))
	})

	snap, err := c.Get(context.Background(), testSession, 42)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	h := snap.Header
	if h.ID != 42 || h.Series != "SQ-42" || h.SupplierID != 5 || h.CurrencyID != 2 || h.RowVersion != "AAAAB9E=" {
		t.Errorf("header = %+v", h)
	}
	if h.DeliveryDate == nil || h.DeliveryDate.Day() != 1 {
		t.Errorf("delivery date = %v", h.DeliveryDate)
	}
	if !snap.Embedded || len(snap.Lines) != 1 {
		t.Fatalf("lines = %+v", snap.Lines)
	}
	if id, _ := snap.Lines[0].PersistedID(); id != 9 {
		t.Errorf("line id = %d", id)
	}
	if !snap.Lines[0].Amount.Equal(decimal.RequireFromString("7.5")) {
		t.Errorf("amount = %s", snap.Lines[0].Amount)
	}
}

func TestGet_NotFound(t *testing.T) {
	c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	if _, err := c.Get(context.Background(), testSession, 1); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateHeader_ReadsIDAndSendsActor(t *testing.T) {
	var body map[string]interface{}
	c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"SalesRFQID":101,"Series":"SRFQ-101"}`))
	})

	created, err := c.CreateHeader(context.Background(), testSession, document.Header{CompanyID: 1, CustomerID: 3, SupplierID: 99})
	if err != nil {
		t.Fatalf("CreateHeader: %v", err)
	}
	if created.ID != 101 || created.Series != "SRFQ-101" {
		t.Errorf("created = %+v", created)
	}
	if body["createdById"] != float64(7) || body["customerId"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["supplierId"]; ok {
		t.Error("sales RFQ should not send a supplier")
	}
}

func TestUpdateHeader_SendsClearedFieldsAsNull(t *testing.T) {
	var body map[string]interface{}
	var path string
	c := newTestClient(t, "purchase-rfq", func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.WriteHeader(http.StatusOK)
	})

	h := document.Header{ID: 9, CompanyID: 1, SupplierID: 4, ServiceTypeID: 2}
	if err := c.UpdateHeader(context.Background(), testSession, h); err != nil {
		t.Fatalf("UpdateHeader: %v", err)
	}
	if path != "/purchase-rfq/9" {
		t.Errorf("path = %s", path)
	}
	if body["supplierId"] != float64(4) || body["modifiedById"] != float64(7) {
		t.Errorf("body = %v", body)
	}
	for _, key := range []string{"shippingPriorityId", "collectionAddressId", "deliveryDate"} {
		v, ok := body[key]
		if !ok || v != nil {
			t.Errorf("%s = %v (present %v), want explicit null", key, v, ok)
		}
	}
	if _, ok := body["customerId"]; ok {
		t.Error("purchase RFQ should not send a customer")
	}
}

func TestCreateHeader_MissingIDIsUpstreamError(t *testing.T) {
	c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"ok"}`))
	})
	if _, err := c.CreateHeader(context.Background(), testSession, document.Header{}); !errors.IsCode(err, errors.ErrCodeUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}

func TestMutations_RequireActorBeforeAnyCall(t *testing.T) {
	var calls int32
	c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	})
	ctx := context.Background()
	noActor := auth.NewSession("tok", 0)

	errs := []error{
		func() error { _, err := c.CreateHeader(ctx, noActor, document.Header{}); return err }(),
		c.UpdateHeader(ctx, noActor, document.Header{ID: 1}),
		c.DeleteHeader(ctx, noActor, 1),
		func() error { _, err := c.CreateLine(ctx, noActor, 1, document.NewLineItem(document.LineFields{})); return err }(),
		c.DeleteLine(ctx, noActor, 1),
		c.Approve(ctx, noActor, 1),
		c.Disapprove(ctx, auth.Session{PersonID: 7}, 1),
	}
	for i, err := range errs {
		if !errors.IsCode(err, errors.ErrCodePrecondition) {
			t.Errorf("call %d: expected precondition failure, got %v", i, err)
		}
	}
	if calls != 0 {
		t.Errorf("%d requests reached the server", calls)
	}
}

func TestDeleteLine_AlreadyDeletedIsGone(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   errors.ErrorCode
	}{
		{"not found", http.StatusNotFound, "", errors.ErrCodeGone},
		{"gone", http.StatusGone, "", errors.ErrCodeGone},
		{"message", http.StatusBadRequest, `{"message":"Record already deleted"}`, errors.ErrCodeGone},
		{"server error", http.StatusInternalServerError, "boom", errors.ErrCodeUpstream},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "purchase-rfq", func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodDelete || r.URL.Path != "/purchase-rfq-parcels/5" {
					t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			})
			err := c.DeleteLine(context.Background(), testSession, 5)
			if got := errors.CodeOf(err); got != tc.want {
				t.Errorf("code = %s, want %s (%v)", got, tc.want, err)
			}
		})
	}
}

func TestListLines_QueryAndSkipsDeleted(t *testing.T) {
	c := newTestClient(t, "sales-invoice", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sales-invoice-parcels" || r.URL.Query().Get("SalesInvoiceID") != "8" {
			t.Errorf("unexpected request %s", r.URL)
		}
		_, _ = w.Write([]byte(`[{"id":1,"itemId":3,"quantity":"2"},{"id":2,"isDeleted":true}]`))
	})
	lines, err := c.ListLines(context.Background(), testSession, 8)
	if err != nil {
		t.Fatalf("ListLines: %v", err)
	}
	if len(lines) != 1 || lines[0].ItemID != 3 {
		t.Errorf("lines = %+v", lines)
	}
}

func TestApprovalRecord(t *testing.T) {
	c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sales-rfq-approvals/42/7":
			_, _ = w.Write([]byte(`{"data":{"approvedYN":"Y"}}`))
		case "/sales-rfq-approvals/42/8":
			_, _ = w.Write([]byte(`{"approvedYN":false,"approverId":8}`))
		default:
			http.NotFound(w, r)
		}
	})
	ctx := context.Background()

	rec, err := c.ApprovalRecord(ctx, testSession, 42, 7)
	if err != nil || rec.Status() != document.StatusApproved || rec.ApproverID != 7 {
		t.Errorf("approver 7: %+v %v", rec, err)
	}
	rec, err = c.ApprovalRecord(ctx, testSession, 42, 8)
	if err != nil || rec.Status() != document.StatusDisapproved {
		t.Errorf("approver 8: %+v %v", rec, err)
	}
	rec, err = c.ApprovalRecord(ctx, testSession, 42, 9)
	if err != nil || rec.Status() != document.StatusPending {
		t.Errorf("approver 9: %+v %v", rec, err)
	}
}

func TestApprove_Body(t *testing.T) {
	var body map[string]int64
	var path string
	c := newTestClient(t, "sales-rfq", func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&body)
	})
	if err := c.Approve(context.Background(), testSession, 42); err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if path != "/sales-rfq/approve" || body["documentId"] != 42 || body["approverId"] != 7 {
		t.Errorf("path=%s body=%v", path, body)
	}
}

func TestCatalogClient_Labels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("pageSize") != "50" {
			t.Errorf("page size = %s", r.URL.Query().Get("pageSize"))
		}
		_, _ = w.Write([]byte(`{"data":[{"ItemID":1,"ItemName":"Widget"},{"id":"2","description":"Bolt"},{"name":"no id"}]}`))
	}))
	defer srv.Close()

	refs, err := NewCatalogClient(httpclient.NewClient(srv.URL), 50).ListReference(context.Background(), testSession, document.Items)
	if err != nil {
		t.Fatalf("ListReference: %v", err)
	}
	want := []document.Reference{{ID: 1, Label: "Widget"}, {ID: 2, Label: "Bolt"}}
	if len(refs) != len(want) {
		t.Fatalf("refs = %+v", refs)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %+v, want %+v", i, refs[i], want[i])
		}
	}
}

func TestNotificationPublisher_NilSafe(t *testing.T) {
	var p *NotificationPublisher
	p.PublishDocumentEvent(context.Background(), EventDocumentApproved, document.Type{}, 1, 2, nil)

	NewNotificationPublisher(nil, "", zerolog.Nop()).PublishDocumentEvent(context.Background(), EventDocumentApproved, document.Type{}, 1, 2, nil)
}
