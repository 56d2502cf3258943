package document

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

func TestLookup(t *testing.T) {
	typ, err := Lookup("supplier-quotation")
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !typ.Priced || typ.ParentKey != "SupplierQuotationID" {
		t.Errorf("unexpected type %+v", typ)
	}
	if typ.ChildResource() != "supplier-quotation-parcels" {
		t.Errorf("child resource = %s", typ.ChildResource())
	}

	if _, err := Lookup("purchase-order"); !errors.IsCode(err, errors.ErrCodeNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if len(Types()) != 4 {
		t.Errorf("Types() = %d entries", len(Types()))
	}
}

func TestCatalog_FallbackLabel(t *testing.T) {
	if got := Items.FallbackLabel(99); got != "Unknown Item (99)" {
		t.Errorf("got %q", got)
	}
	if got := ShippingPriorities.FallbackLabel(3); got != "Unknown Shipping Priority (3)" {
		t.Errorf("got %q", got)
	}
	if _, err := ParseCatalog("planets"); err == nil {
		t.Error("expected error for unknown catalog")
	}
}

func TestLineItem_Origin(t *testing.T) {
	draft := NewLineItem(LineFields{ItemID: 1, UOMID: 2, Quantity: decimal.NewFromInt(3)})
	if _, ok := draft.PersistedID(); ok {
		t.Error("draft line should have no persisted id")
	}

	stored := StoredLineItem(17, LineFields{ItemID: 1})
	if id, ok := stored.PersistedID(); !ok || id != 17 {
		t.Errorf("PersistedID() = %d, %v", id, ok)
	}
	if draft.LocalID == stored.LocalID {
		t.Error("local ids must be unique")
	}
}

func TestLineItem_AmountRecomputed(t *testing.T) {
	l := NewLineItem(LineFields{Quantity: decimal.NewFromInt(4), Rate: decimal.RequireFromString("2.5")})
	if !l.Amount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("amount = %s", l.Amount)
	}
	l.SetRate(decimal.NewFromInt(3))
	if !l.Amount.Equal(decimal.NewFromInt(12)) {
		t.Errorf("after SetRate amount = %s", l.Amount)
	}
	l.SetQuantity(decimal.NewFromInt(1))
	if !l.Amount.Equal(decimal.NewFromInt(3)) {
		t.Errorf("after SetQuantity amount = %s", l.Amount)
	}
}

func TestLineItem_JSON(t *testing.T) {
	var l LineItem
	if err := json.Unmarshal([]byte(`{"persistedId":5,"itemId":1,"uomId":2,"quantity":"3","rate":2}`), &l); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if id, ok := l.PersistedID(); !ok || id != 5 {
		t.Errorf("persisted id = %d, %v", id, ok)
	}
	if !l.Amount.Equal(decimal.NewFromInt(6)) {
		t.Errorf("amount = %s", l.Amount)
	}

	var draft LineItem
	if err := json.Unmarshal([]byte(`{"persistedId":null,"itemId":1,"quantity":1}`), &draft); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := draft.PersistedID(); ok {
		t.Error("null persistedId should decode as draft")
	}

	raw, err := json.Marshal(draft)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back map[string]interface{}
	_ = json.Unmarshal(raw, &back)
	if back["persistedId"] != nil {
		t.Errorf("draft persistedId = %v", back["persistedId"])
	}
	if back["localId"] != draft.LocalID.String() {
		t.Errorf("localId = %v", back["localId"])
	}
}

func TestHeader_MergeEditKeepsIdentity(t *testing.T) {
	now := time.Now()
	saved := Header{ID: 42, Series: "SRFQ-0042", CreatedByID: 7, CreatedAt: &now, RowVersion: "AAA="}
	edit := Header{ID: 1, Series: "hacked", CustomerID: 9, RowVersion: "zzz"}

	merged := saved.MergeEdit(edit)
	if merged.ID != 42 || merged.Series != "SRFQ-0042" || merged.RowVersion != "AAA=" || merged.CreatedByID != 7 {
		t.Errorf("identity not preserved: %+v", merged)
	}
	if merged.CustomerID != 9 {
		t.Errorf("edit not applied: %+v", merged)
	}
}

func TestHeader_IsDraft(t *testing.T) {
	saved := Header{ID: 42}
	if saved.Clone().IsDraft() {
		t.Error("saved header reported as draft")
	}
	if !(Header{CompanyID: 1}).MergeEdit(Header{CustomerID: 5}).IsDraft() {
		t.Error("unsaved header should be a draft")
	}
}

func TestHeader_References(t *testing.T) {
	h := Header{CompanyID: 1, CollectionAddressID: 4, DestinationAddressID: 5}
	refs := h.References()
	if len(refs) != 3 {
		t.Fatalf("refs = %+v", refs)
	}
	if refs[1].Catalog != Addresses || refs[2].Field != "destinationAddress" {
		t.Errorf("unexpected refs %+v", refs)
	}
}

func TestApprovalRecord_Status(t *testing.T) {
	var none *ApprovalRecord
	if none.Status() != StatusPending {
		t.Error("nil record should be pending")
	}
	if (&ApprovalRecord{ApprovedYN: true}).Status() != StatusApproved {
		t.Error("expected approved")
	}
	if (&ApprovalRecord{}).Status() != StatusDisapproved {
		t.Error("expected disapproved")
	}
}
