package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// Page is one page of document headers
type Page struct {
	Items        []document.Header `json:"items"`
	TotalRecords int               `json:"totalRecords"`
}

// Snapshot is a header read with whatever children the upstream embedded
type Snapshot struct {
	Header document.Header
	Lines  []document.LineItem
	// Embedded is true when the response carried a child list, even an empty one
	Embedded bool
}

// ListOptions are the list query parameters
type ListOptions struct {
	PageNumber int
	PageSize   int
	FromDate   *time.Time
	ToDate     *time.Time
}

// record is one upstream JSON object. Field lookups ignore case because the
// upstream mixes "CustomerID", "customerId" and "customerID".
type record map[string]json.RawMessage

func (r record) raw(keys ...string) (json.RawMessage, bool) {
	for _, key := range keys {
		if v, ok := r[key]; ok && !isNull(v) {
			return v, true
		}
		for k, v := range r {
			if strings.EqualFold(k, key) && !isNull(v) {
				return v, true
			}
		}
	}
	return nil, false
}

func (r record) id(keys ...string) int64 {
	v, ok := r.raw(keys...)
	if !ok {
		return 0
	}
	id, err := parseFlexInt(v)
	if err != nil {
		return 0
	}
	return id
}

func (r record) str(keys ...string) string {
	v, ok := r.raw(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// numbers and other scalars are kept in their literal form
	return strings.Trim(string(bytes.TrimSpace(v)), `"`)
}

func (r record) dec(keys ...string) decimal.Decimal {
	v, ok := r.raw(keys...)
	if !ok {
		return decimal.Zero
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(v); err != nil {
		return decimal.Zero
	}
	return d
}

func (r record) flag(keys ...string) (bool, bool) {
	v, ok := r.raw(keys...)
	if !ok {
		return false, false
	}
	return parseFlexBool(v)
}

func (r record) date(keys ...string) *time.Time {
	s := r.str(keys...)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func (r record) list(keys ...string) ([]record, bool) {
	v, ok := r.raw(keys...)
	if !ok {
		return nil, false
	}
	var out []record
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, false
	}
	return out, true
}

func isNull(v json.RawMessage) bool {
	return len(bytes.TrimSpace(v)) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// parseFlexInt accepts 12, 12.0 and "12"
func parseFlexInt(v json.RawMessage) (int64, error) {
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(v))
	dec.UseNumber()
	var x interface{}
	if err := dec.Decode(&x); err != nil {
		return 0, err
	}
	switch t := x.(type) {
	case json.Number:
		n = t
	case string:
		n = json.Number(strings.TrimSpace(t))
	default:
		return 0, fmt.Errorf("not a number: %s", v)
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// parseFlexBool accepts true/false, 1/0 and "Y"/"N"
func parseFlexBool(v json.RawMessage) (bool, bool) {
	var x interface{}
	if err := json.Unmarshal(v, &x); err != nil {
		return false, false
	}
	switch t := x.(type) {
	case bool:
		return t, true
	case float64:
		return t != 0, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "y", "yes", "true", "1":
			return true, true
		case "n", "no", "false", "0":
			return false, true
		}
	}
	return false, false
}

// unwrapData strips a {"data": ...} envelope when present
func unwrapData(raw json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return trimmed
	}
	var env record
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return trimmed
	}
	if data, ok := env.raw("data"); ok && len(env) <= 3 {
		return bytes.TrimSpace(data)
	}
	return trimmed
}

// decodeList accepts {data:[...],pagination:{totalRecords}}, {data:[...]} or
// a bare array. Without a total the list length is used.
func decodeList(raw json.RawMessage) ([]record, int, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, 0, nil
	}

	if trimmed[0] == '[' {
		var items []record
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, 0, errors.Wrap(err, errors.ErrCodeUpstream, "unexpected list shape")
		}
		return items, len(items), nil
	}

	var env record
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, 0, errors.Wrap(err, errors.ErrCodeUpstream, "unexpected list shape")
	}
	items, ok := env.list("data", "items", "results")
	if !ok {
		return nil, 0, errors.New(errors.ErrCodeUpstream, "list response carries no data array")
	}
	total := len(items)
	if pv, ok := env.raw("pagination"); ok {
		var p record
		if err := json.Unmarshal(pv, &p); err == nil {
			if n := p.id("totalRecords", "total"); n > 0 {
				total = int(n)
			}
		}
	} else if n := env.id("totalRecords", "total"); n > 0 {
		total = int(n)
	}
	return items, total, nil
}

// decodeRecord accepts a bare object, {data:{...}} or a one-element array
func decodeRecord(raw json.RawMessage) (record, error) {
	body := unwrapData(raw)
	if len(body) > 0 && body[0] == '[' {
		var items []record
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeUpstream, "unexpected record shape")
		}
		if len(items) == 0 {
			return nil, nil
		}
		return items[0], nil
	}
	var rec record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstream, "unexpected record shape")
	}
	return rec, nil
}

func headerIDKeys(t document.Type) []string {
	return []string{"id", t.ParentKey}
}

func lineIDKeys(t document.Type) []string {
	parent := strings.TrimSuffix(t.ParentKey, "ID")
	return []string{"id", parent + "ParcelID", "parcelId", "lineId"}
}

// toHeader maps an upstream header record onto the canonical header
func toHeader(t document.Type, r record) document.Header {
	h := document.Header{
		ID:                   r.id(headerIDKeys(t)...),
		Series:               r.str("series"),
		CompanyID:            r.id("companyId"),
		CustomerID:           r.id("customerId"),
		SupplierID:           r.id("supplierId"),
		CurrencyID:           r.id("currencyId"),
		ServiceTypeID:        r.id("serviceTypeId"),
		CollectionAddressID:  r.id("collectionAddressId"),
		DestinationAddressID: r.id("destinationAddressId"),
		ShippingPriorityID:   r.id("shippingPriorityId"),
		PostingDate:          r.date("postingDate"),
		DeliveryDate:         r.date("deliveryDate"),
		RequiredByDate:       r.date("requiredByDate"),
		DueDate:              r.date("dueDate"),
		Remarks:              r.str("remarks"),
		CreatedByID:          r.id("createdById"),
		CreatedAt:            r.date("createdAt", "createdDateTime"),
		DeletedAt:            r.date("deletedAt", "deletedDateTime"),
		RowVersion:           r.str("rowVersion"),
	}
	if deleted, ok := r.flag("isDeleted"); ok {
		h.IsDeleted = deleted
	}
	return h
}

// toLine maps an upstream child record onto a Stored line
func toLine(t document.Type, r record) document.LineItem {
	l := document.StoredLineItem(r.id(lineIDKeys(t)...), document.LineFields{
		ItemID:   r.id("itemId"),
		UOMID:    r.id("uomId"),
		Quantity: r.dec("quantity", "qty"),
		Rate:     r.dec("rate"),
		Remarks:  r.str("remarks"),
	})
	if _, ok := r.raw("amount"); ok {
		l.Amount = r.dec("amount")
	}
	l.LineNumber = int(r.id("lineNumber", "parcelNumber"))
	return l
}

func toApproval(r record) *document.ApprovalRecord {
	approved, ok := r.flag("approvedYN", "approved")
	if !ok {
		return nil
	}
	rec := &document.ApprovalRecord{
		DocumentID: r.id("documentId"),
		ApproverID: r.id("approverId"),
		ApprovedYN: approved,
	}
	if at := r.date("decidedAt", "approvedAt", "modifiedAt", "createdAt"); at != nil {
		rec.DecidedAt = *at
	}
	return rec
}

// labelKeys lists the fields a catalog entry's display label may come from
func labelKeys(c document.Catalog) []string {
	named := strings.ReplaceAll(c.Singular(), " ", "") + "Name"
	return []string{"name", named, "label", "description", "code", "series", "addressLine1"}
}

func toReference(c document.Catalog, r record) document.Reference {
	idKey := strings.ReplaceAll(c.Singular(), " ", "") + "ID"
	return document.Reference{
		ID:    r.id("id", idKey),
		Label: r.str(labelKeys(c)...),
	}
}

// headerBody is the create/update payload; actor is sent under actorKey. An
// update sends every field of the type so a cleared value goes out as null;
// a create omits unset fields.
func headerBody(t document.Type, h document.Header, actorKey string, actorID int64, update bool) map[string]interface{} {
	body := map[string]interface{}{
		actorKey: actorID,
	}
	set := func(key string, id int64) {
		switch {
		case id != 0:
			body[key] = id
		case update:
			body[key] = nil
		}
	}
	set("companyId", h.CompanyID)
	set("currencyId", h.CurrencyID)
	set("serviceTypeId", h.ServiceTypeID)
	set("collectionAddressId", h.CollectionAddressID)
	set("destinationAddressId", h.DestinationAddressID)
	set("shippingPriorityId", h.ShippingPriorityID)
	switch t.Party {
	case document.PartyCustomer:
		set("customerId", h.CustomerID)
	case document.PartySupplier:
		set("supplierId", h.SupplierID)
	}

	setDate := func(key string, d *time.Time) {
		switch {
		case d != nil:
			body[key] = d.Format(time.RFC3339)
		case update:
			body[key] = nil
		}
	}
	setDate("postingDate", h.PostingDate)
	setDate("deliveryDate", h.DeliveryDate)
	setDate("requiredByDate", h.RequiredByDate)
	setDate("dueDate", h.DueDate)
	if h.Remarks != "" || update {
		body["remarks"] = h.Remarks
	}
	if h.RowVersion != "" {
		body["rowVersion"] = h.RowVersion
	}
	return body
}

// lineBody is the child create/update payload
func lineBody(t document.Type, documentID int64, l document.LineItem, actorKey string, actorID int64) map[string]interface{} {
	body := map[string]interface{}{
		t.ParentKey: documentID,
		"itemId":    l.ItemID,
		"uomId":     l.UOMID,
		"quantity":  json.Number(l.Quantity.String()),
		actorKey:    actorID,
	}
	if t.Priced {
		body["rate"] = json.Number(l.Rate.String())
		body["amount"] = json.Number(l.Amount.String())
	}
	if l.LineNumber > 0 {
		body["lineNumber"] = l.LineNumber
	}
	if l.Remarks != "" {
		body["remarks"] = l.Remarks
	}
	return body
}
