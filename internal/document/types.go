// Package document holds the canonical document model shared by the client,
// the services and the HTTP layer. Nothing here performs I/O.
package document

import (
	"sort"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// Party is the counterparty a document type is raised against
type Party string

const (
	PartyCustomer Party = "customer"
	PartySupplier Party = "supplier"
)

// Type describes one document family and its upstream resource names.
type Type struct {
	Code      string
	Label     string
	Resource  string
	ParentKey string // query key on the child resource, e.g. SalesRFQID
	Priced    bool   // lines carry rate and amount
	Party     Party
}

// ChildResource is the line-item resource, e.g. "sales-rfq-parcels"
func (t Type) ChildResource() string {
	return t.Resource + "-parcels"
}

// ApprovalResource is the per-approver record resource
func (t Type) ApprovalResource() string {
	return t.Resource + "-approvals"
}

var registry = map[string]Type{
	"sales-rfq": {
		Code:      "sales-rfq",
		Label:     "Sales RFQ",
		Resource:  "sales-rfq",
		ParentKey: "SalesRFQID",
		Party:     PartyCustomer,
	},
	"purchase-rfq": {
		Code:      "purchase-rfq",
		Label:     "Purchase RFQ",
		Resource:  "purchase-rfq",
		ParentKey: "PurchaseRFQID",
		Party:     PartySupplier,
	},
	"supplier-quotation": {
		Code:      "supplier-quotation",
		Label:     "Supplier Quotation",
		Resource:  "supplier-quotation",
		ParentKey: "SupplierQuotationID",
		Priced:    true,
		Party:     PartySupplier,
	},
	"sales-invoice": {
		Code:      "sales-invoice",
		Label:     "Sales Invoice",
		Resource:  "sales-invoice",
		ParentKey: "SalesInvoiceID",
		Priced:    true,
		Party:     PartyCustomer,
	},
}

// Types returns every registered document type ordered by code
func Types() []Type {
	out := make([]Type, 0, len(registry))
	for _, t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Lookup returns the type registered under code
func Lookup(code string) (Type, error) {
	t, ok := registry[code]
	if !ok {
		return Type{}, errors.NotFound("document type", code)
	}
	return t, nil
}
