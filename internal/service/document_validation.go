package service

import (
	"fmt"

	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// ValidateDocument runs the local field rules of t and returns one message
// per failing field. An empty map means valid. No network call is made.
func ValidateDocument(t document.Type, h document.Header, lines []document.LineItem) map[string]string {
	errs := make(map[string]string)
	require := func(field string, id int64, label string) {
		if id == 0 {
			errs[field] = label + " is required"
		}
	}

	require("companyId", h.CompanyID, "Company")

	switch t.Code {
	case "sales-rfq":
		require("customerId", h.CustomerID, "Customer")
		require("serviceTypeId", h.ServiceTypeID, "Service type")
		require("collectionAddressId", h.CollectionAddressID, "Collection address")
		require("destinationAddressId", h.DestinationAddressID, "Destination address")
		require("shippingPriorityId", h.ShippingPriorityID, "Shipping priority")
		checkRequiredBy(h, errs)
	case "purchase-rfq":
		require("supplierId", h.SupplierID, "Supplier")
		require("serviceTypeId", h.ServiceTypeID, "Service type")
		if h.DeliveryDate == nil {
			errs["deliveryDate"] = "Delivery date is required"
		}
		checkRequiredBy(h, errs)
	case "supplier-quotation":
		require("supplierId", h.SupplierID, "Supplier")
		require("currencyId", h.CurrencyID, "Currency")
	case "sales-invoice":
		require("customerId", h.CustomerID, "Customer")
		require("currencyId", h.CurrencyID, "Currency")
		if h.PostingDate == nil {
			errs["postingDate"] = "Posting date is required"
		} else if h.DueDate != nil && h.DueDate.Before(*h.PostingDate) {
			errs["dueDate"] = "Due date cannot be before posting date"
		}
	}

	for i, l := range lines {
		validateLine(t, i+1, l, errs)
	}
	return errs
}

func checkRequiredBy(h document.Header, errs map[string]string) {
	if h.RequiredByDate != nil && h.DeliveryDate != nil && h.RequiredByDate.Before(*h.DeliveryDate) {
		errs["requiredByDate"] = "Required-by date cannot be before delivery date"
	}
}

func validateLine(t document.Type, n int, l document.LineItem, errs map[string]string) {
	key := func(field string) string { return fmt.Sprintf("lines[%d].%s", n, field) }

	if l.ItemID == 0 {
		errs[key("itemId")] = "Item is required"
	}
	if l.UOMID == 0 {
		errs[key("uomId")] = "Unit of measure is required"
	}
	if !l.Quantity.IsPositive() {
		errs[key("quantity")] = "Quantity must be greater than zero"
	}
	if !t.Priced {
		return
	}
	if l.Rate.IsNegative() {
		errs[key("rate")] = "Rate cannot be negative"
	}
	if !l.Amount.Equal(l.Quantity.Mul(l.Rate)) {
		errs[key("amount")] = "Amount must equal quantity × rate"
	}
}
