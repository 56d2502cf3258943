package document

import "time"

// Header is the editable header of one document. ID is 0 until the first
// successful create; Series is assigned upstream and never edited locally.
type Header struct {
	ID     int64  `json:"id,omitempty"`
	Series string `json:"series,omitempty"`

	CompanyID            int64 `json:"companyId,omitempty"`
	CustomerID           int64 `json:"customerId,omitempty"`
	SupplierID           int64 `json:"supplierId,omitempty"`
	CurrencyID           int64 `json:"currencyId,omitempty"`
	ServiceTypeID        int64 `json:"serviceTypeId,omitempty"`
	CollectionAddressID  int64 `json:"collectionAddressId,omitempty"`
	DestinationAddressID int64 `json:"destinationAddressId,omitempty"`
	ShippingPriorityID   int64 `json:"shippingPriorityId,omitempty"`

	// Labels holds resolved display labels keyed by HeaderRef.Field
	Labels map[string]string `json:"labels,omitempty"`

	PostingDate    *time.Time `json:"postingDate,omitempty"`
	DeliveryDate   *time.Time `json:"deliveryDate,omitempty"`
	RequiredByDate *time.Time `json:"requiredByDate,omitempty"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	Remarks        string     `json:"remarks,omitempty"`

	CreatedByID int64      `json:"createdById,omitempty"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	IsDeleted   bool       `json:"isDeleted,omitempty"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
	RowVersion  string     `json:"rowVersion,omitempty"`
}

// IsDraft reports whether the header has never been saved
func (h Header) IsDraft() bool {
	return h.ID == 0
}

// HeaderRef is one foreign key on the header with the catalog it resolves in
type HeaderRef struct {
	Field   string
	Catalog Catalog
	ID      int64
}

// References lists the header's set foreign keys
func (h Header) References() []HeaderRef {
	all := []HeaderRef{
		{"company", Companies, h.CompanyID},
		{"customer", Customers, h.CustomerID},
		{"supplier", Suppliers, h.SupplierID},
		{"currency", Currencies, h.CurrencyID},
		{"serviceType", ServiceTypes, h.ServiceTypeID},
		{"collectionAddress", Addresses, h.CollectionAddressID},
		{"destinationAddress", Addresses, h.DestinationAddressID},
		{"shippingPriority", ShippingPriorities, h.ShippingPriorityID},
	}
	out := all[:0]
	for _, r := range all {
		if r.ID != 0 {
			out = append(out, r)
		}
	}
	return out
}

// Clone returns a deep copy
func (h Header) Clone() Header {
	c := h
	if h.Labels != nil {
		c.Labels = make(map[string]string, len(h.Labels))
		for k, v := range h.Labels {
			c.Labels[k] = v
		}
	}
	c.PostingDate = cloneTime(h.PostingDate)
	c.DeliveryDate = cloneTime(h.DeliveryDate)
	c.RequiredByDate = cloneTime(h.RequiredByDate)
	c.DueDate = cloneTime(h.DueDate)
	c.CreatedAt = cloneTime(h.CreatedAt)
	c.DeletedAt = cloneTime(h.DeletedAt)
	return c
}

// MergeEdit applies an edited header onto h. Identity, series and audit
// fields always come from h.
func (h Header) MergeEdit(edit Header) Header {
	out := edit.Clone()
	out.ID = h.ID
	out.Series = h.Series
	out.CreatedByID = h.CreatedByID
	out.CreatedAt = cloneTime(h.CreatedAt)
	out.IsDeleted = h.IsDeleted
	out.DeletedAt = cloneTime(h.DeletedAt)
	out.RowVersion = h.RowVersion
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
