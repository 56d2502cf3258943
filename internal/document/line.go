package document

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Origin says whether a line exists upstream. It is either Draft or Stored.
type Origin interface {
	isOrigin()
}

// Draft is a line added in this session and not yet created upstream
type Draft struct{}

// Stored is a line that exists upstream under ID
type Stored struct {
	ID int64
}

func (Draft) isOrigin()  {}
func (Stored) isOrigin() {}

// LineFields are the editable values of a line
type LineFields struct {
	ItemID   int64
	UOMID    int64
	Quantity decimal.Decimal
	Rate     decimal.Decimal
	Remarks  string
}

// LineItem is one child row of a document ("parcel" upstream)
type LineItem struct {
	LocalID    uuid.UUID
	Origin     Origin
	ItemID     int64
	UOMID      int64
	ItemLabel  string
	UOMLabel   string
	Quantity   decimal.Decimal
	Rate       decimal.Decimal
	Amount     decimal.Decimal
	LineNumber int
	Remarks    string
}

// NewLineItem builds a draft line with a fresh local id
func NewLineItem(f LineFields) LineItem {
	l := LineItem{LocalID: uuid.New(), Origin: Draft{}}
	l.Apply(f)
	return l
}

// StoredLineItem builds a line read back from upstream
func StoredLineItem(id int64, f LineFields) LineItem {
	l := LineItem{LocalID: uuid.New(), Origin: Stored{ID: id}}
	l.Apply(f)
	return l
}

// PersistedID returns the upstream id of a Stored line
func (l LineItem) PersistedID() (int64, bool) {
	switch o := l.Origin.(type) {
	case Stored:
		return o.ID, true
	case Draft, nil:
		return 0, false
	default:
		panic(fmt.Sprintf("document: unknown line origin %T", o))
	}
}

// Fields returns the editable values
func (l LineItem) Fields() LineFields {
	return LineFields{
		ItemID:   l.ItemID,
		UOMID:    l.UOMID,
		Quantity: l.Quantity,
		Rate:     l.Rate,
		Remarks:  l.Remarks,
	}
}

// Apply replaces the editable values and recomputes the amount. Labels are
// cleared when the referenced id changes.
func (l *LineItem) Apply(f LineFields) {
	if f.ItemID != l.ItemID {
		l.ItemLabel = ""
	}
	if f.UOMID != l.UOMID {
		l.UOMLabel = ""
	}
	l.ItemID = f.ItemID
	l.UOMID = f.UOMID
	l.Quantity = f.Quantity
	l.Rate = f.Rate
	l.Remarks = f.Remarks
	l.recompute()
}

// SetQuantity updates the quantity and the derived amount
func (l *LineItem) SetQuantity(q decimal.Decimal) {
	l.Quantity = q
	l.recompute()
}

// SetRate updates the rate and the derived amount
func (l *LineItem) SetRate(r decimal.Decimal) {
	l.Rate = r
	l.recompute()
}

func (l *LineItem) recompute() {
	l.Amount = l.Quantity.Mul(l.Rate)
}

type lineJSON struct {
	LocalID     string           `json:"localId,omitempty"`
	PersistedID *int64           `json:"persistedId"`
	ItemID      int64            `json:"itemId"`
	ItemLabel   string           `json:"itemLabel,omitempty"`
	UOMID       int64            `json:"uomId"`
	UOMLabel    string           `json:"uomLabel,omitempty"`
	Quantity    decimal.Decimal  `json:"quantity"`
	Rate        decimal.Decimal  `json:"rate"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	LineNumber  int              `json:"lineNumber,omitempty"`
	Remarks     string           `json:"remarks,omitempty"`
}

// MarshalJSON renders the origin as a nullable persistedId
func (l LineItem) MarshalJSON() ([]byte, error) {
	out := lineJSON{
		LocalID:    l.LocalID.String(),
		ItemID:     l.ItemID,
		ItemLabel:  l.ItemLabel,
		UOMID:      l.UOMID,
		UOMLabel:   l.UOMLabel,
		Quantity:   l.Quantity,
		Rate:       l.Rate,
		Amount:     &l.Amount,
		LineNumber: l.LineNumber,
		Remarks:    l.Remarks,
	}
	if id, ok := l.PersistedID(); ok {
		out.PersistedID = &id
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts the shape written by MarshalJSON. A missing localId
// gets a fresh one; a positive persistedId makes the line Stored. An explicit
// amount is kept as sent so validation can compare it with quantity × rate.
func (l *LineItem) UnmarshalJSON(data []byte) error {
	var in lineJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	localID := uuid.New()
	if in.LocalID != "" {
		parsed, err := uuid.Parse(in.LocalID)
		if err != nil {
			return fmt.Errorf("invalid localId %q: %w", in.LocalID, err)
		}
		localID = parsed
	}

	var origin Origin = Draft{}
	if in.PersistedID != nil && *in.PersistedID > 0 {
		origin = Stored{ID: *in.PersistedID}
	}

	*l = LineItem{
		LocalID:    localID,
		Origin:     origin,
		ItemID:     in.ItemID,
		ItemLabel:  in.ItemLabel,
		UOMID:      in.UOMID,
		UOMLabel:   in.UOMLabel,
		Quantity:   in.Quantity,
		Rate:       in.Rate,
		LineNumber: in.LineNumber,
		Remarks:    in.Remarks,
	}
	if in.Amount != nil {
		l.Amount = *in.Amount
	} else {
		l.recompute()
	}
	return nil
}

// Renumber assigns LineNumber 1..N in slice order
func Renumber(lines []LineItem) {
	for i := range lines {
		lines[i].LineNumber = i + 1
	}
}
