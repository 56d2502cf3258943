package document

import (
	"fmt"

	"github.com/pesio-ai/be-freight-documents/internal/common/errors"
)

// Catalog names a reference catalog; the value is also its upstream path.
type Catalog string

const (
	Items              Catalog = "items"
	UOMs               Catalog = "uoms"
	Currencies         Catalog = "currencies"
	ServiceTypes       Catalog = "service-types"
	Addresses          Catalog = "addresses"
	ShippingPriorities Catalog = "shipping-priorities"
	Customers          Catalog = "customers"
	Suppliers          Catalog = "suppliers"
	Companies          Catalog = "companies"
)

var singular = map[Catalog]string{
	Items:              "Item",
	UOMs:               "UOM",
	Currencies:         "Currency",
	ServiceTypes:       "Service Type",
	Addresses:          "Address",
	ShippingPriorities: "Shipping Priority",
	Customers:          "Customer",
	Suppliers:          "Supplier",
	Companies:          "Company",
}

// Catalogs lists every known catalog
func Catalogs() []Catalog {
	return []Catalog{Items, UOMs, Currencies, ServiceTypes, Addresses, ShippingPriorities, Customers, Suppliers, Companies}
}

// ParseCatalog validates a catalog name from user input
func ParseCatalog(name string) (Catalog, error) {
	c := Catalog(name)
	if _, ok := singular[c]; !ok {
		return "", errors.NotFound("catalog", name)
	}
	return c, nil
}

// Singular is the display name of one entry, e.g. "Shipping Priority"
func (c Catalog) Singular() string {
	if s, ok := singular[c]; ok {
		return s
	}
	return string(c)
}

// FallbackLabel is shown for an id the loaded catalog does not contain
func (c Catalog) FallbackLabel(id int64) string {
	return fmt.Sprintf("Unknown %s (%d)", c.Singular(), id)
}

// Reference is one catalog entry
type Reference struct {
	ID    int64  `json:"id"`
	Label string `json:"label"`
}
