package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/pesio-ai/be-freight-documents/internal/client"
	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/logger"
	"github.com/pesio-ai/be-freight-documents/internal/common/metrics"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// CatalogResolver loads reference catalogs once per session and resolves ids
// to display labels. A failed load leaves an empty catalog behind, so every
// later Resolve on it returns the fallback label.
type CatalogResolver struct {
	source  client.CatalogClientInterface
	session auth.Session
	log     *logger.Logger
	metrics *metrics.Metrics

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[document.Catalog][]document.Reference
	labels  map[document.Catalog]map[int64]string
}

// NewCatalogResolver creates a resolver bound to one session
func NewCatalogResolver(source client.CatalogClientInterface, session auth.Session, log *logger.Logger, m *metrics.Metrics) *CatalogResolver {
	return &CatalogResolver{
		source:  source,
		session: session,
		log:     log,
		metrics: m,
		entries: make(map[document.Catalog][]document.Reference),
		labels:  make(map[document.Catalog]map[int64]string),
	}
}

// Load returns the catalog, fetching it on first use. The error is a warning:
// the catalog is memoized as empty and the session carries on.
func (r *CatalogResolver) Load(ctx context.Context, c document.Catalog) ([]document.Reference, error) {
	r.mu.RLock()
	refs, ok := r.entries[c]
	r.mu.RUnlock()
	if ok {
		return refs, nil
	}

	v, err, _ := r.group.Do(string(c), func() (interface{}, error) {
		r.mu.RLock()
		refs, ok := r.entries[c]
		r.mu.RUnlock()
		if ok {
			return refs, nil
		}

		refs, err := r.source.ListReference(ctx, r.session, c)
		if err != nil {
			r.metrics.RecordCatalogLoad(string(c), "error")
			r.log.Warn().Err(err).Str("catalog", string(c)).Msg("Catalog load failed, labels will fall back")
			refs = nil
		} else {
			r.metrics.RecordCatalogLoad(string(c), "ok")
		}
		r.store(c, refs)
		return refs, err
	})
	refs, _ = v.([]document.Reference)
	return refs, err
}

func (r *CatalogResolver) store(c document.Catalog, refs []document.Reference) {
	byID := make(map[int64]string, len(refs))
	for _, ref := range refs {
		byID[ref.ID] = ref.Label
	}
	if refs == nil {
		refs = []document.Reference{}
	}

	r.mu.Lock()
	r.entries[c] = refs
	r.labels[c] = byID
	r.mu.Unlock()
}

// LoadAll loads several catalogs concurrently and returns one warning per
// failed catalog.
func (r *CatalogResolver) LoadAll(ctx context.Context, catalogs ...document.Catalog) []error {
	failed := make([]error, len(catalogs))
	var g errgroup.Group
	for i, c := range catalogs {
		i, c := i, c
		g.Go(func() error {
			// a failed load is a warning, not a reason to cancel the others
			_, failed[i] = r.Load(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	var warnings []error
	for _, err := range failed {
		if err != nil {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Resolve returns the label for id, or the "Unknown <Catalog> (<id>)"
// fallback. It never fails; id 0 resolves to "".
func (r *CatalogResolver) Resolve(c document.Catalog, id int64) string {
	if id == 0 {
		return ""
	}
	r.mu.RLock()
	label, ok := r.labels[c][id]
	r.mu.RUnlock()
	if ok && label != "" {
		return label
	}
	return c.FallbackLabel(id)
}

// Entries returns the loaded catalog, or nil when it was never loaded
func (r *CatalogResolver) Entries(c document.Catalog) []document.Reference {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entries[c]
}

// EnrichLines fills item and UOM labels in place
func (r *CatalogResolver) EnrichLines(lines []document.LineItem) {
	for i := range lines {
		lines[i].ItemLabel = r.Resolve(document.Items, lines[i].ItemID)
		lines[i].UOMLabel = r.Resolve(document.UOMs, lines[i].UOMID)
	}
}

// EnrichHeader fills the header's label map
func (r *CatalogResolver) EnrichHeader(h *document.Header) {
	labels := make(map[string]string)
	for _, ref := range h.References() {
		labels[ref.Field] = r.Resolve(ref.Catalog, ref.ID)
	}
	h.Labels = labels
}

// catalogsFor lists the catalogs a document of type t renders labels from
func catalogsFor(t document.Type) []document.Catalog {
	cs := []document.Catalog{
		document.Items,
		document.UOMs,
		document.Companies,
		document.Currencies,
		document.ServiceTypes,
		document.Addresses,
		document.ShippingPriorities,
	}
	switch t.Party {
	case document.PartyCustomer:
		cs = append(cs, document.Customers)
	case document.PartySupplier:
		cs = append(cs, document.Suppliers)
	}
	return cs
}
