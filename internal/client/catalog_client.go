package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/pesio-ai/be-freight-documents/internal/common/auth"
	"github.com/pesio-ai/be-freight-documents/internal/common/httpclient"
	"github.com/pesio-ai/be-freight-documents/internal/document"
)

// CatalogClient loads reference catalogs from the upstream API
type CatalogClient struct {
	client   *httpclient.Client
	pageSize int
}

// NewCatalogClient creates a catalog client reading pageSize entries per catalog
func NewCatalogClient(c *httpclient.Client, pageSize int) *CatalogClient {
	if pageSize <= 0 {
		pageSize = 1000
	}
	return &CatalogClient{client: c, pageSize: pageSize}
}

// ListReference returns the first page of a catalog as id/label pairs
func (c *CatalogClient) ListReference(ctx context.Context, s auth.Session, catalog document.Catalog) ([]document.Reference, error) {
	if err := s.RequireCredential(); err != nil {
		return nil, err
	}

	q := url.Values{
		"pageNumber": {"1"},
		"pageSize":   {strconv.Itoa(c.pageSize)},
	}
	var raw json.RawMessage
	if err := c.client.Get(ctx, s, "/"+string(catalog), q, &raw); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", catalog, err)
	}
	records, _, err := decodeList(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", catalog, err)
	}

	refs := make([]document.Reference, 0, len(records))
	for _, r := range records {
		ref := toReference(catalog, r)
		if ref.ID == 0 {
			continue
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
