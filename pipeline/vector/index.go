// Package vector provides the product vector index behind matching: a
// store-backed implementation for single-binary deployments and a qdrant
// implementation for external serving, behind one interface.
package vector

import (
	"context"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

// Query is one nearest-neighbor lookup over the product catalog.
type Query struct {
	Embedding   []float32
	Limit       int
	InStockOnly bool
}

func (q *Query) Validate(dimensions int) error {
	if q.Limit <= 0 {
		return errors.Errorf("invalid query limit %d", q.Limit)
	}
	return store.ValidateDimensions(dimensions, q.Embedding)
}

// Index is the vector search surface over the product catalog. Both
// implementations keep the relational store as the source of truth for
// product rows; the index only answers similarity queries.
type Index interface {
	// Query returns candidates ordered by score descending, product id
	// ascending on ties. Scores are cosine similarity, higher is closer.
	Query(ctx context.Context, query *Query) ([]*store.ProductWithScore, error)

	// Upsert persists the product row and its embedding.
	Upsert(ctx context.Context, product *store.Product) error

	// Dimensions returns the embedding dimension the index enforces.
	Dimensions() int
}

// Catalog is the slice of the product store the indexes need.
type Catalog interface {
	SearchProducts(ctx context.Context, opts *store.SearchProductsOptions) ([]*store.ProductWithScore, error)
	ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error)
	UpsertProduct(ctx context.Context, upsert *store.Product) (*store.Product, error)
}
