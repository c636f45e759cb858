package vector

import (
	"context"

	"github.com/ghurfati/ghurfati/store"
)

// StoreIndex answers similarity queries straight from the relational store:
// pgvector does the ranking on Postgres, the sqlite driver scans and ranks
// in Go. No extra infrastructure, right default for dev and small catalogs.
type StoreIndex struct {
	catalog    Catalog
	dimensions int
}

func NewStoreIndex(catalog Catalog, dimensions int) *StoreIndex {
	return &StoreIndex{catalog: catalog, dimensions: dimensions}
}

func (idx *StoreIndex) Query(ctx context.Context, query *Query) ([]*store.ProductWithScore, error) {
	if err := query.Validate(idx.dimensions); err != nil {
		return nil, err
	}
	return idx.catalog.SearchProducts(ctx, &store.SearchProductsOptions{
		Embedding:   query.Embedding,
		Limit:       query.Limit,
		InStockOnly: query.InStockOnly,
	})
}

func (idx *StoreIndex) Upsert(ctx context.Context, product *store.Product) error {
	if err := store.ValidateDimensions(idx.dimensions, product.Embedding); err != nil {
		return err
	}
	_, err := idx.catalog.UpsertProduct(ctx, product)
	return err
}

func (idx *StoreIndex) Dimensions() int {
	return idx.dimensions
}
