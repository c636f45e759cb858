package store

import (
	"fmt"

	"github.com/pkg/errors"
)

// Product is a catalog row. ID is the article number (for IKEA-sourced rows
// the scraped item number), which doubles as the vector-index point key.
type Product struct {
	ID       string
	Title    string
	Category string

	Price    float64
	Currency string

	ImageURL   string
	ProductURL string

	InStock bool

	Embedding []float32

	CreatedTs int64
	UpdatedTs int64
}

func (p *Product) Validate() error {
	if p.ID == "" {
		return errors.New("product id is required")
	}
	if p.Title == "" {
		return errors.New("product title is required")
	}
	if p.Price < 0 {
		return errors.Errorf("invalid price %f", p.Price)
	}
	return nil
}

type FindProduct struct {
	ID          *string
	IDs         []string
	Category    *string
	InStockOnly bool

	Limit  *int
	Offset *int
}

func (find *FindProduct) Validate() error {
	if find.Limit != nil && *find.Limit <= 0 {
		return errors.Errorf("invalid limit %d", *find.Limit)
	}
	if find.Offset != nil && *find.Offset < 0 {
		return errors.Errorf("invalid offset %d", *find.Offset)
	}
	return nil
}

// ProductWithScore is a nearest-neighbour search hit: the catalog row plus
// its cosine similarity to the query vector.
type ProductWithScore struct {
	Product *Product
	// Score is cosine similarity in [-1, 1]; higher is closer.
	Score float64
}

// SearchProductsOptions is a nearest-neighbour query against the catalog.
// Results are ordered by similarity descending with ties broken by ascending
// product id, so identical queries return identical orderings.
type SearchProductsOptions struct {
	Embedding   []float32
	Limit       int
	InStockOnly bool
}

func (opts *SearchProductsOptions) Validate() error {
	if len(opts.Embedding) == 0 {
		return errors.New("search embedding is required")
	}
	if opts.Limit <= 0 {
		return errors.Errorf("invalid limit %d", opts.Limit)
	}
	return nil
}

// DimensionError reports an embedding whose dimensionality does not match
// the configured embedding space. It signals a configuration fault, never a
// retryable condition.
type DimensionError struct {
	Want int
	Got  int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// ValidateDimensions checks an embedding against the expected dimensionality.
func ValidateDimensions(want int, embedding []float32) error {
	if len(embedding) != want {
		return &DimensionError{Want: want, Got: len(embedding)}
	}
	return nil
}
