package store

import (
	"context"
	"database/sql"
)

// Driver is the database access interface. Every method a store database
// driver must implement lives here; Postgres and SQLite provide the two
// implementations.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// Migrate brings the schema up to date. Safe to run on every boot.
	Migrate(ctx context.Context) error

	CreateJob(ctx context.Context, create *Job) (*Job, error)
	ListJobs(ctx context.Context, find *FindJob) ([]*Job, error)
	UpdateJob(ctx context.Context, update *UpdateJob) (*Job, error)
	DeleteJobs(ctx context.Context, delete *DeleteJob) (int64, error)

	CreateStyledImage(ctx context.Context, create *StyledImage) (*StyledImage, error)
	ListStyledImages(ctx context.Context, find *FindStyledImage) ([]*StyledImage, error)

	CreateRegions(ctx context.Context, creates []*Region) ([]*Region, error)
	ListRegions(ctx context.Context, find *FindRegion) ([]*Region, error)

	CreateMatches(ctx context.Context, creates []*Match) ([]*Match, error)
	ListMatches(ctx context.Context, find *FindMatch) ([]*Match, error)

	UpsertProduct(ctx context.Context, upsert *Product) (*Product, error)
	ListProducts(ctx context.Context, find *FindProduct) ([]*Product, error)
	CountProducts(ctx context.Context) (int64, error)
	SearchProducts(ctx context.Context, opts *SearchProductsOptions) ([]*ProductWithScore, error)
}
