package store

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/internal/profile"
	"github.com/ghurfati/ghurfati/store/cache"
)

// Store provides database access to all raw objects.
//
// Products and styled images are cached; they are written once and then only
// read. Jobs are deliberately not cached so status polls always see the
// current row.
type Store struct {
	profile *profile.Profile
	driver  Driver

	// Cache settings
	cacheConfig cache.Config

	// Caches
	productCache     *cache.Cache // cache for catalog products
	styledImageCache *cache.Cache // cache for styled images, keyed by job id
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	// Default cache settings
	cacheConfig := cache.Config{
		DefaultTTL:      10 * time.Minute,
		CleanupInterval: 5 * time.Minute,
		MaxItems:        1000,
		OnEviction:      nil,
	}

	return &Store{
		driver:           driver,
		profile:          profile,
		cacheConfig:      cacheConfig,
		productCache:     cache.New(cacheConfig),
		styledImageCache: cache.New(cacheConfig),
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

// Migrate brings the backing schema up to date.
func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	// Stop all cache cleanup goroutines
	s.productCache.Close()
	s.styledImageCache.Close()

	return s.driver.Close()
}

func (s *Store) CreateJob(ctx context.Context, create *Job) (*Job, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	if create.UpdatedTs == 0 {
		create.UpdatedTs = create.CreatedTs
	}
	return s.driver.CreateJob(ctx, create)
}

func (s *Store) ListJobs(ctx context.Context, find *FindJob) ([]*Job, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListJobs(ctx, find)
}

// GetJob returns the job with the given id, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, id string) (*Job, error) {
	list, err := s.ListJobs(ctx, &FindJob{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateJob applies a partial update. Status changes are checked against the
// forward-only status machine; an illegal transition is rejected without
// touching the row.
func (s *Store) UpdateJob(ctx context.Context, update *UpdateJob) (*Job, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}
	if update.Status != nil {
		current, err := s.GetJob(ctx, update.ID)
		if err != nil {
			return nil, err
		}
		if current == nil {
			return nil, errors.Errorf("job %s not found", update.ID)
		}
		if current.Status != *update.Status && !current.Status.CanTransition(*update.Status) {
			return nil, errors.Errorf("illegal job transition %s -> %s", current.Status, *update.Status)
		}
	}
	return s.driver.UpdateJob(ctx, update)
}

// DeleteJobs removes the selected jobs together with their styled images,
// regions and matches. It returns the number of jobs removed.
func (s *Store) DeleteJobs(ctx context.Context, delete *DeleteJob) (int64, error) {
	if err := delete.Validate(); err != nil {
		return 0, err
	}
	n, err := s.driver.DeleteJobs(ctx, delete)
	if err != nil {
		return 0, err
	}
	for _, id := range delete.IDs {
		s.styledImageCache.Delete(id)
	}
	return n, nil
}

func (s *Store) CreateStyledImage(ctx context.Context, create *StyledImage) (*StyledImage, error) {
	if create.CreatedTs == 0 {
		create.CreatedTs = time.Now().Unix()
	}
	created, err := s.driver.CreateStyledImage(ctx, create)
	if err != nil {
		return nil, err
	}
	s.styledImageCache.Set(created.JobID, created)
	return created, nil
}

func (s *Store) ListStyledImages(ctx context.Context, find *FindStyledImage) ([]*StyledImage, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListStyledImages(ctx, find)
}

// GetStyledImageByJob returns the styled image generated for a job, or nil
// when the job has not completed generation.
func (s *Store) GetStyledImageByJob(ctx context.Context, jobID string) (*StyledImage, error) {
	if v, ok := s.styledImageCache.Get(jobID); ok {
		if image, ok := v.(*StyledImage); ok {
			return image, nil
		}
	}
	list, err := s.ListStyledImages(ctx, &FindStyledImage{JobID: &jobID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.styledImageCache.Set(jobID, list[0])
	return list[0], nil
}

func (s *Store) CreateRegions(ctx context.Context, creates []*Region) ([]*Region, error) {
	now := time.Now().Unix()
	for _, create := range creates {
		if create.CreatedTs == 0 {
			create.CreatedTs = now
		}
	}
	return s.driver.CreateRegions(ctx, creates)
}

func (s *Store) ListRegions(ctx context.Context, find *FindRegion) ([]*Region, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListRegions(ctx, find)
}

func (s *Store) CreateMatches(ctx context.Context, creates []*Match) ([]*Match, error) {
	now := time.Now().Unix()
	for _, create := range creates {
		if create.CreatedTs == 0 {
			create.CreatedTs = now
		}
	}
	return s.driver.CreateMatches(ctx, creates)
}

func (s *Store) ListMatches(ctx context.Context, find *FindMatch) ([]*Match, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListMatches(ctx, find)
}

func (s *Store) UpsertProduct(ctx context.Context, upsert *Product) (*Product, error) {
	if err := upsert.Validate(); err != nil {
		return nil, err
	}
	product, err := s.driver.UpsertProduct(ctx, upsert)
	if err != nil {
		return nil, err
	}
	s.productCache.Set(product.ID, product)
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, find *FindProduct) ([]*Product, error) {
	if err := find.Validate(); err != nil {
		return nil, err
	}
	return s.driver.ListProducts(ctx, find)
}

// GetProduct returns the product with the given id, or nil when it does not
// exist.
func (s *Store) GetProduct(ctx context.Context, id string) (*Product, error) {
	if v, ok := s.productCache.Get(id); ok {
		if product, ok := v.(*Product); ok {
			return product, nil
		}
	}
	list, err := s.ListProducts(ctx, &FindProduct{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	s.productCache.Set(id, list[0])
	return list[0], nil
}

func (s *Store) CountProducts(ctx context.Context) (int64, error) {
	return s.driver.CountProducts(ctx)
}

func (s *Store) SearchProducts(ctx context.Context, opts *SearchProductsOptions) ([]*ProductWithScore, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return s.driver.SearchProducts(ctx, opts)
}
