package vector

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/ghurfati/ghurfati/store"
)

// RateLimitedIndex caps the request rate against the wrapped index. Matching
// fans out one query per region, so a burst of large jobs can otherwise
// hammer the backend.
type RateLimitedIndex struct {
	inner   Index
	limiter *rate.Limiter
}

// NewRateLimited wraps inner with a requests-per-second cap. Burst equals
// the integer rate, minimum 1.
func NewRateLimited(inner Index, rps float64) *RateLimitedIndex {
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &RateLimitedIndex{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (idx *RateLimitedIndex) Query(ctx context.Context, query *Query) ([]*store.ProductWithScore, error) {
	if err := idx.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "vector query rate limit")
	}
	return idx.inner.Query(ctx, query)
}

func (idx *RateLimitedIndex) Upsert(ctx context.Context, product *store.Product) error {
	if err := idx.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "vector upsert rate limit")
	}
	return idx.inner.Upsert(ctx, product)
}

func (idx *RateLimitedIndex) Dimensions() int {
	return idx.inner.Dimensions()
}

// Close releases the wrapped index's connections when it holds any.
func (idx *RateLimitedIndex) Close() error {
	if closer, ok := idx.inner.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
