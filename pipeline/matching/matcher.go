// Package matching turns region embeddings into ranked product matches.
// Ranking is fully deterministic: fixed down-weights, score-then-id
// ordering, no randomness, so identical inputs always produce identical
// match rows.
package matching

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/pipeline/vector"
	"github.com/ghurfati/ghurfati/store"
)

const (
	defaultCategoryWeight = 0.85
	defaultPriceWeight    = 0.90
)

// Config tunes candidate retrieval and the deterministic re-rank.
type Config struct {
	// KQuery is the oversampled candidate count fetched per region, so
	// down-weighting can reorder before truncation to k.
	KQuery int
	// CategoryWeight multiplies the score of candidates whose catalog
	// category differs from the region's detected category.
	CategoryWeight float64
	// PriceWeight multiplies the score of candidates priced outside the
	// configured band.
	PriceWeight float64
	// PriceMin and PriceMax bound the preferred price band. Both zero
	// disables the band.
	PriceMin float64
	PriceMax float64
}

// Matcher queries the vector index and re-ranks candidates per region.
type Matcher struct {
	index  vector.Index
	config Config
}

func NewMatcher(index vector.Index, config Config) *Matcher {
	if config.CategoryWeight <= 0 || config.CategoryWeight > 1 {
		config.CategoryWeight = defaultCategoryWeight
	}
	if config.PriceWeight <= 0 || config.PriceWeight > 1 {
		config.PriceWeight = defaultPriceWeight
	}
	return &Matcher{index: index, config: config}
}

// Match returns up to k ranked matches for the region. Out-of-stock
// products never match; category and price-band mismatches are soft
// down-weights, not filters. Ties order by ascending product id.
func (m *Matcher) Match(ctx context.Context, region *store.Region, k int) ([]*store.Match, error) {
	if k <= 0 {
		return nil, errors.Errorf("invalid match count %d", k)
	}
	kQuery := m.config.KQuery
	if kQuery < k {
		kQuery = k * 4
	}

	candidates, err := m.index.Query(ctx, &vector.Query{
		Embedding:   region.Embedding,
		Limit:       kQuery,
		InStockOnly: true,
	})
	if err != nil {
		return nil, err
	}

	type scored struct {
		product    *store.Product
		similarity float64
		score      float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, candidate := range candidates {
		product := candidate.Product
		// The index pre-filters stock, but hydrated rows are authoritative
		// when index payloads lag behind catalog updates.
		if !product.InStock {
			continue
		}
		score := candidate.Score
		if region.Category != "" && !strings.EqualFold(region.Category, product.Category) {
			score *= m.config.CategoryWeight
		}
		if m.bandConfigured() && !m.inBand(product.Price) {
			score *= m.config.PriceWeight
		}
		ranked = append(ranked, scored{product: product, similarity: candidate.Score, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].product.ID < ranked[j].product.ID
	})
	if len(ranked) > k {
		ranked = ranked[:k]
	}

	matches := make([]*store.Match, 0, len(ranked))
	for i, r := range ranked {
		matches = append(matches, &store.Match{
			JobID:      region.JobID,
			RegionID:   region.ID,
			Rank:       int32(i + 1),
			ProductID:  r.product.ID,
			Score:      r.score,
			Similarity: r.similarity,
			Title:      r.product.Title,
			Category:   r.product.Category,
			Price:      r.product.Price,
			Currency:   r.product.Currency,
		})
	}
	return matches, nil
}

func (m *Matcher) bandConfigured() bool {
	return m.config.PriceMin > 0 || m.config.PriceMax > 0
}

func (m *Matcher) inBand(price float64) bool {
	if m.config.PriceMin > 0 && price < m.config.PriceMin {
		return false
	}
	if m.config.PriceMax > 0 && price > m.config.PriceMax {
		return false
	}
	return true
}
