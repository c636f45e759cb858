package sqlite

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

func (d *DB) UpsertProduct(ctx context.Context, upsert *store.Product) (*store.Product, error) {
	blob, err := float32ArrayToBLOB(upsert.Embedding)
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	fields := []string{"id", "title", "category", "price", "currency", "image_url", "product_url", "in_stock", "embedding", "created_ts", "updated_ts"}
	args := []any{
		upsert.ID, upsert.Title, upsert.Category, upsert.Price, upsert.Currency,
		upsert.ImageURL, upsert.ProductURL, upsert.InStock, blob, now, now,
	}

	stmt := `INSERT INTO product (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			category = EXCLUDED.category,
			price = EXCLUDED.price,
			currency = EXCLUDED.currency,
			image_url = EXCLUDED.image_url,
			product_url = EXCLUDED.product_url,
			in_stock = EXCLUDED.in_stock,
			embedding = EXCLUDED.embedding,
			updated_ts = EXCLUDED.updated_ts
		RETURNING created_ts, updated_ts`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&upsert.CreatedTs, &upsert.UpdatedTs); err != nil {
		return nil, errors.Wrapf(err, "failed to upsert product %s", upsert.ID)
	}

	return upsert, nil
}

func (d *DB) ListProducts(ctx context.Context, find *store.FindProduct) ([]*store.Product, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		list := []string{}
		for _, id := range find.IDs {
			list, args = append(list, "?"), append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(list, ", ")+")")
	}
	if find.Category != nil {
		where, args = append(where, "category = ?"), append(args, *find.Category)
	}
	if find.InStockOnly {
		where = append(where, "in_stock = 1")
	}

	query := `
		SELECT id, title, category, price, currency, image_url, product_url, in_stock, embedding, created_ts, updated_ts
		FROM product
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	if find.Limit != nil {
		query += " LIMIT ?"
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET ?"
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list products")
	}
	defer rows.Close()

	list := make([]*store.Product, 0)
	for rows.Next() {
		product := &store.Product{}
		var blob []byte
		if err := rows.Scan(
			&product.ID, &product.Title, &product.Category, &product.Price, &product.Currency,
			&product.ImageURL, &product.ProductURL, &product.InStock, &blob,
			&product.CreatedTs, &product.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan product")
		}
		embedding, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, err
		}
		product.Embedding = embedding
		list = append(list, product)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate products")
	}

	return list, nil
}

func (d *DB) CountProducts(ctx context.Context) (int64, error) {
	var count int64
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM product").Scan(&count); err != nil {
		return 0, errors.Wrap(err, "failed to count products")
	}
	return count, nil
}

// SearchProducts scans all candidate rows and ranks them with Go-side cosine
// similarity. Linear, but fine for the catalog sizes the SQLite driver is
// meant for. Ties are broken by ascending product id, matching the Postgres
// driver's ordering exactly.
func (d *DB) SearchProducts(ctx context.Context, opts *store.SearchProductsOptions) ([]*store.ProductWithScore, error) {
	candidates, err := d.ListProducts(ctx, &store.FindProduct{InStockOnly: opts.InStockOnly})
	if err != nil {
		return nil, err
	}

	scored := make([]*store.ProductWithScore, 0, len(candidates))
	for _, product := range candidates {
		scored = append(scored, &store.ProductWithScore{
			Product: product,
			Score:   cosineSimilarity(opts.Embedding, product.Embedding),
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Product.ID < scored[j].Product.ID
	})

	if len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored, nil
}
