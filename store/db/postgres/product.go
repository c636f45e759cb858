package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

func (d *DB) UpsertProduct(ctx context.Context, upsert *store.Product) (*store.Product, error) {
	now := time.Now().Unix()
	fields := []string{"id", "title", "category", "price", "currency", "image_url", "product_url", "in_stock", "embedding", "created_ts", "updated_ts"}
	args := []any{
		upsert.ID, upsert.Title, upsert.Category, upsert.Price, upsert.Currency,
		upsert.ImageURL, upsert.ProductURL, upsert.InStock,
		pgvector.NewVector(upsert.Embedding), now, now,
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
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *find.ID)
	}
	if len(find.IDs) > 0 {
		list := []string{}
		for _, id := range find.IDs {
			list, args = append(list, placeholder(len(args)+1)), append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(list, ", ")+")")
	}
	if find.Category != nil {
		where, args = append(where, "category = "+placeholder(len(args)+1)), append(args, *find.Category)
	}
	if find.InStockOnly {
		where = append(where, "in_stock = TRUE")
	}

	query := `
		SELECT id, title, category, price, currency, image_url, product_url, in_stock, embedding, created_ts, updated_ts
		FROM product
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id ASC`
	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
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
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
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

// SearchProducts runs cosine similarity search inside Postgres. The <=>
// operator returns cosine distance, so similarity is 1 - distance. Ties are
// broken by ascending product id to keep the ordering deterministic.
func (d *DB) SearchProducts(ctx context.Context, opts *store.SearchProductsOptions) ([]*store.ProductWithScore, error) {
	where, args := []string{"1 = 1"}, []any{}
	args = append(args, pgvector.NewVector(opts.Embedding))

	if opts.InStockOnly {
		where = append(where, "in_stock = TRUE")
	}

	query := `
		SELECT id, title, category, price, currency, image_url, product_url, in_stock, embedding, created_ts, updated_ts,
			1 - (embedding <=> $1) AS score
		FROM product
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY score DESC, id ASC
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, opts.Limit)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search products")
	}
	defer rows.Close()

	list := make([]*store.ProductWithScore, 0)
	for rows.Next() {
		product := &store.Product{}
		var embedding pgvector.Vector
		var score float64
		if err := rows.Scan(
			&product.ID, &product.Title, &product.Category, &product.Price, &product.Currency,
			&product.ImageURL, &product.ProductURL, &product.InStock, &embedding,
			&product.CreatedTs, &product.UpdatedTs, &score,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan product with score")
		}
		product.Embedding = embedding.Slice()
		list = append(list, &store.ProductWithScore{Product: product, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate products with score")
	}

	return list, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (*store.Product, error) {
	product := &store.Product{}
	var embedding pgvector.Vector
	if err := row.Scan(
		&product.ID, &product.Title, &product.Category, &product.Price, &product.Currency,
		&product.ImageURL, &product.ProductURL, &product.InStock, &embedding,
		&product.CreatedTs, &product.UpdatedTs,
	); err != nil {
		return nil, errors.Wrap(err, "failed to scan product")
	}
	product.Embedding = embedding.Slice()
	return product, nil
}
