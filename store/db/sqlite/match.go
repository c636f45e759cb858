package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

func (d *DB) CreateMatches(ctx context.Context, creates []*store.Match) ([]*store.Match, error) {
	if len(creates) == 0 {
		return creates, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	fields := []string{"job_id", "region_id", "rank", "product_id", "score", "similarity", "title", "category", "price", "currency", "created_ts"}
	stmt := `INSERT INTO product_match (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(fields)) + `)
		RETURNING id`

	for _, create := range creates {
		args := []any{
			create.JobID, create.RegionID, create.Rank, create.ProductID, create.Score, create.Similarity,
			create.Title, create.Category, create.Price, create.Currency, create.CreatedTs,
		}
		if err := tx.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
			return nil, errors.Wrapf(err, "failed to create match for region %s", create.RegionID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit tx")
	}
	return creates, nil
}

func (d *DB) ListMatches(ctx context.Context, find *store.FindMatch) ([]*store.Match, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.JobID != nil {
		where, args = append(where, "job_id = ?"), append(args, *find.JobID)
	}
	if find.RegionID != nil {
		where, args = append(where, "region_id = ?"), append(args, *find.RegionID)
	}

	query := `
		SELECT id, job_id, region_id, rank, product_id, score, similarity, title, category, price, currency, created_ts
		FROM product_match
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY region_id ASC, rank ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list matches")
	}
	defer rows.Close()

	list := make([]*store.Match, 0)
	for rows.Next() {
		match := &store.Match{}
		if err := rows.Scan(
			&match.ID, &match.JobID, &match.RegionID, &match.Rank, &match.ProductID,
			&match.Score, &match.Similarity, &match.Title, &match.Category,
			&match.Price, &match.Currency, &match.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan match")
		}
		list = append(list, match)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate matches")
	}

	return list, nil
}
