package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

func (d *DB) CreateRegions(ctx context.Context, creates []*store.Region) ([]*store.Region, error) {
	if len(creates) == 0 {
		return creates, nil
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	fields := []string{"id", "job_id", "styled_image_id", "idx", "label", "category", "x", "y", "width", "height", "crop_ref", "embedding", "created_ts"}
	stmt := `INSERT INTO region (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(fields)) + `)`

	for _, create := range creates {
		blob, err := float32ArrayToBLOB(create.Embedding)
		if err != nil {
			return nil, err
		}
		args := []any{
			create.ID, create.JobID, create.StyledImageID, create.Idx, create.Label, create.Category,
			create.X, create.Y, create.Width, create.Height, create.CropRef,
			blob, create.CreatedTs,
		}
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return nil, errors.Wrapf(err, "failed to create region %s", create.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "failed to commit tx")
	}
	return creates, nil
}

func (d *DB) ListRegions(ctx context.Context, find *store.FindRegion) ([]*store.Region, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.JobID != nil {
		where, args = append(where, "job_id = ?"), append(args, *find.JobID)
	}

	query := `
		SELECT id, job_id, styled_image_id, idx, label, category, x, y, width, height, crop_ref, embedding, created_ts
		FROM region
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY idx ASC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list regions")
	}
	defer rows.Close()

	list := make([]*store.Region, 0)
	for rows.Next() {
		region := &store.Region{}
		var blob []byte
		if err := rows.Scan(
			&region.ID, &region.JobID, &region.StyledImageID, &region.Idx, &region.Label, &region.Category,
			&region.X, &region.Y, &region.Width, &region.Height, &region.CropRef,
			&blob, &region.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan region")
		}
		embedding, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, err
		}
		region.Embedding = embedding
		list = append(list, region)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate regions")
	}

	return list, nil
}
