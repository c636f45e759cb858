package sqlite

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

func (d *DB) CreateStyledImage(ctx context.Context, create *store.StyledImage) (*store.StyledImage, error) {
	fields := []string{"job_id", "image_ref", "style", "strength", "room_hint", "prompt", "latency_ms", "created_ts"}
	args := []any{create.JobID, create.ImageRef, create.Style, create.Strength, create.RoomHint, create.Prompt, create.LatencyMs, create.CreatedTs}

	stmt := `INSERT INTO styled_image (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)
		RETURNING id`
	if err := d.db.QueryRowContext(ctx, stmt, args...).Scan(&create.ID); err != nil {
		return nil, errors.Wrap(err, "failed to create styled image")
	}

	return create, nil
}

func (d *DB) ListStyledImages(ctx context.Context, find *store.FindStyledImage) ([]*store.StyledImage, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if find.JobID != nil {
		where, args = append(where, "job_id = ?"), append(args, *find.JobID)
	}

	query := `
		SELECT id, job_id, image_ref, style, strength, room_hint, prompt, latency_ms, created_ts
		FROM styled_image
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY id DESC`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list styled images")
	}
	defer rows.Close()

	list := make([]*store.StyledImage, 0)
	for rows.Next() {
		image := &store.StyledImage{}
		if err := rows.Scan(
			&image.ID, &image.JobID, &image.ImageRef, &image.Style, &image.Strength,
			&image.RoomHint, &image.Prompt, &image.LatencyMs, &image.CreatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan styled image")
		}
		list = append(list, image)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate styled images")
	}

	return list, nil
}
