package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ghurfati/ghurfati/store"
)

func (d *DB) CreateJob(ctx context.Context, create *store.Job) (*store.Job, error) {
	fields := []string{"id", "photo_ref", "style", "strength", "room_hint", "status", "created_ts", "updated_ts"}
	args := []any{create.ID, create.PhotoRef, create.Style, create.Strength, create.RoomHint, string(create.Status), create.CreatedTs, create.UpdatedTs}

	stmt := `INSERT INTO job (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create job")
	}

	return create, nil
}

func (d *DB) ListJobs(ctx context.Context, find *store.FindJob) ([]*store.Job, error) {
	where, args := []string{"1 = 1"}, []any{}

	if find.ID != nil {
		where, args = append(where, "id = ?"), append(args, *find.ID)
	}
	if len(find.Status) > 0 {
		list := []string{}
		for _, status := range find.Status {
			list, args = append(list, "?"), append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(list, ", ")+")")
	}
	if find.CreatedBefore != nil {
		where, args = append(where, "created_ts < ?"), append(args, *find.CreatedBefore)
	}

	query := `
		SELECT
			id, photo_ref, style, strength, room_hint, status,
			generation_attempts, extraction_attempts, matching_attempts,
			failed_stage, error_class, error_message,
			created_ts, updated_ts
		FROM job
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY created_ts DESC, id DESC`
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
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	list := make([]*store.Job, 0)
	for rows.Next() {
		job := &store.Job{}
		var status string
		if err := rows.Scan(
			&job.ID, &job.PhotoRef, &job.Style, &job.Strength, &job.RoomHint, &status,
			&job.GenerationAttempts, &job.ExtractionAttempts, &job.MatchingAttempts,
			&job.FailedStage, &job.ErrorClass, &job.ErrorMessage,
			&job.CreatedTs, &job.UpdatedTs,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		job.Status = store.JobStatus(status)
		list = append(list, job)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate jobs")
	}

	return list, nil
}

func (d *DB) UpdateJob(ctx context.Context, update *store.UpdateJob) (*store.Job, error) {
	set, args := []string{}, []any{}

	if v := update.Status; v != nil {
		set, args = append(set, "status = ?"), append(args, string(*v))
	}
	if v := update.GenerationAttempts; v != nil {
		set, args = append(set, "generation_attempts = ?"), append(args, *v)
	}
	if v := update.ExtractionAttempts; v != nil {
		set, args = append(set, "extraction_attempts = ?"), append(args, *v)
	}
	if v := update.MatchingAttempts; v != nil {
		set, args = append(set, "matching_attempts = ?"), append(args, *v)
	}
	if v := update.FailedStage; v != nil {
		set, args = append(set, "failed_stage = ?"), append(args, *v)
	}
	if v := update.ErrorClass; v != nil {
		set, args = append(set, "error_class = ?"), append(args, *v)
	}
	if v := update.ErrorMessage; v != nil {
		set, args = append(set, "error_message = ?"), append(args, *v)
	}
	set, args = append(set, "updated_ts = ?"), append(args, time.Now().Unix())
	args = append(args, update.ID)

	stmt := `UPDATE job SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrapf(err, "failed to update job %s", update.ID)
	}

	list, err := d.ListJobs(ctx, &store.FindJob{ID: &update.ID})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, errors.Errorf("job %s not found after update", update.ID)
	}
	return list[0], nil
}

func (d *DB) DeleteJobs(ctx context.Context, delete *store.DeleteJob) (int64, error) {
	where, args := []string{"1 = 1"}, []any{}

	if len(delete.IDs) > 0 {
		list := []string{}
		for _, id := range delete.IDs {
			list, args = append(list, "?"), append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(list, ", ")+")")
	}
	if len(delete.Status) > 0 {
		list := []string{}
		for _, status := range delete.Status {
			list, args = append(list, "?"), append(args, string(status))
		}
		where = append(where, "status IN ("+strings.Join(list, ", ")+")")
	}
	if delete.CreatedBefore != nil {
		where, args = append(where, "created_ts < ?"), append(args, *delete.CreatedBefore)
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to begin tx")
	}
	defer tx.Rollback()

	condition := strings.Join(where, " AND ")
	for _, stmt := range []string{
		"DELETE FROM product_match WHERE job_id IN (SELECT id FROM job WHERE " + condition + ")",
		"DELETE FROM region WHERE job_id IN (SELECT id FROM job WHERE " + condition + ")",
		"DELETE FROM styled_image WHERE job_id IN (SELECT id FROM job WHERE " + condition + ")",
	} {
		if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
			return 0, errors.Wrap(err, "failed to delete job children")
		}
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM job WHERE "+condition, args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete jobs")
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count deleted jobs")
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit tx")
	}
	return n, nil
}
