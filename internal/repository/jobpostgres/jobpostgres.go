// Package jobpostgres stores export jobs in PostgreSQL
package jobpostgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/UnendingLoop/MarkFlow/internal/model"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"
)

type PostgresRepo struct {
	DB *dbpg.DB
}

func (p PostgresRepo) Create(ctx context.Context, j *model.ExportJob) error {
	query := `INSERT INTO export_jobs (job_uid, source_key, wm_key, result_key, source_ctype, file_name, position, opacity, scale, x_axis, y_axis, adaptive_color, status, err_msg, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err := p.DB.Master.ExecContext(ctx, query,
		j.UID, j.SourceKey, j.WatermarkKey, j.ResultKey, j.SourceCType, j.FileName,
		j.Position, j.Opacity, j.Scale, j.X, j.Y, j.AdaptiveColor,
		j.Status, j.ErrMsg, j.CreatedAt, j.CreatedAt)
	return err
}

func (p PostgresRepo) Get(ctx context.Context, id string) (*model.ExportJob, error) {
	query := `SELECT job_uid, source_key, wm_key, result_key, source_ctype, file_name, position, opacity, scale, x_axis, y_axis, adaptive_color, status, err_msg, output_path, created_at, updated_at
	FROM export_jobs
	WHERE job_uid = $1`
	var job model.ExportJob

	err := p.DB.QueryRowContext(ctx, query, id).Scan(&job.UID,
		&job.SourceKey,
		&job.WatermarkKey,
		&job.ResultKey,
		&job.SourceCType,
		&job.FileName,
		&job.Position,
		&job.Opacity,
		&job.Scale,
		&job.X,
		&job.Y,
		&job.AdaptiveColor,
		&job.Status,
		&job.ErrMsg,
		&job.OutputPath,
		&job.CreatedAt,
		&job.UpdatedAt)
	if err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, model.ErrJobNotFound
		default:
			return nil, err // 500
		}
	}
	return &job, nil
}

// GetList expects req.Sort and req.Order already normalized to column name and ASC/DESC.
func (p PostgresRepo) GetList(ctx context.Context, req *model.ListRequest) ([]model.ExportJob, error) {
	query := fmt.Sprintf(`SELECT job_uid, file_name, position, opacity, scale, x_axis, y_axis, adaptive_color, status, err_msg, created_at, updated_at
	FROM export_jobs
	ORDER BY %s %s
	LIMIT $1
	OFFSET $2`, req.Sort, req.Order)

	offset := (req.Page - 1) * req.Limit

	rows, err := p.DB.QueryContext(ctx, query, req.Limit, offset)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			zlog.Logger.Warn().Err(err).Msg("Error while closing *sql.Rows after scanning")
		}
	}()

	jobs := make([]model.ExportJob, 0, req.Limit)
	for rows.Next() {
		var job model.ExportJob
		if err := rows.Scan(&job.UID,
			&job.FileName,
			&job.Position,
			&job.Opacity,
			&job.Scale,
			&job.X,
			&job.Y,
			&job.AdaptiveColor,
			&job.Status,
			&job.ErrMsg,
			&job.CreatedAt,
			&job.UpdatedAt); err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return jobs, nil
}

func (p PostgresRepo) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM export_jobs
	WHERE job_uid = $1`

	res, err := p.DB.Master.ExecContext(ctx, query, id)
	return checkAffected(res, err)
}

func (p PostgresRepo) UpdateStatus(ctx context.Context, id string, newStat model.Status) error {
	query := `UPDATE export_jobs SET status = $1, updated_at = now() WHERE job_uid = $2`

	res, err := p.DB.Master.ExecContext(ctx, query, newStat, id)
	return checkAffected(res, err)
}

func (p PostgresRepo) SaveResult(ctx context.Context, j *model.ExportJob) error {
	query := `UPDATE export_jobs SET status = $1, updated_at = $2, result_key = $3, output_path = $4, err_msg = $5 WHERE job_uid = $6`

	res, err := p.DB.Master.ExecContext(ctx, query, j.Status, j.UpdatedAt, j.ResultKey, j.OutputPath, j.ErrMsg, j.UID)
	return checkAffected(res, err)
}

// FetchOrphans returns UIDs of jobs stuck in created/in_progress for longer than model.OrphanTimeout.
func (p PostgresRepo) FetchOrphans(ctx context.Context, limit int) ([]string, error) {
	query := `SELECT job_uid
	FROM export_jobs
	WHERE status IN ($1, $2)
	AND updated_at < now() - make_interval(secs => $3)
	LIMIT $4`

	rows, err := p.DB.QueryContext(ctx, query, model.StatusCreated, model.StatusInProgress, model.OrphanTimeout.Seconds(), limit)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := rows.Close(); err != nil {
			zlog.Logger.Warn().Err(err).Msg("Error while closing *sql.Rows after scanning")
		}
	}()

	orphans := make([]string, 0, limit)
	for rows.Next() {
		uid := ""
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		orphans = append(orphans, uid)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return orphans, nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err // 500
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrJobNotFound // 404
	}
	return nil
}
