package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/learningops/lmsync/internal/models"
)

// JobRunRepository persists and queries sync job runs.
type JobRunRepository struct {
	db *sql.DB
}

// NewJobRunRepository creates a PostgreSQL-backed job run repository.
func NewJobRunRepository(db *sql.DB) *JobRunRepository {
	return &JobRunRepository{db: db}
}

// Store saves a finished job run. Runs are written once, at terminal state;
// the upsert only covers retried persistence of the same run.
func (r *JobRunRepository) Store(ctx context.Context, run models.JobRun) error {
	query := `
		INSERT INTO job_runs (
			id, pipeline, status, started_at, finished_at,
			records_extracted, records_transformed, records_loaded,
			validation_errors, error_msg, duration_seconds
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			finished_at = EXCLUDED.finished_at,
			records_extracted = EXCLUDED.records_extracted,
			records_transformed = EXCLUDED.records_transformed,
			records_loaded = EXCLUDED.records_loaded,
			validation_errors = EXCLUDED.validation_errors,
			error_msg = EXCLUDED.error_msg,
			duration_seconds = EXCLUDED.duration_seconds
	`

	var finishedAt sql.NullTime
	if run.FinishedAt != nil {
		finishedAt = sql.NullTime{Time: *run.FinishedAt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Pipeline,
		string(run.Status),
		run.StartedAt,
		finishedAt,
		run.RecordsExtracted,
		run.RecordsTransformed,
		run.RecordsLoaded,
		run.ValidationErrors,
		run.ErrorMsg,
		run.Duration,
	)
	if err != nil {
		return fmt.Errorf("store job run: %w", err)
	}

	return nil
}

// GetByID retrieves one job run.
func (r *JobRunRepository) GetByID(ctx context.Context, id string) (*models.JobRun, error) {
	query := `
		SELECT id, pipeline, status, started_at, finished_at,
			records_extracted, records_transformed, records_loaded,
			validation_errors, error_msg, duration_seconds
		FROM job_runs
		WHERE id = $1
	`

	run, err := scanJobRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job run: %w", err)
	}

	return run, nil
}

// ListRecent retrieves the most recent runs, newest first, optionally
// filtered by pipeline.
func (r *JobRunRepository) ListRecent(ctx context.Context, pipeline string, limit int) ([]models.JobRun, error) {
	query := `
		SELECT id, pipeline, status, started_at, finished_at,
			records_extracted, records_transformed, records_loaded,
			validation_errors, error_msg, duration_seconds
		FROM job_runs
	`

	args := []any{}
	if pipeline != "" {
		query += " WHERE pipeline = $1 ORDER BY started_at DESC LIMIT $2"
		args = append(args, pipeline, limit)
	} else {
		query += " ORDER BY started_at DESC LIMIT $1"
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list job runs: %w", err)
	}
	defer rows.Close()

	var runs []models.JobRun
	for rows.Next() {
		run, err := scanJobRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		runs = append(runs, *run)
	}

	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJobRun(row rowScanner) (*models.JobRun, error) {
	var run models.JobRun
	var status string
	var finishedAt sql.NullTime
	var errorMsg sql.NullString

	err := row.Scan(
		&run.ID,
		&run.Pipeline,
		&status,
		&run.StartedAt,
		&finishedAt,
		&run.RecordsExtracted,
		&run.RecordsTransformed,
		&run.RecordsLoaded,
		&run.ValidationErrors,
		&errorMsg,
		&run.Duration,
	)
	if err != nil {
		return nil, err
	}

	run.Status = models.JobStatus(status)
	if finishedAt.Valid {
		run.FinishedAt = &finishedAt.Time
	}
	if errorMsg.Valid {
		run.ErrorMsg = errorMsg.String
	}

	return &run, nil
}
