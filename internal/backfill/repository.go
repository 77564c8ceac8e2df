package backfill

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/store"
)

const jobColumns = `job_id, team, start_date, end_date, dry_run, build_features,
	status, status_message, progress_current, progress_total, pages_ok, pages_failed,
	last_error, retry_count, created_at, updated_at, started_at, completed_at`

// Repository handles persistence for scrape jobs and their events.
type Repository struct {
	db *store.Database
}

func NewRepository(db *store.Database) *Repository {
	return &Repository{db: db}
}

// CreateJob inserts a queued job and returns the stored record.
func (r *Repository) CreateJob(ctx context.Context, job *Job) (*Job, error) {
	query := `
		INSERT INTO scrape_jobs (
			team, start_date, end_date, dry_run, build_features, status, status_message
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		RETURNING ` + jobColumns

	row := r.db.DB().QueryRowContext(ctx, query,
		job.Team, job.StartDate, job.EndDate, job.DryRun, job.BuildFeatures,
		job.Status, job.StatusMessage,
	)
	created, err := scanJob(row)
	if err != nil {
		return nil, errors.Wrap(err, "insert job")
	}
	return created, nil
}

// UpdateStatus sets status, message and optional error. Terminal states
// stamp completed_at.
func (r *Repository) UpdateStatus(ctx context.Context, jobID int64, status JobStatus, message string, lastErr error) error {
	query := `
		UPDATE scrape_jobs
		SET status = $2::varchar,
			status_message = $3,
			last_error = COALESCE($4, last_error),
			updated_at = NOW(),
			completed_at = CASE WHEN $2::varchar IN ('completed','failed','cancelled') THEN NOW() ELSE completed_at END
		WHERE job_id = $1
	`

	var errText sql.NullString
	if lastErr != nil {
		errText = sql.NullString{String: lastErr.Error(), Valid: true}
	}
	if _, err := r.db.DB().ExecContext(ctx, query, jobID, string(status), message, errText); err != nil {
		return errors.Wrap(err, "update job status")
	}
	return nil
}

// UpdateProgress updates the progress counters and message.
func (r *Repository) UpdateProgress(ctx context.Context, jobID int64, current, total int, message string) error {
	query := `
		UPDATE scrape_jobs
		SET progress_current = $2,
			progress_total = $3,
			status_message = $4,
			updated_at = NOW()
		WHERE job_id = $1
	`
	if _, err := r.db.DB().ExecContext(ctx, query, jobID, current, total, message); err != nil {
		return errors.Wrap(err, "update job progress")
	}
	return nil
}

// UpdateCounts records how many pages were assembled and skipped.
func (r *Repository) UpdateCounts(ctx context.Context, jobID int64, ok, failed int) error {
	query := `
		UPDATE scrape_jobs
		SET pages_ok = $2,
			pages_failed = $3,
			updated_at = NOW()
		WHERE job_id = $1
	`
	if _, err := r.db.DB().ExecContext(ctx, query, jobID, ok, failed); err != nil {
		return errors.Wrap(err, "update job counts")
	}
	return nil
}

// AppendEvent stores a log entry for a job.
func (r *Repository) AppendEvent(ctx context.Context, jobID int64, eventType, message string, current, total *int) error {
	query := `
		INSERT INTO scrape_job_events (job_id, event_type, message, progress_current, progress_total)
		VALUES ($1,$2,$3,$4,$5)
	`

	var currentVal, totalVal sql.NullInt64
	if current != nil {
		currentVal = sql.NullInt64{Int64: int64(*current), Valid: true}
	}
	if total != nil {
		totalVal = sql.NullInt64{Int64: int64(*total), Valid: true}
	}
	if _, err := r.db.DB().ExecContext(ctx, query, jobID, eventType, message, currentVal, totalVal); err != nil {
		return errors.Wrap(err, "insert job event")
	}
	return nil
}

// ResetStuckJobs moves running jobs back to queued after a restart.
func (r *Repository) ResetStuckJobs(ctx context.Context) (int64, error) {
	res, err := r.db.DB().ExecContext(ctx, `
		UPDATE scrape_jobs
		SET status = 'queued',
			status_message = 'Reset after service restart',
			retry_count = retry_count + 1,
			updated_at = NOW()
		WHERE status = 'running'
	`)
	if err != nil {
		return 0, errors.Wrap(err, "reset stuck jobs")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MarkNextJobRunning atomically claims the oldest queued job. It returns
// nil when the queue is empty.
func (r *Repository) MarkNextJobRunning(ctx context.Context) (*Job, error) {
	query := `
		WITH next_job AS (
			SELECT job_id
			FROM scrape_jobs
			WHERE status = 'queued'
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scrape_jobs
		SET status = 'running',
			status_message = 'Walking schedule',
			started_at = COALESCE(started_at, NOW()),
			updated_at = NOW()
		FROM next_job
		WHERE scrape_jobs.job_id = next_job.job_id
		RETURNING scrape_jobs.job_id, scrape_jobs.team, scrape_jobs.start_date, scrape_jobs.end_date,
			scrape_jobs.dry_run, scrape_jobs.build_features, scrape_jobs.status, scrape_jobs.status_message,
			scrape_jobs.progress_current, scrape_jobs.progress_total, scrape_jobs.pages_ok,
			scrape_jobs.pages_failed, scrape_jobs.last_error, scrape_jobs.retry_count,
			scrape_jobs.created_at, scrape_jobs.updated_at, scrape_jobs.started_at, scrape_jobs.completed_at
	`

	job, err := scanJob(r.db.DB().QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "claim next job")
	}
	return job, nil
}

// GetJob returns one job by id.
func (r *Repository) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	row := r.db.DB().QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE job_id = $1`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.Mark(errors.Newf("job %d", jobID), store.ErrNotFound)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get job")
	}
	return job, nil
}

// GetActiveJob returns the currently running job, if any.
func (r *Repository) GetActiveJob(ctx context.Context) (*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM scrape_jobs
		WHERE status = 'running'
		ORDER BY started_at DESC
		LIMIT 1
	`
	job, err := scanJob(r.db.DB().QueryRowContext(ctx, query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get active job")
	}
	return job, nil
}

// ListRecentJobs returns the newest jobs first.
func (r *Repository) ListRecentJobs(ctx context.Context, limit int) ([]*Job, error) {
	query := `SELECT ` + jobColumns + `
		FROM scrape_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`
	rows, err := r.db.DB().QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list recent jobs")
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface {
	Scan(dest ...interface{}) error
}) (*Job, error) {
	job := &Job{}
	err := scanner.Scan(
		&job.JobID,
		&job.Team,
		&job.StartDate,
		&job.EndDate,
		&job.DryRun,
		&job.BuildFeatures,
		&job.Status,
		&job.StatusMessage,
		&job.ProgressCurrent,
		&job.ProgressTotal,
		&job.PagesOK,
		&job.PagesFailed,
		&job.LastError,
		&job.RetryCount,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	return job, nil
}
