package repository

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/store"
)

// FailureRepository keeps the pages a backfill could not use.
type FailureRepository struct {
	db *store.Database
}

func NewFailureRepository(db *store.Database) *FailureRepository {
	return &FailureRepository{db: db}
}

// Record stores one page failure; jobID 0 means an ad-hoc run.
func (r *FailureRepository) Record(ctx context.Context, jobID int64, pe *bbref.PageError) error {
	_, err := r.db.DB().ExecContext(ctx, `
		INSERT INTO scrape_failures (job_id, box_score_id, url, kind, message)
		VALUES ($1, $2, $3, $4, $5)
	`,
		sql.NullInt64{Int64: jobID, Valid: jobID != 0},
		sql.NullString{String: pe.BoxScoreID, Valid: pe.BoxScoreID != ""},
		pe.URL, bbref.Kind(pe.Err), pe.Err.Error(),
	)
	if err != nil {
		return errors.Wrapf(err, "recording failure for %s", pe.URL)
	}
	return nil
}

// List returns the newest failures first; jobID 0 lists across jobs.
func (r *FailureRepository) List(ctx context.Context, jobID int64, limit int) ([]*store.Failure, error) {
	rows, err := r.db.DB().QueryContext(ctx, `
		SELECT id, job_id, box_score_id, url, kind, message, created_at
		FROM scrape_failures
		WHERE $1 = 0 OR job_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, jobID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying failures")
	}
	defer rows.Close()

	var out []*store.Failure
	for rows.Next() {
		f := &store.Failure{}
		if err := rows.Scan(&f.ID, &f.JobID, &f.BoxScoreID, &f.URL, &f.Kind, &f.Message, &f.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning failure")
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
