package backfill

import (
	"database/sql"
	"time"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/table"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Job models the database representation of a scrape job.
type Job struct {
	JobID           int64          `json:"job_id"`
	Team            string         `json:"team"`
	StartDate       time.Time      `json:"start_date"`
	EndDate         time.Time      `json:"end_date"`
	DryRun          bool           `json:"dry_run"`
	BuildFeatures   bool           `json:"build_features"`
	Status          JobStatus      `json:"status"`
	StatusMessage   sql.NullString `json:"status_message"`
	ProgressCurrent int            `json:"progress_current"`
	ProgressTotal   int            `json:"progress_total"`
	PagesOK         int            `json:"pages_ok"`
	PagesFailed     int            `json:"pages_failed"`
	LastError       sql.NullString `json:"last_error"`
	RetryCount      int            `json:"retry_count"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	StartedAt       sql.NullTime   `json:"started_at"`
	CompletedAt     sql.NullTime   `json:"completed_at"`
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	return &cpy
}

// Spec returns the work the job describes.
func (j *Job) Spec() JobSpec {
	return JobSpec{
		Team:          j.Team,
		Start:         j.StartDate,
		End:           j.EndDate,
		DryRun:        j.DryRun,
		BuildFeatures: j.BuildFeatures,
	}
}

// JobSpec describes the work to be performed by the runner: every box score
// of Team (or ALL) between Start and End inclusive.
type JobSpec struct {
	Team          string
	Start         time.Time
	End           time.Time
	DryRun        bool
	BuildFeatures bool
}

// Result is what a run produced. Failures hold every page that was skipped,
// in schedule order.
type Result struct {
	Scheduled int
	Records   []*bbref.GameRecord
	Failures  []*bbref.PageError
	Corpus    *corpus.FlatCorpus
	Features  map[int]*table.Table
}

// Reporter receives lifecycle callbacks from the runner. Calls are
// serialized by the runner.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnScheduleReady(total int)
	OnGameProcessed(boxScoreID string, current, total int)
	OnPageFailed(pe *bbref.PageError, current, total int)
	OnProgress(message string)
	OnJobComplete(res *Result)
	OnJobError(err error)
}

// NopReporter ignores every callback.
type NopReporter struct{}

func (NopReporter) OnJobStart(JobSpec)                      {}
func (NopReporter) OnScheduleReady(int)                     {}
func (NopReporter) OnGameProcessed(string, int, int)        {}
func (NopReporter) OnPageFailed(*bbref.PageError, int, int) {}
func (NopReporter) OnProgress(string)                       {}
func (NopReporter) OnJobComplete(*Result)                   {}
func (NopReporter) OnJobError(error)                        {}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}

// Event is a progress notification fanned out to live subscribers.
type Event struct {
	JobID      int64     `json:"job_id"`
	Type       string    `json:"type"`
	Message    string    `json:"message,omitempty"`
	BoxScoreID string    `json:"box_score_id,omitempty"`
	Kind       string    `json:"kind,omitempty"`
	Current    int       `json:"current"`
	Total      int       `json:"total"`
	At         time.Time `json:"at"`
}
