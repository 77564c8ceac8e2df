package backfill

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

// ErrInvalidRequest marks a request the service refuses to queue.
var ErrInvalidRequest = errors.New("invalid backfill request")

// Request represents a scrape invocation. Either Season or both dates must
// be set; Season expands to the whole regular season window.
type Request struct {
	Team          string
	Season        int
	Start         *time.Time
	End           *time.Time
	DryRun        bool
	BuildFeatures bool
}

// Window resolves the request's inclusive date range.
func (r Request) Window() (time.Time, time.Time, error) {
	switch {
	case r.Start != nil && r.End != nil:
		return truncateDate(*r.Start), truncateDate(*r.End), nil
	case r.Start != nil || r.End != nil:
		return time.Time{}, time.Time{}, errors.Mark(errors.New("start and end must be given together"), ErrInvalidRequest)
	case r.Season > 0:
		start, end := seasonWindow(r.Season)
		return start, end, nil
	default:
		return time.Time{}, time.Time{}, errors.Mark(errors.New("request needs a season or a date range"), ErrInvalidRequest)
	}
}

type jobStore interface {
	CreateJob(ctx context.Context, job *Job) (*Job, error)
	UpdateStatus(ctx context.Context, jobID int64, status JobStatus, message string, lastErr error) error
	UpdateProgress(ctx context.Context, jobID int64, current, total int, message string) error
	UpdateCounts(ctx context.Context, jobID int64, ok, failed int) error
	AppendEvent(ctx context.Context, jobID int64, eventType, message string, current, total *int) error
	ResetStuckJobs(ctx context.Context) (int64, error)
	MarkNextJobRunning(ctx context.Context) (*Job, error)
	GetJob(ctx context.Context, jobID int64) (*Job, error)
	GetActiveJob(ctx context.Context) (*Job, error)
	ListRecentJobs(ctx context.Context, limit int) ([]*Job, error)
}

type jobRunner interface {
	Run(ctx context.Context, jobID int64, spec JobSpec, reporter Reporter) (*Result, error)
}

// EventSink receives live job events, typically a websocket hub.
type EventSink interface {
	Broadcast(ev Event)
}

type ServiceOptions struct {
	Franchises   bbref.Franchises
	PollInterval time.Duration
	HistoryLimit int
	Events       EventSink
	Logger       *logging.Logger
}

// Service coordinates job persistence, execution and status reporting.
type Service struct {
	repo       jobStore
	runner     jobRunner
	franchises bbref.Franchises
	events     EventSink

	poll         time.Duration
	historyLimit int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logging.Logger
}

// NewService constructs a Service. Call Start to launch the worker.
func NewService(repo jobStore, runner jobRunner, opts ServiceOptions) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	return &Service{
		repo:         repo,
		runner:       runner,
		franchises:   opts.Franchises,
		events:       opts.Events,
		poll:         opts.PollInterval,
		historyLimit: opts.HistoryLimit,
		ctx:          ctx,
		cancel:       cancel,
		log:          opts.Logger.Component("backfill-service"),
	}
}

// Start requeues jobs interrupted by a restart and launches the worker loop.
func (s *Service) Start() {
	n, err := s.repo.ResetStuckJobs(s.ctx)
	if err != nil {
		s.log.Error("failed to reset jobs", "err", err)
	} else if n > 0 {
		s.log.Info("requeued interrupted jobs", "count", n)
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops the worker and waits for the running job to notice.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue validates req and stores it as a queued job.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	req.Team = strings.ToUpper(strings.TrimSpace(req.Team))
	if req.Team == "" {
		req.Team = bbref.AllTeams
	}
	if !s.franchises.Valid(req.Team) {
		return nil, errors.Mark(errors.Newf("unknown team code %q", req.Team), bbref.ErrInvalidTeam)
	}
	start, end, err := req.Window()
	if err != nil {
		return nil, err
	}
	if start.After(end) {
		return nil, errors.Mark(
			errors.Newf("start %s is after end %s", start.Format(time.DateOnly), end.Format(time.DateOnly)),
			bbref.ErrInvalidDateRange)
	}

	job := &Job{
		Team:          req.Team,
		StartDate:     start,
		EndDate:       end,
		DryRun:        req.DryRun,
		BuildFeatures: req.BuildFeatures,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}
	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	if err := s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued", nil, nil); err != nil {
		s.log.Warn("append event", "job_id", stored.JobID, "err", err)
	}
	s.broadcast(Event{JobID: stored.JobID, Type: "queued", Message: "Job queued"})
	return stored, nil
}

// GetJob returns one job. Unknown ids keep the store.ErrNotFound mark.
func (s *Service) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	return s.repo.GetJob(ctx, jobID)
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}
	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}
	return &StatusSummary{ActiveJob: active, History: history}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		if s.ctx.Err() != nil {
			return
		}
		job, err := s.repo.MarkNextJobRunning(s.ctx)
		if err != nil {
			s.log.Error("claim job", "err", err)
		}
		if job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}
		s.executeJob(job)
	}
}

func (s *Service) executeJob(job *Job) {
	ctx := logging.WithJob(s.ctx, job.JobID)
	reporter := &jobReporter{ctx: ctx, svc: s, jobID: job.JobID}

	res, err := s.runner.Run(ctx, job.JobID, job.Spec(), reporter)
	if res != nil {
		ok, failed := len(res.Records), len(res.Failures)
		if err := s.repo.UpdateCounts(ctx, job.JobID, ok, failed); err != nil {
			s.log.WarnContext(ctx, "update counts", "err", err)
		}
	}

	status, message := JobStatusCompleted, "Job completed"
	switch {
	case errors.Is(err, context.Canceled):
		status, message = JobStatusCancelled, "Job cancelled"
	case err != nil:
		status, message = JobStatusFailed, "Job failed"
	case res != nil && len(res.Failures) > 0:
		message = fmt.Sprintf("Job completed with %d skipped pages", len(res.Failures))
	}

	// The service context may already be cancelled; the final status must
	// still land.
	final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if uerr := s.repo.UpdateStatus(final, job.JobID, status, message, err); uerr != nil {
		s.log.ErrorContext(ctx, "update job status", "err", uerr)
	}
	s.broadcast(Event{JobID: job.JobID, Type: string(status), Message: message})
	s.log.InfoContext(ctx, "job finished", "status", status, "message", message)
}

func (s *Service) broadcast(ev Event) {
	if s.events == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	s.events.Broadcast(ev)
}

// jobReporter mirrors runner callbacks into the job row, the event log and
// live subscribers.
type jobReporter struct {
	ctx   context.Context
	svc   *Service
	jobID int64
	total int
}

func (r *jobReporter) progress(current int, message string) {
	if err := r.svc.repo.UpdateProgress(r.ctx, r.jobID, current, r.total, message); err != nil {
		r.svc.log.WarnContext(r.ctx, "update progress", "err", err)
	}
}

func (r *jobReporter) event(ev Event, current, total *int) {
	ev.JobID = r.jobID
	if err := r.svc.repo.AppendEvent(r.ctx, r.jobID, ev.Type, ev.Message, current, total); err != nil {
		r.svc.log.WarnContext(r.ctx, "append event", "err", err)
	}
	r.svc.broadcast(ev)
}

func (r *jobReporter) OnJobStart(spec JobSpec) {
	msg := fmt.Sprintf("Walking %s schedule %s to %s", spec.Team,
		spec.Start.Format(time.DateOnly), spec.End.Format(time.DateOnly))
	r.progress(0, msg)
	r.event(Event{Type: "started", Message: msg}, nil, nil)
}

func (r *jobReporter) OnScheduleReady(total int) {
	r.total = total
	msg := fmt.Sprintf("%d box scores scheduled", total)
	r.progress(0, msg)
	r.event(Event{Type: "scheduled", Message: msg, Total: total}, nil, &total)
}

func (r *jobReporter) OnGameProcessed(boxScoreID string, current, total int) {
	r.progress(current, fmt.Sprintf("Processed %s (%d/%d)", boxScoreID, current, total))
	r.svc.broadcast(Event{JobID: r.jobID, Type: "game", BoxScoreID: boxScoreID, Current: current, Total: total})
}

func (r *jobReporter) OnPageFailed(pe *bbref.PageError, current, total int) {
	kind := bbref.Kind(pe.Err)
	ev := Event{Type: "page_failed", Message: pe.Error(), BoxScoreID: pe.BoxScoreID, Kind: kind, Current: current, Total: total}
	if current > 0 {
		r.progress(current, fmt.Sprintf("Skipped %s (%d/%d)", pe.BoxScoreID, current, total))
		r.event(ev, &current, &total)
		return
	}
	r.event(ev, nil, nil)
}

func (r *jobReporter) OnProgress(message string) {
	r.event(Event{Type: "progress", Message: message}, nil, nil)
}

func (r *jobReporter) OnJobComplete(res *Result) {
	msg := fmt.Sprintf("%d games assembled, %d pages skipped", len(res.Records), len(res.Failures))
	r.progress(r.total, msg)
	r.event(Event{Type: "complete", Message: msg, Current: r.total, Total: r.total}, nil, nil)
}

func (r *jobReporter) OnJobError(err error) {
	r.event(Event{Type: "error", Message: err.Error(), Kind: bbref.Kind(err)}, nil, nil)
}

// seasonWindow spans spring openers through the end of the postseason.
func seasonWindow(year int) (time.Time, time.Time) {
	start := time.Date(year, time.March, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(year, time.November, 30, 0, 0, 0, 0, time.UTC)
	return start, end
}

func truncateDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
