// Package scheduler queues a nightly backfill of the previous day's games so
// the corpus and season features stay current during the season.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

// Enqueuer accepts backfill requests; *backfill.Service satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, req backfill.Request) (*backfill.Job, error)
}

type Config struct {
	Hour       int
	Team       string
	MaxRetries int
	RetryDelay time.Duration
}

func FromConfig(c config.SchedulerConfig) Config {
	return Config{Hour: c.Hour, Team: c.Team, MaxRetries: c.MaxRetries, RetryDelay: c.RetryDelay}
}

// Orchestrator runs the daily refresh loop.
type Orchestrator struct {
	jobs Enqueuer
	cfg  Config
	log  *logging.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewOrchestrator(jobs Enqueuer, cfg Config, log *logging.Logger) *Orchestrator {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	if cfg.Team == "" {
		cfg.Team = bbref.AllTeams
	}
	return &Orchestrator{
		jobs:  jobs,
		cfg:   cfg,
		log:   log.Component("scheduler"),
		now:   time.Now,
		after: time.After,
	}
}

// Start launches the loop. It is a no-op when already running.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		return
	}
	ctx, o.cancel = context.WithCancel(ctx)
	o.done = make(chan struct{})

	o.log.Info("daily refresh scheduled", "hour", o.cfg.Hour, "team", o.cfg.Team)
	go o.run(ctx, o.done)
}

// Stop cancels the loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.cancel, o.done = nil, nil
	o.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	o.log.Info("scheduler stopped")
}

func (o *Orchestrator) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		now := o.now()
		next := o.NextRun(now)
		wait := next.Sub(now)
		o.log.Debug("next daily refresh", "at", next.Format(time.RFC3339), "in", wait.Round(time.Second))

		select {
		case <-ctx.Done():
			return
		case <-o.after(wait):
		}

		if _, err := o.RunOnce(ctx, PreviousDay(o.now())); err != nil && ctx.Err() == nil {
			o.log.Error("daily refresh failed", "err", err)
		}
	}
}

// NextRun is the first refresh time strictly after now.
func (o *Orchestrator) NextRun(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), o.cfg.Hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// PreviousDay is the calendar day before now, as a UTC date.
func PreviousDay(now time.Time) time.Time {
	y := now.AddDate(0, 0, -1)
	return time.Date(y.Year(), y.Month(), y.Day(), 0, 0, 0, 0, time.UTC)
}

// InSeason reports whether day falls in the March through November window
// that a season request covers.
func InSeason(day time.Time) bool {
	return day.Month() >= time.March && day.Month() <= time.November
}

// RunOnce queues the refresh of a single day. Off-season days are skipped
// and return a nil job. Rejected requests are not retried.
func (o *Orchestrator) RunOnce(ctx context.Context, day time.Time) (*backfill.Job, error) {
	if !InSeason(day) {
		o.log.Debug("off season, skipping refresh", "day", day.Format(time.DateOnly))
		return nil, nil
	}

	req := backfill.Request{
		Team:          o.cfg.Team,
		Start:         &day,
		End:           &day,
		BuildFeatures: true,
	}

	var err error
	for attempt := 1; attempt <= o.cfg.MaxRetries; attempt++ {
		var job *backfill.Job
		job, err = o.jobs.Enqueue(ctx, req)
		if err == nil {
			o.log.Info("daily refresh queued", "job_id", job.JobID, "day", day.Format(time.DateOnly))
			return job, nil
		}
		if errors.Is(err, backfill.ErrInvalidRequest) || errors.Is(err, bbref.ErrInvalidTeam) ||
			errors.Is(err, bbref.ErrInvalidDateRange) {
			return nil, err
		}

		o.log.Warn("enqueue attempt failed", "attempt", attempt, "of", o.cfg.MaxRetries, "err", err)
		if attempt < o.cfg.MaxRetries {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-o.after(o.cfg.RetryDelay):
			}
		}
	}
	return nil, errors.Wrapf(err, "enqueue refresh for %s after %d attempts", day.Format(time.DateOnly), o.cfg.MaxRetries)
}
