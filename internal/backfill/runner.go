package backfill

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/panjf2000/ants/v2"

	"github.com/fortuna/diamond/internal/corpus"
	"github.com/fortuna/diamond/internal/features"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
	"github.com/fortuna/diamond/internal/publisher"
	"github.com/fortuna/diamond/internal/table"
)

// CorpusStore persists aggregated games and reads whole seasons back.
type CorpusStore interface {
	Save(ctx context.Context, c *corpus.FlatCorpus) error
	LoadSeason(ctx context.Context, season int) (games, teams *table.Table, err error)
}

type FeatureStore interface {
	ReplaceSeason(ctx context.Context, season int, t *table.Table) (int, error)
}

type FailureStore interface {
	Record(ctx context.Context, jobID int64, pe *bbref.PageError) error
}

// EventPublisher announces stored games and features downstream.
type EventPublisher interface {
	PublishGameScraped(ctx context.Context, ev publisher.GameScraped) error
	PublishFeaturesBuilt(ctx context.Context, ev publisher.FeaturesBuilt) error
}

// Invalidator is implemented by caching fetchers; pages that fail extraction
// are evicted so a later run refetches them.
type Invalidator interface {
	Invalidate(ctx context.Context, url string)
}

// RunnerDeps wires a Runner. Stores and Events may be nil; a nil Corpus
// store forces every run to behave as a dry run.
type RunnerDeps struct {
	Walker     *bbref.Walker
	Fetcher    bbref.Fetcher
	Franchises bbref.Franchises
	Corpus     CorpusStore
	Features   FeatureStore
	Failures   FailureStore
	Events     EventPublisher
	Workers    int
	Logger     *logging.Logger
}

// Runner executes one scrape: walk the schedule, fetch and assemble every
// box score, aggregate, persist and optionally derive features.
type Runner struct {
	deps RunnerDeps
	log  *logging.Logger
}

func NewRunner(deps RunnerDeps) *Runner {
	if deps.Workers <= 0 {
		deps.Workers = 1
	}
	return &Runner{deps: deps, log: deps.Logger.Component("backfill")}
}

// Run executes spec. Page failures are recorded and skipped; only argument
// errors, cancellation and storage failures abort the run.
func (r *Runner) Run(ctx context.Context, jobID int64, spec JobSpec, reporter Reporter) (*Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}
	rep := &lockedReporter{next: reporter}
	ctx = logging.WithJob(ctx, jobID)
	rep.OnJobStart(spec)

	res, err := r.run(ctx, jobID, spec, rep)
	if err != nil {
		rep.OnJobError(err)
		return res, err
	}
	rep.OnJobComplete(res)
	return res, nil
}

func (r *Runner) run(ctx context.Context, jobID int64, spec JobSpec, rep Reporter) (*Result, error) {
	seq, err := r.deps.Walker.Walk(ctx, spec.Team, spec.Start, spec.End)
	if err != nil {
		return nil, err
	}

	res := &Result{Features: map[int]*table.Table{}}
	index := bbref.GameIndex{}
	var entries []bbref.ScheduleEntry
	for e, err := range seq {
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			r.recordFailure(ctx, jobID, res, &bbref.PageError{Err: err})
			rep.OnPageFailed(res.Failures[len(res.Failures)-1], 0, 0)
			continue
		}
		index.Add(e)
		entries = append(entries, e)
	}
	res.Scheduled = len(entries)
	rep.OnScheduleReady(len(entries))

	if err := r.assemble(ctx, jobID, entries, res, rep); err != nil {
		return res, err
	}

	c, err := corpus.Aggregate(res.Records, index, r.deps.Franchises)
	if err != nil {
		return res, err
	}
	res.Corpus = c

	persist := !spec.DryRun && r.deps.Corpus != nil
	if persist {
		rep.OnProgress(fmt.Sprintf("saving %d games", c.Games.Len()))
		if err := r.deps.Corpus.Save(ctx, c); err != nil {
			return res, errors.Wrap(err, "save corpus")
		}
		r.publishGames(ctx, jobID, c)
	}

	if spec.BuildFeatures {
		if err := r.buildFeatures(ctx, jobID, res, persist, rep); err != nil {
			return res, err
		}
	}
	return res, nil
}

// assemble fetches and parses every entry on the worker pool. Records keep
// schedule order regardless of completion order.
func (r *Runner) assemble(ctx context.Context, jobID int64, entries []bbref.ScheduleEntry, res *Result, rep Reporter) error {
	pool, err := ants.NewPool(r.deps.Workers)
	if err != nil {
		return errors.Wrap(err, "create worker pool")
	}
	defer pool.Release()

	records := make([]*bbref.GameRecord, len(entries))
	failures := make([]*bbref.PageError, len(entries))
	total := len(entries)
	var done atomic.Int32

	var workers sync.WaitGroup
	for i, e := range entries {
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()
			url := r.deps.Walker.URL(e.Path)
			rec, err := r.page(ctx, url, e.BoxScoreID)
			current := int(done.Add(1))
			if err != nil {
				failures[i] = &bbref.PageError{BoxScoreID: e.BoxScoreID, URL: url, Err: err}
				rep.OnPageFailed(failures[i], current, total)
				return
			}
			records[i] = rec
			rep.OnGameProcessed(e.BoxScoreID, current, total)
		}); err != nil {
			workers.Done()
			return errors.Wrap(err, "submit page to worker pool")
		}
	}
	workers.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	// A second page hashing to a known GameID is skipped like any other
	// bad page; the first one wins.
	seen := make(map[int64]string, len(entries))
	for i, e := range entries {
		rec := records[i]
		if rec == nil {
			r.recordFailure(ctx, jobID, res, failures[i])
			continue
		}
		if prev, dup := seen[rec.ID()]; dup {
			pe := &bbref.PageError{
				BoxScoreID: e.BoxScoreID,
				URL:        r.deps.Walker.URL(e.Path),
				Err: errors.Mark(
					errors.Newf("game id %d already taken by %s", rec.ID(), prev),
					bbref.ErrDuplicateGame),
			}
			r.recordFailure(ctx, jobID, res, pe)
			rep.OnPageFailed(pe, total, total)
			continue
		}
		seen[rec.ID()] = e.BoxScoreID
		res.Records = append(res.Records, rec)
	}
	return nil
}

func (r *Runner) page(ctx context.Context, url, boxScoreID string) (*bbref.GameRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	markup, err := r.deps.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	rec, err := bbref.ParseBoxScore(markup, boxScoreID)
	if errors.Is(err, bbref.ErrExtraction) {
		if inv, ok := r.deps.Fetcher.(Invalidator); ok {
			inv.Invalidate(ctx, url)
		}
	}
	return rec, err
}

func (r *Runner) recordFailure(ctx context.Context, jobID int64, res *Result, pe *bbref.PageError) {
	res.Failures = append(res.Failures, pe)
	r.log.WarnContext(ctx, "page skipped", "box_score_id", pe.BoxScoreID, "url", pe.URL,
		"kind", bbref.Kind(pe.Err), "err", pe.Err)
	if r.deps.Failures == nil {
		return
	}
	if err := r.deps.Failures.Record(ctx, jobID, pe); err != nil {
		r.log.ErrorContext(ctx, "record failure", "err", err)
	}
}

func (r *Runner) publishGames(ctx context.Context, jobID int64, c *corpus.FlatCorpus) {
	if r.deps.Events == nil {
		return
	}
	for i := 0; i < c.Games.Len(); i++ {
		row := c.Games.Row(i)
		id, _ := row[corpus.ColGameID].AsInt()
		ev := publisher.GameScraped{
			JobID:      jobID,
			GameID:     id,
			BoxScoreID: row[corpus.ColBoxScoreID].Text(),
			GameDate:   row[corpus.ColGameDate].Text(),
			AwayTeam:   row["AwayTeam"].Text(),
			HomeTeam:   row["HomeTeam"].Text(),
		}
		if v, ok := row["AwayScore"].AsInt(); ok {
			ev.AwayScore = &v
		}
		if v, ok := row["HomeScore"].AsInt(); ok {
			ev.HomeScore = &v
		}
		if err := r.deps.Events.PublishGameScraped(ctx, ev); err != nil {
			r.log.WarnContext(ctx, "publish game", "box_score_id", ev.BoxScoreID, "err", err)
		}
	}
}

// buildFeatures derives features for every season touched by the run. When
// the corpus was persisted the whole stored season is used, so games from
// earlier runs count toward the expanding statistics.
func (r *Runner) buildFeatures(ctx context.Context, jobID int64, res *Result, persisted bool, rep Reporter) error {
	for _, season := range seasons(res.Corpus.Games) {
		var games, teams *table.Table
		if persisted {
			var err error
			games, teams, err = r.deps.Corpus.LoadSeason(ctx, season)
			if err != nil {
				return errors.Wrapf(err, "load season %d", season)
			}
		} else {
			games, teams = SeasonTables(res.Corpus, season)
		}

		feats, err := features.Derive(teams, games)
		if err != nil {
			return errors.Wrapf(err, "derive features for %d", season)
		}
		res.Features[season] = feats
		rep.OnProgress(fmt.Sprintf("derived %d feature rows for %d", feats.Len(), season))

		if !persisted || r.deps.Features == nil {
			continue
		}
		n, err := r.deps.Features.ReplaceSeason(ctx, season, feats)
		if err != nil {
			return errors.Wrapf(err, "save features for %d", season)
		}
		if r.deps.Events != nil {
			ev := publisher.FeaturesBuilt{JobID: jobID, Season: season, Rows: n}
			if err := r.deps.Events.PublishFeaturesBuilt(ctx, ev); err != nil {
				r.log.WarnContext(ctx, "publish features", "season", season, "err", err)
			}
		}
	}
	return nil
}

func seasons(games *table.Table) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range games.Column(corpus.ColSeason) {
		if s, ok := v.AsInt(); ok && !seen[int(s)] {
			seen[int(s)] = true
			out = append(out, int(s))
		}
	}
	sort.Ints(out)
	return out
}

// SeasonTables returns the game and team rows of c that belong to season.
func SeasonTables(c *corpus.FlatCorpus, season int) (games, teams *table.Table) {
	ids := map[int64]bool{}
	games = table.New(c.Games.Columns()...)
	for i := 0; i < c.Games.Len(); i++ {
		if s, _ := c.Games.Get(i, corpus.ColSeason).AsInt(); int(s) == season {
			id, _ := c.Games.Get(i, corpus.ColGameID).AsInt()
			ids[id] = true
			games.Append(c.Games.Values(i)...)
		}
	}
	teams = table.New(c.Teams.Columns()...)
	for i := 0; i < c.Teams.Len(); i++ {
		if id, _ := c.Teams.Get(i, corpus.ColGameID).AsInt(); ids[id] {
			teams.Append(c.Teams.Values(i)...)
		}
	}
	return games, teams
}

// lockedReporter serializes callbacks from pool workers.
type lockedReporter struct {
	mu   sync.Mutex
	next Reporter
}

func (l *lockedReporter) OnJobStart(spec JobSpec) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnJobStart(spec)
}

func (l *lockedReporter) OnScheduleReady(total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnScheduleReady(total)
}

func (l *lockedReporter) OnGameProcessed(boxScoreID string, current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnGameProcessed(boxScoreID, current, total)
}

func (l *lockedReporter) OnPageFailed(pe *bbref.PageError, current, total int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnPageFailed(pe, current, total)
}

func (l *lockedReporter) OnProgress(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnProgress(message)
}

func (l *lockedReporter) OnJobComplete(res *Result) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnJobComplete(res)
}

func (l *lockedReporter) OnJobError(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnJobError(err)
}
