package commands

import (
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/cache"
	"github.com/fortuna/diamond/internal/fetch"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/publisher"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
)

var scrapeOpts struct {
	team     string
	season   int
	start    string
	end      string
	dryRun   bool
	features bool
	out      string
	workers  int
	noCache  bool
}

func init() {
	f := scrapeCmd.Flags()
	f.StringVar(&scrapeOpts.team, "team", bbref.AllTeams, "team code to walk, or ALL")
	f.IntVar(&scrapeOpts.season, "season", 0, "season year; expands to March 1 through November 30")
	f.StringVar(&scrapeOpts.start, "start", "", "first date to include (YYYY-MM-DD)")
	f.StringVar(&scrapeOpts.end, "end", "", "last date to include (YYYY-MM-DD)")
	f.BoolVar(&scrapeOpts.dryRun, "dry-run", false, "do not write to the database")
	f.BoolVar(&scrapeOpts.features, "features", true, "derive pre-game features for every scraped season")
	f.StringVar(&scrapeOpts.out, "out", "", "directory to write games, teams, batters, pitchers and features CSV files")
	f.IntVar(&scrapeOpts.workers, "workers", 0, "box score workers (default from config)")
	f.BoolVar(&scrapeOpts.noCache, "no-cache", false, "skip the Redis page cache")
	rootCmd.AddCommand(scrapeCmd)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape (--season <year> | --start <date> --end <date>) [--team <code>] [--out <dir>]",
	Short: "Walks team schedules, scrapes every box score in range and stores or exports the corpus.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		req, err := scrapeRequest()
		if err != nil {
			return err
		}
		start, end, err := req.Window()
		if err != nil {
			return err
		}
		spec := backfill.JobSpec{
			Team:          strings.ToUpper(strings.TrimSpace(req.Team)),
			Start:         start,
			End:           end,
			DryRun:        req.DryRun,
			BuildFeatures: req.BuildFeatures,
		}

		var pages fetch.PageStore
		var events backfill.EventPublisher
		if !scrapeOpts.noCache && cfg.RedisURL != "" {
			pc, err := cache.NewPageCache(cfg.RedisURL)
			if err != nil {
				log.Warn("page cache unavailable, fetching directly", "err", err)
			} else {
				defer pc.Close()
				pages = pc
				events = publisher.NewRedisStreamPublisher(pc.Client())
			}
		}

		fetcher, closeFetcher := fetch.New(cfg.Fetch, pages, log)
		defer closeFetcher()

		franchises := bbref.DefaultFranchises()
		deps := backfill.RunnerDeps{
			Walker:     bbref.NewWalker(fetcher, franchises, cfg.BaseURL),
			Fetcher:    fetcher,
			Franchises: franchises,
			Workers:    cfg.Backfill.Workers,
			Logger:     log,
		}
		if scrapeOpts.workers > 0 {
			deps.Workers = scrapeOpts.workers
		}

		if !spec.DryRun {
			db, err := store.NewDatabase(cfg.AtlasDSN, log)
			if err != nil {
				return errors.Wrap(err, "connect atlas")
			}
			defer db.Close()
			if err := db.RunMigrations(ctx); err != nil {
				return errors.Wrap(err, "run migrations")
			}
			deps.Corpus = repository.NewCorpusRepository(db)
			deps.Features = repository.NewFeatureRepository(db)
			deps.Failures = repository.NewFailureRepository(db)
			deps.Events = events
		}

		started := time.Now()
		res, err := backfill.NewRunner(deps).Run(ctx, 0, spec, &consoleReporter{every: 25})
		if err != nil {
			return err
		}
		log.Info("scrape finished", "elapsed", time.Since(started))

		if scrapeOpts.out != "" {
			if err := writeCorpus(scrapeOpts.out, res.Corpus); err != nil {
				return err
			}
			if err := writeFeatures(scrapeOpts.out, res.Features); err != nil {
				return err
			}
			log.Info("wrote csv files", "dir", scrapeOpts.out)
		}
		printResult(res)
		return nil
	},
}

func scrapeRequest() (backfill.Request, error) {
	req := backfill.Request{
		Team:          scrapeOpts.team,
		Season:        scrapeOpts.season,
		DryRun:        scrapeOpts.dryRun,
		BuildFeatures: scrapeOpts.features,
	}
	if scrapeOpts.start != "" {
		t, err := time.Parse(time.DateOnly, scrapeOpts.start)
		if err != nil {
			return req, errors.Wrap(err, "parse --start")
		}
		req.Start = &t
	}
	if scrapeOpts.end != "" {
		t, err := time.Parse(time.DateOnly, scrapeOpts.end)
		if err != nil {
			return req, errors.Wrap(err, "parse --end")
		}
		req.End = &t
	}
	return req, nil
}
