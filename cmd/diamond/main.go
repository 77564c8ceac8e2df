package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/api/rest"
	"github.com/fortuna/diamond/internal/api/websocket"
	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/cache"
	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/fetch"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
	"github.com/fortuna/diamond/internal/publisher"
	"github.com/fortuna/diamond/internal/scheduler"
	"github.com/fortuna/diamond/internal/store"
	"github.com/fortuna/diamond/internal/store/repository"
)

const (
	serviceName    = "diamond"
	serviceVersion = "1.0.0"

	redisAttempts   = 30
	redisRetryDelay = 2 * time.Second
)

func main() {
	configPath := flag.String("config", os.Getenv("DIAMOND_CONFIG"), "path to a YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.NewJSON(cfg.Level()).With("service", serviceName, "version", serviceVersion)
	logging.SetDefault(log)
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("diamond stopped with error", "err", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.NewDatabase(cfg.AtlasDSN, log)
	if err != nil {
		return errors.Wrap(err, "connect atlas")
	}
	defer db.Close()
	log.Info("connected to atlas")

	if err := db.RunMigrations(ctx); err != nil {
		return errors.Wrap(err, "run migrations")
	}
	log.Info("database migrations applied")

	pageCache, err := connectRedis(ctx, cfg.RedisURL, log)
	if err != nil {
		return err
	}
	defer pageCache.Close()
	events := publisher.NewRedisStreamPublisher(pageCache.Client())
	log.Info("connected to redis")

	fetcher, closeFetcher := fetch.New(cfg.Fetch, pageCache, log)
	defer closeFetcher()

	franchises := bbref.DefaultFranchises()
	failures := repository.NewFailureRepository(db)
	features := repository.NewFeatureRepository(db)

	runner := backfill.NewRunner(backfill.RunnerDeps{
		Walker:     bbref.NewWalker(fetcher, franchises, cfg.BaseURL),
		Fetcher:    fetcher,
		Franchises: franchises,
		Corpus:     repository.NewCorpusRepository(db),
		Features:   features,
		Failures:   failures,
		Events:     events,
		Workers:    cfg.Backfill.Workers,
		Logger:     log,
	})

	wsServer := websocket.NewServer(cfg.WSPort, log)

	backfillService := backfill.NewService(backfill.NewRepository(db), runner, backfill.ServiceOptions{
		Franchises:   franchises,
		PollInterval: cfg.Backfill.PollInterval,
		Events:       wsServer.Hub(),
		Logger:       log,
	})
	backfillService.Start()
	log.Info("backfill service started", "workers", cfg.Backfill.Workers, "fetch_backend", cfg.Fetch.Backend)

	sched := scheduler.NewOrchestrator(backfillService, scheduler.FromConfig(cfg.Scheduler), log)
	if cfg.Scheduler.Enabled {
		sched.Start(ctx)
	}

	restServer := rest.NewServer(cfg.RESTPort, rest.Deps{
		Games:      repository.NewGameRepository(db),
		TeamGames:  repository.NewTeamGameRepository(db),
		Players:    repository.NewPlayerRepository(db),
		Features:   features,
		Failures:   failures,
		Backfill:   backfillService,
		Franchises: franchises,
		Health:     map[string]rest.HealthChecker{"atlas": db, "redis": pageCache},
		Logger:     log,
	})

	errCh := make(chan error, 2)
	go func() {
		if err := restServer.Start(); err != nil {
			errCh <- errors.Wrap(err, "rest server")
		}
	}()
	go func() {
		if err := wsServer.Start(); err != nil {
			errCh <- errors.Wrap(err, "websocket server")
		}
	}()

	log.Info("diamond started",
		"rest", "http://0.0.0.0:"+cfg.RESTPort,
		"websocket", "ws://0.0.0.0:"+cfg.WSPort+"/ws/backfill")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		log.Info("shutting down", "signal", sig.String())
	case runErr = <-errCh:
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	sched.Stop()
	if err := backfillService.Shutdown(shutdownCtx); err != nil {
		log.Warn("backfill shutdown", "err", err)
	}
	if err := restServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("rest shutdown", "err", err)
	}
	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("websocket shutdown", "err", err)
	}

	log.Info("diamond stopped")
	return runErr
}

// connectRedis retries while Redis comes up alongside the service.
func connectRedis(ctx context.Context, url string, log *logging.Logger) (*cache.PageCache, error) {
	var err error
	for i := 1; i <= redisAttempts; i++ {
		var pc *cache.PageCache
		pc, err = cache.NewPageCache(url)
		if err == nil {
			return pc, nil
		}
		if i == redisAttempts {
			break
		}
		log.Warn("redis connection failed", "attempt", i, "of", redisAttempts, "err", err, "retry_in", redisRetryDelay)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(redisRetryDelay):
		}
	}
	return nil, errors.Wrapf(err, "connect redis after %d attempts", redisAttempts)
}
