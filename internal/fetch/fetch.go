package fetch

import (
	"github.com/fortuna/diamond/internal/config"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

// New builds the configured fetcher, wrapped in the page cache when store is
// non-nil. The returned close func releases browser resources.
func New(cfg config.FetchConfig, store PageStore, log *logging.Logger) (bbref.Fetcher, func()) {
	polite := NewPoliteness(cfg.MinInterval, cfg.MaxConcurrency)

	var f bbref.Fetcher
	closeFn := func() {}
	switch cfg.Backend {
	case config.BackendBrowser:
		b := NewBrowserFetcher(cfg.UserAgent, cfg.Timeout, polite, log)
		f, closeFn = b, b.Close
	default:
		f = NewHTTPFetcher(HTTPOptions{UserAgent: cfg.UserAgent, Timeout: cfg.Timeout, Retries: cfg.Retries}, polite, log)
	}

	if store != nil {
		f = NewCached(f, store, cfg.CacheTTL, log)
	}
	return f, closeFn
}
