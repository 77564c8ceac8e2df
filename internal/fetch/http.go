package fetch

import (
	"context"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-resty/resty/v2"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

// HTTPFetcher fetches pages with plain GET requests.
type HTTPFetcher struct {
	client *resty.Client
	polite *Politeness
	log    *logging.Logger
}

type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
}

func NewHTTPFetcher(opts HTTPOptions, polite *Politeness, log *logging.Logger) *HTTPFetcher {
	client := resty.New()
	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	if opts.RetryWait <= 0 {
		opts.RetryWait = time.Second
	}
	client.SetRetryCount(opts.Retries).
		SetRetryWaitTime(opts.RetryWait).
		SetRetryMaxWaitTime(10 * time.Second).
		AddRetryCondition(func(res *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := res.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})
	if polite != nil {
		// Every attempt, retries included, waits its turn.
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return polite.Wait(req.Context())
		})
	}

	return &HTTPFetcher{
		client: client,
		polite: polite,
		log:    log.Component("fetch"),
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.polite != nil {
		release, err := f.polite.Hold(ctx)
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "GET %s", url), bbref.ErrFetch)
		}
		defer release()
	}

	started := time.Now()
	res, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "GET %s", url), bbref.ErrFetch)
	}
	if res.IsError() {
		return "", errors.Mark(errors.Newf("GET %s: status %d", url, res.StatusCode()), bbref.ErrFetch)
	}

	f.log.Debug("fetched page", "url", url, "status", res.StatusCode(), "bytes", len(res.Body()),
		"elapsed", time.Since(started))
	return string(res.Body()), nil
}
