package fetch

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

// BrowserFetcher renders pages in headless Chrome. It is slower than
// HTTPFetcher but gets through bot checks that reject plain clients.
type BrowserFetcher struct {
	polite  *Politeness
	timeout time.Duration
	log     *logging.Logger

	allocCtx context.Context
	cancel   context.CancelFunc
}

func NewBrowserFetcher(userAgent string, timeout time.Duration, polite *Politeness, log *logging.Logger) *BrowserFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &BrowserFetcher{
		polite:   polite,
		timeout:  timeout,
		log:      log.Component("fetch"),
		allocCtx: allocCtx,
		cancel:   cancel,
	}
}

// Close shuts the browser down.
func (f *BrowserFetcher) Close() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.polite != nil {
		release, err := f.polite.Acquire(ctx)
		if err != nil {
			return "", errors.Mark(errors.Wrapf(err, "render %s", url), bbref.ErrFetch)
		}
		defer release()
	}

	browserCtx, cancel := chromedp.NewContext(f.allocCtx)
	defer cancel()
	browserCtx, cancel = context.WithTimeout(browserCtx, f.timeout)
	defer cancel()
	// Stop the tab when the caller gives up.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var markup string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(`body`, chromedp.ByQuery),
		chromedp.OuterHTML(`html`, &markup, chromedp.ByQuery),
	)
	if err != nil {
		return "", errors.Mark(errors.Wrapf(err, "render %s", url), bbref.ErrFetch)
	}
	if markup == "" {
		return "", errors.Mark(errors.Newf("render %s: empty document", url), bbref.ErrFetch)
	}

	f.log.Debug("rendered page", "url", url, "bytes", len(markup))
	return markup, nil
}
