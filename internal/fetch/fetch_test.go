package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

func TestHTTPFetcher(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			assert.Equal(t, "diamond-test", r.Header.Get("User-Agent"))
			w.Write([]byte("<html>box</html>"))
		case "/flaky":
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte("recovered"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{UserAgent: "diamond-test", Timeout: 5 * time.Second, Retries: 1, RetryWait: 10 * time.Millisecond},
		NewPoliteness(0, 2), logging.NewNop())

	body, err := f.Fetch(context.Background(), srv.URL+"/ok")
	require.NoError(t, err)
	assert.Equal(t, "<html>box</html>", body)

	body, err = f.Fetch(context.Background(), srv.URL+"/flaky")
	require.NoError(t, err)
	assert.Equal(t, "recovered", body)
	assert.Equal(t, int32(2), hits.Load())

	_, err = f.Fetch(context.Background(), srv.URL+"/boxes/XXX/missing.shtml")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bbref.ErrFetch))
	assert.Contains(t, err.Error(), "status 404")
}

func TestHTTPFetcherCanceledContext(t *testing.T) {
	f := NewHTTPFetcher(HTTPOptions{}, NewPoliteness(time.Hour, 1), logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.Fetch(ctx, "http://127.0.0.1:1/never")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bbref.ErrFetch))
}

func TestPolitenessSpacesStarts(t *testing.T) {
	p := NewPoliteness(40*time.Millisecond, 4)
	started := time.Now()
	for i := 0; i < 3; i++ {
		release, err := p.Acquire(context.Background())
		require.NoError(t, err)
		release()
	}
	// The first start is immediate, the next two wait one interval each.
	assert.GreaterOrEqual(t, time.Since(started), 70*time.Millisecond)
}

func TestPolitenessWithoutIntervalDoesNotWait(t *testing.T) {
	p := NewPoliteness(0, 1)
	started := time.Now()
	for i := 0; i < 50; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(started), time.Second)
}

func TestPolitenessAcquireGivesSlotBackOnCancel(t *testing.T) {
	p := NewPoliteness(time.Hour, 1)
	release, err := p.Acquire(context.Background())
	require.NoError(t, err)
	release()

	// The next start is an hour away, so a short deadline fails the wait.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	require.Error(t, err)

	// The slot was returned: Hold succeeds right away.
	release, err = p.Hold(context.Background())
	require.NoError(t, err)
	release()
}

func TestHTTPFetcherSpacesRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(HTTPOptions{Retries: 2, RetryWait: time.Millisecond},
		NewPoliteness(40*time.Millisecond, 1), logging.NewNop())
	started := time.Now()
	body, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "ok", body)
	assert.Equal(t, int32(3), hits.Load())
	assert.GreaterOrEqual(t, time.Since(started), 70*time.Millisecond)
}

func TestPolitenessCapsConcurrency(t *testing.T) {
	p := NewPoliteness(0, 2)
	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := p.Acquire(context.Background())
			if !assert.NoError(t, err) {
				return
			}
			n := inFlight.Add(1)
			for {
				old := peak.Load()
				if n <= old || peak.CompareAndSwap(old, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			release()
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

type memStore struct {
	mu      sync.Mutex
	pages   map[string]string
	readErr error
}

func (m *memStore) GetPage(_ context.Context, url string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return "", false, m.readErr
	}
	body, ok := m.pages[url]
	return body, ok, nil
}

func (m *memStore) PutPage(_ context.Context, url, body string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[url] = body
	return nil
}

func (m *memStore) Forget(_ context.Context, urls ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range urls {
		delete(m.pages, u)
	}
	return nil
}

type countingFetcher struct {
	calls int
	err   error
}

func (c *countingFetcher) Fetch(_ context.Context, url string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "page:" + url, nil
}

func TestCachedFetcher(t *testing.T) {
	next := &countingFetcher{}
	store := &memStore{pages: map[string]string{}}
	c := NewCached(next, store, time.Hour, logging.NewNop())

	for i := 0; i < 3; i++ {
		body, err := c.Fetch(context.Background(), "u1")
		require.NoError(t, err)
		assert.Equal(t, "page:u1", body)
	}
	assert.Equal(t, 1, next.calls)

	// A broken store degrades to direct fetching.
	store.readErr = errors.New("connection refused")
	_, err := c.Fetch(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedInvalidate(t *testing.T) {
	next := &countingFetcher{}
	store := &memStore{pages: map[string]string{}}
	c := NewCached(next, store, time.Hour, logging.NewNop())

	_, err := c.Fetch(context.Background(), "u3")
	require.NoError(t, err)
	c.Invalidate(context.Background(), "u3")
	assert.Empty(t, store.pages)

	_, err = c.Fetch(context.Background(), "u3")
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)
}

func TestCachedFetcherDoesNotStoreFailures(t *testing.T) {
	next := &countingFetcher{err: errors.Mark(errors.New("boom"), bbref.ErrFetch)}
	store := &memStore{pages: map[string]string{}}
	c := NewCached(next, store, time.Hour, logging.NewNop())

	_, err := c.Fetch(context.Background(), "u2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, bbref.ErrFetch))
	assert.Empty(t, store.pages)
}
