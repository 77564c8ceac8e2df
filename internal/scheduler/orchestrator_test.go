package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/diamond/internal/backfill"
	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
)

type fakeQueue struct {
	mu   sync.Mutex
	reqs []backfill.Request
	errs []error
}

func (q *fakeQueue) Enqueue(_ context.Context, req backfill.Request) (*backfill.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	if len(q.errs) > 0 {
		err := q.errs[0]
		q.errs = q.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &backfill.Job{JobID: int64(len(q.reqs))}, nil
}

func (q *fakeQueue) requests() []backfill.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]backfill.Request(nil), q.reqs...)
}

func newTestOrchestrator(q *fakeQueue, retries int) *Orchestrator {
	o := NewOrchestrator(q, Config{Hour: 6, MaxRetries: retries}, logging.NewNop())
	o.after = func(time.Duration) <-chan time.Time {
		ch := make(chan time.Time, 1)
		ch <- time.Time{}
		return ch
	}
	return o
}

func TestNextRun(t *testing.T) {
	o := newTestOrchestrator(&fakeQueue{}, 1)
	loc := time.UTC

	assert.Equal(t, time.Date(2016, 6, 5, 6, 0, 0, 0, loc), o.NextRun(time.Date(2016, 6, 5, 3, 30, 0, 0, loc)))
	assert.Equal(t, time.Date(2016, 6, 6, 6, 0, 0, 0, loc), o.NextRun(time.Date(2016, 6, 5, 6, 0, 0, 0, loc)))
	assert.Equal(t, time.Date(2016, 7, 1, 6, 0, 0, 0, loc), o.NextRun(time.Date(2016, 6, 30, 23, 0, 0, 0, loc)))
}

func TestPreviousDayAndSeason(t *testing.T) {
	day := PreviousDay(time.Date(2016, 3, 1, 6, 0, 0, 0, time.FixedZone("EST", -5*3600)))
	assert.Equal(t, time.Date(2016, 2, 29, 0, 0, 0, 0, time.UTC), day)
	assert.False(t, InSeason(day))
	assert.True(t, InSeason(time.Date(2016, 3, 1, 0, 0, 0, 0, time.UTC)))
	assert.True(t, InSeason(time.Date(2016, 11, 30, 0, 0, 0, 0, time.UTC)))
	assert.False(t, InSeason(time.Date(2016, 12, 1, 0, 0, 0, 0, time.UTC)))
}

func TestRunOnceQueuesSingleDay(t *testing.T) {
	q := &fakeQueue{}
	o := newTestOrchestrator(q, 3)
	day := time.Date(2016, 6, 4, 0, 0, 0, 0, time.UTC)

	job, err := o.RunOnce(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, job)

	reqs := q.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, bbref.AllTeams, reqs[0].Team)
	assert.True(t, reqs[0].BuildFeatures)
	assert.False(t, reqs[0].DryRun)
	start, end, err := reqs[0].Window()
	require.NoError(t, err)
	assert.Equal(t, day, start)
	assert.Equal(t, day, end)
}

func TestRunOnceSkipsOffSeason(t *testing.T) {
	q := &fakeQueue{}
	job, err := newTestOrchestrator(q, 3).RunOnce(context.Background(), time.Date(2016, 1, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.Empty(t, q.requests())
}

func TestRunOnceRetriesTransientErrors(t *testing.T) {
	q := &fakeQueue{errs: []error{errors.New("connection reset"), errors.New("connection reset")}}
	job, err := newTestOrchestrator(q, 3).RunOnce(context.Background(), time.Date(2016, 6, 4, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), job.JobID)
	assert.Len(t, q.requests(), 3)
}

func TestRunOnceGivesUp(t *testing.T) {
	boom := errors.New("database down")
	q := &fakeQueue{errs: []error{boom, boom}}
	_, err := newTestOrchestrator(q, 2).RunOnce(context.Background(), time.Date(2016, 6, 4, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Len(t, q.requests(), 2)
}

func TestRunOnceDoesNotRetryRejectedRequest(t *testing.T) {
	q := &fakeQueue{errs: []error{errors.Mark(errors.New("unknown team code"), bbref.ErrInvalidTeam)}}
	_, err := newTestOrchestrator(q, 3).RunOnce(context.Background(), time.Date(2016, 6, 4, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
	assert.True(t, errors.Is(err, bbref.ErrInvalidTeam))
	assert.Len(t, q.requests(), 1)
}

func TestStartQueuesAtScheduledTime(t *testing.T) {
	q := &fakeQueue{}
	o := newTestOrchestrator(q, 1)
	o.now = func() time.Time { return time.Date(2016, 6, 5, 6, 0, 0, 0, time.UTC) }

	fire := make(chan time.Time)
	o.after = func(time.Duration) <-chan time.Time { return fire }

	o.Start(context.Background())
	fire <- time.Time{}
	require.Eventually(t, func() bool { return len(q.requests()) == 1 }, time.Second, 5*time.Millisecond)
	o.Stop()

	start, _, err := q.requests()[0].Window()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2016, 6, 4, 0, 0, 0, 0, time.UTC), start)

	// Stopping twice is harmless.
	o.Stop()
}
