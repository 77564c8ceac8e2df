package backfill

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/diamond/internal/ingest/bbref"
	"github.com/fortuna/diamond/internal/logging"
	"github.com/fortuna/diamond/internal/store"
)

type fakeJobs struct {
	mu       sync.Mutex
	next     int64
	jobs     map[int64]*Job
	queue    []int64
	events   []string
	counts   map[int64][2]int
	progress []int
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: map[int64]*Job{}, counts: map[int64][2]int{}}
}

func (f *fakeJobs) CreateJob(_ context.Context, job *Job) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	stored := job.Copy()
	stored.JobID = f.next
	f.jobs[stored.JobID] = stored
	f.queue = append(f.queue, stored.JobID)
	return stored.Copy(), nil
}

func (f *fakeJobs) UpdateStatus(_ context.Context, jobID int64, status JobStatus, message string, lastErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[jobID]
	j.Status = status
	j.StatusMessage.String, j.StatusMessage.Valid = message, true
	if lastErr != nil {
		j.LastError.String, j.LastError.Valid = lastErr.Error(), true
	}
	return nil
}

func (f *fakeJobs) UpdateProgress(_ context.Context, jobID int64, current, total int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[jobID].ProgressCurrent, f.jobs[jobID].ProgressTotal = current, total
	f.progress = append(f.progress, current)
	return nil
}

func (f *fakeJobs) UpdateCounts(_ context.Context, jobID int64, ok, failed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[jobID] = [2]int{ok, failed}
	return nil
}

func (f *fakeJobs) AppendEvent(_ context.Context, _ int64, eventType, _ string, _, _ *int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
	return nil
}

func (f *fakeJobs) ResetStuckJobs(context.Context) (int64, error) { return 0, nil }

func (f *fakeJobs) MarkNextJobRunning(context.Context) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		return nil, nil
	}
	id := f.queue[0]
	f.queue = f.queue[1:]
	f.jobs[id].Status = JobStatusRunning
	return f.jobs[id].Copy(), nil
}

func (f *fakeJobs) GetJob(_ context.Context, jobID int64) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[jobID]
	if !ok {
		return nil, errors.Mark(errors.Newf("job %d", jobID), store.ErrNotFound)
	}
	return j.Copy(), nil
}

func (f *fakeJobs) GetActiveJob(context.Context) (*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.Status == JobStatusRunning {
			return j.Copy(), nil
		}
	}
	return nil, nil
}

func (f *fakeJobs) ListRecentJobs(_ context.Context, limit int) ([]*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Job
	for id := f.next; id > 0 && len(out) < limit; id-- {
		out = append(out, f.jobs[id].Copy())
	}
	return out, nil
}

func (f *fakeJobs) job(id int64) *Job {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobs[id].Copy()
}

type scriptedRunner struct {
	res *Result
	err error
}

func (r scriptedRunner) Run(ctx context.Context, jobID int64, spec JobSpec, rep Reporter) (*Result, error) {
	rep.OnJobStart(spec)
	rep.OnScheduleReady(2)
	rep.OnGameProcessed("BAL201606040", 1, 2)
	rep.OnPageFailed(&bbref.PageError{BoxScoreID: "BAL201606051", Err: errors.Mark(errors.New("boom"), bbref.ErrFetch)}, 2, 2)
	if r.err != nil {
		rep.OnJobError(r.err)
		return r.res, r.err
	}
	rep.OnJobComplete(r.res)
	return r.res, nil
}

type sinkRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (s *sinkRecorder) Broadcast(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *sinkRecorder) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, ev := range s.events {
		out = append(out, ev.Type)
	}
	return out
}

func newService(jobs *fakeJobs, run jobRunner, sink EventSink) *Service {
	return NewService(jobs, run, ServiceOptions{
		Franchises:   bbref.DefaultFranchises(),
		PollInterval: 10 * time.Millisecond,
		Events:       sink,
		Logger:       logging.NewNop(),
	})
}

func ptr(t time.Time) *time.Time { return &t }

func TestEnqueueValidates(t *testing.T) {
	svc := newService(newFakeJobs(), scriptedRunner{}, nil)
	ctx := context.Background()

	_, err := svc.Enqueue(ctx, Request{Team: "ZZZ", Season: 2016})
	assert.True(t, errors.Is(err, bbref.ErrInvalidTeam))

	_, err = svc.Enqueue(ctx, Request{Team: "NYY", Start: ptr(day("2016-06-05")), End: ptr(day("2016-06-04"))})
	assert.True(t, errors.Is(err, bbref.ErrInvalidDateRange))

	_, err = svc.Enqueue(ctx, Request{Team: "NYY", Start: ptr(day("2016-06-05"))})
	assert.True(t, errors.Is(err, ErrInvalidRequest))

	_, err = svc.Enqueue(ctx, Request{Team: "NYY"})
	assert.True(t, errors.Is(err, ErrInvalidRequest))
}

func TestEnqueueNormalizesRequest(t *testing.T) {
	jobs := newFakeJobs()
	sink := &sinkRecorder{}
	svc := newService(jobs, scriptedRunner{}, sink)

	job, err := svc.Enqueue(context.Background(), Request{Team: " nyy ", Season: 2016, BuildFeatures: true})
	require.NoError(t, err)
	assert.Equal(t, "NYY", job.Team)
	assert.Equal(t, day("2016-03-01"), job.StartDate)
	assert.Equal(t, day("2016-11-30"), job.EndDate)
	assert.Equal(t, JobStatusQueued, job.Status)
	assert.True(t, job.BuildFeatures)
	assert.Equal(t, []string{"queued"}, jobs.events)
	assert.Equal(t, []string{"queued"}, sink.types())

	all, err := svc.Enqueue(context.Background(), Request{Season: 2016})
	require.NoError(t, err)
	assert.Equal(t, bbref.AllTeams, all.Team)
}

func TestWorkerRunsQueuedJob(t *testing.T) {
	jobs := newFakeJobs()
	sink := &sinkRecorder{}
	res := &Result{Records: make([]*bbref.GameRecord, 1), Failures: []*bbref.PageError{{BoxScoreID: "BAL201606051"}}}
	svc := newService(jobs, scriptedRunner{res: res}, sink)

	job, err := svc.Enqueue(context.Background(), Request{Team: "NYY", Season: 2016})
	require.NoError(t, err)

	svc.Start()
	require.Eventually(t, func() bool {
		return jobs.job(job.JobID).Status == JobStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Shutdown(context.Background()))

	final := jobs.job(job.JobID)
	assert.Equal(t, "Job completed with 1 skipped pages", final.StatusMessage.String)
	assert.Equal(t, 2, final.ProgressTotal)
	assert.Equal(t, [2]int{1, 1}, jobs.counts[job.JobID])
	assert.Equal(t, []string{"queued", "started", "scheduled", "game", "page_failed", "complete", "completed"}, sink.types())
}

func TestWorkerMarksFailedJob(t *testing.T) {
	jobs := newFakeJobs()
	svc := newService(jobs, scriptedRunner{err: errors.New("save corpus: connection refused")}, nil)

	job, err := svc.Enqueue(context.Background(), Request{Team: "NYY", Season: 2016})
	require.NoError(t, err)

	svc.Start()
	require.Eventually(t, func() bool {
		return jobs.job(job.JobID).Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, svc.Shutdown(context.Background()))

	final := jobs.job(job.JobID)
	assert.Equal(t, "save corpus: connection refused", final.LastError.String)
	_, recorded := jobs.counts[job.JobID]
	assert.False(t, recorded, "no result, no counts")
}

func TestGetStatus(t *testing.T) {
	jobs := newFakeJobs()
	svc := newService(jobs, scriptedRunner{}, nil)
	for i := 0; i < 3; i++ {
		_, err := svc.Enqueue(context.Background(), Request{Team: "NYY", Season: 2014 + i})
		require.NoError(t, err)
	}
	_, err := jobs.MarkNextJobRunning(context.Background())
	require.NoError(t, err)

	summary, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	require.NotNil(t, summary.ActiveJob)
	assert.Equal(t, int64(1), summary.ActiveJob.JobID)
	require.Len(t, summary.History, 3)
	assert.Equal(t, int64(3), summary.History[0].JobID)

	job, err := svc.GetJob(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2015, 3, 1, 0, 0, 0, 0, time.UTC), job.StartDate)

	_, err = svc.GetJob(context.Background(), 99)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
