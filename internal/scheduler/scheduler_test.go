package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	delay    time.Duration
	calls    int32
	errs     []error
}

func (j *fakeJob) Name() string                 { return j.name }
func (j *fakeJob) Description() string          { return "fake " + j.name }
func (j *fakeJob) Schedule() string             { return j.schedule }
func (j *fakeJob) FirstRunDelay() time.Duration { return j.delay }

func (j *fakeJob) Run(ctx context.Context) error {
	n := atomic.AddInt32(&j.calls, 1)
	if int(n) <= len(j.errs) {
		return j.errs[n-1]
	}
	return nil
}

func newTestScheduler() *Scheduler {
	return New(logger.Nop(), WithRetry(1, time.Millisecond))
}

func waitHistory(t *testing.T, s *Scheduler, name string, n int) []JobResult {
	t.Helper()
	var h []JobResult
	require.Eventually(t, func() bool {
		var err error
		h, err = s.GetJobHistory(name, 0)
		return err == nil && len(h) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return h
}

// gateJob blocks in Run until release is closed
type gateJob struct {
	fakeJob
	started chan struct{}
	release chan struct{}
}

func (j *gateJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.calls, 1)
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestAddJob_Errors(t *testing.T) {
	s := newTestScheduler()

	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "@every 1h"}))

	err := s.AddJob(&fakeJob{name: "a", schedule: "@every 1h"})
	assert.True(t, errors.Is(err, contracts.ErrSchedulerStartup))

	err = s.AddJob(&fakeJob{name: "b", schedule: "not a cron"})
	assert.True(t, errors.Is(err, contracts.ErrSchedulerStartup))

	assert.Len(t, s.Jobs(), 1)
}

func TestRunJob_Success(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "ok", schedule: "@every 1h"}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("ok"))
	h := waitHistory(t, s, "ok", 1)

	assert.True(t, h[0].Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	assert.True(t, errors.Is(s.RunJob("missing"), contracts.ErrNotFound))
}

func TestRunJob_RetriesThenFails(t *testing.T) {
	s := newTestScheduler()
	boom := errors.New("boom")
	job := &fakeJob{name: "bad", schedule: "@every 1h", errs: []error{boom, boom}}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("bad"))
	h := waitHistory(t, s, "bad", 1)

	assert.False(t, h[0].Success)
	assert.Equal(t, "boom", h[0].Error)
	assert.Equal(t, int32(2), atomic.LoadInt32(&job.calls))

	stats := s.GetJobStats()["bad"]
	assert.Equal(t, 1, stats.FailureCount)
	assert.NotNil(t, stats.LastFailure)
}

func TestRunJob_ScanInProgressNotRetried(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "scan", schedule: "@every 1h", errs: []error{contracts.ErrScanInProgress}}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("scan"))
	h := waitHistory(t, s, "scan", 1)

	assert.True(t, h[0].Skipped)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
	assert.Zero(t, s.GetJobStats()["scan"].FailureCount)
}

func TestRunJob_RejectsOverlap(t *testing.T) {
	s := newTestScheduler()
	job := &gateJob{
		fakeJob: fakeJob{name: "learn", schedule: "@every 1h"},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	require.NoError(t, s.AddJob(job))

	require.NoError(t, s.RunJob("learn"))
	select {
	case <-job.started:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not start")
	}

	err := s.RunJob("learn")
	assert.True(t, errors.Is(err, contracts.ErrJobRunning))

	close(job.release)
	h := waitHistory(t, s, "learn", 1)
	assert.True(t, h[0].Success)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))

	// the guard clears once the run finishes
	require.Eventually(t, func() bool { return s.RunJob("learn") == nil }, time.Second, 5*time.Millisecond)
	waitHistory(t, s, "learn", 2)
	assert.Equal(t, int32(2), atomic.LoadInt32(&job.calls))
}

func TestRunJob_BlockedByScheduledRun(t *testing.T) {
	s := newTestScheduler()
	job := &fakeJob{name: "auto_learning", schedule: "@every 6h"}
	require.NoError(t, s.AddJob(job))

	// a scheduled run holds the guard
	require.True(t, s.claim("auto_learning"))
	assert.False(t, s.claim("auto_learning"))
	assert.True(t, errors.Is(s.RunJob("auto_learning"), contracts.ErrJobRunning))
	assert.Zero(t, atomic.LoadInt32(&job.calls))

	s.mu.Lock()
	delete(s.active, "auto_learning")
	s.mu.Unlock()

	require.NoError(t, s.RunJob("auto_learning"))
	waitHistory(t, s, "auto_learning", 1)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestGetJobHistory_Limit(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "@every 1h"}))

	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool { return s.RunJob("a") == nil }, time.Second, 5*time.Millisecond)
		waitHistory(t, s, "a", i+1)
	}

	h, err := s.GetJobHistory("a", 2)
	require.NoError(t, err)
	assert.Len(t, h, 2)

	_, err = s.GetJobHistory("missing", 0)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestJobs_NextRun(t *testing.T) {
	s := newTestScheduler()
	require.NoError(t, s.AddJob(&fakeJob{name: "delayed", schedule: "@every 2h", delay: time.Hour}))
	require.NoError(t, s.AddJob(&fakeJob{name: "daily", schedule: "0 30 4 * * *"}))

	before := s.Jobs()
	require.Len(t, before, 2)
	assert.Equal(t, "daily", before[0].ID)
	assert.Equal(t, "fake daily", before[0].Name)
	assert.Nil(t, before[1].NextRun)

	start := time.Now()
	s.Start(context.Background())
	defer s.Stop()
	assert.True(t, s.Running())

	var jobs []JobInfo
	require.Eventually(t, func() bool {
		jobs = s.Jobs()
		return jobs[0].NextRun != nil && jobs[1].NextRun != nil
	}, time.Second, 5*time.Millisecond)

	next := *jobs[1].NextRun
	assert.WithinDuration(t, start.Add(time.Hour), next, 5*time.Second)

	daily := jobs[0].NextRun.UTC()
	assert.Equal(t, 4, daily.Hour())
	assert.Equal(t, 30, daily.Minute())
}

func TestDelayedSchedule(t *testing.T) {
	inner, err := cron.ParseStandard("@every 2h")
	require.NoError(t, err)

	d := &delayedSchedule{delay: 30 * time.Second, inner: inner}
	t0 := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	first := d.Next(t0)
	assert.Equal(t, t0.Add(30*time.Second), first)
	assert.Equal(t, first, d.Next(t0.Add(10*time.Second)))
	assert.Equal(t, first.Add(2*time.Hour), d.Next(first))
}

func TestJobHistory_Cap(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < 150; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxJobHistory)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.Empty(t, h.GetLatestResults(0))
}
