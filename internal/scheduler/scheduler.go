// Package scheduler runs recurring jobs on a cron timeline with bounded
// retry and per-job execution history.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/logger"
)

// Scheduler manages scheduled jobs
// ⭐ SSOT: 스케줄 관리는 이 스케줄러에서만
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	logger  *logger.Logger
	jobs    map[string]Job
	entries map[string]cron.EntryID
	history map[string]*JobHistory
	active  map[string]bool
	mu      sync.RWMutex
	manual  sync.WaitGroup

	ctx     context.Context
	running bool

	// Retry configuration
	maxRetries int
	retryDelay time.Duration
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithRetry sets how many times a failed run is retried and the pause between attempts
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(s *Scheduler) {
		s.maxRetries = maxRetries
		s.retryDelay = delay
	}
}

// WithLocation sets the time zone cron expressions are evaluated in (default UTC)
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = newCron(loc, s.logger)
	}
}

// New creates a new scheduler
func New(log *logger.Logger, opts ...Option) *Scheduler {
	log = log.WithComponent("scheduler")
	s := &Scheduler{
		cron:       newCron(time.UTC, log),
		parser:     cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger:     log,
		jobs:       make(map[string]Job),
		entries:    make(map[string]cron.EntryID),
		history:    make(map[string]*JobHistory),
		active:     make(map[string]bool),
		ctx:        context.Background(),
		maxRetries: 1,
		retryDelay: 1 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func newCron(loc *time.Location, log *logger.Logger) *cron.Cron {
	cl := cronLogger{log}
	return cron.New(
		cron.WithSeconds(),
		cron.WithLocation(loc),
		cron.WithLogger(cl),
		// 같은 작업이 겹쳐 실행되지 않도록
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
}

// AddJob adds a job to the scheduler. Failures wrap ErrSchedulerStartup.
func (s *Scheduler) AddJob(job Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobName := job.Name()

	if _, exists := s.jobs[jobName]; exists {
		return fmt.Errorf("%w: job %s already exists", contracts.ErrSchedulerStartup, jobName)
	}

	sched, err := s.parser.Parse(job.Schedule())
	if err != nil {
		return fmt.Errorf("%w: schedule job %s: %w", contracts.ErrSchedulerStartup, jobName, err)
	}
	if dj, ok := job.(DelayedJob); ok && dj.FirstRunDelay() > 0 {
		sched = &delayedSchedule{delay: dj.FirstRunDelay(), inner: sched}
	}

	id := s.cron.Schedule(sched, cron.FuncJob(func() {
		if !s.claim(jobName) {
			s.logger.WithField("job", jobName).Info("Job skipped, previous run still active")
			return
		}
		s.execute(job)
	}))

	s.jobs[jobName] = job
	s.entries[jobName] = id
	s.history[jobName] = &JobHistory{}

	s.logger.WithFields(map[string]interface{}{
		"job":      jobName,
		"schedule": job.Schedule(),
	}).Info("Job added to scheduler")

	return nil
}

// Start starts the scheduler. Jobs run with ctx; cancel it to abort them.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting scheduler")
	s.cron.Start()
}

// Stop stops the scheduler and waits for running jobs, manual runs included
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Stopping scheduler")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.manual.Wait()
	s.logger.Info("Scheduler stopped")
}

// Running reports whether Start was called without a matching Stop
func (s *Scheduler) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunJob runs a specific job immediately (outside of schedule). It shares
// the running guard with scheduled runs, so the two never overlap.
func (s *Scheduler) RunJob(jobName string) error {
	s.mu.Lock()
	job, exists := s.jobs[jobName]
	if !exists {
		s.mu.Unlock()
		return fmt.Errorf("job %s: %w", jobName, contracts.ErrNotFound)
	}
	if s.active[jobName] {
		s.mu.Unlock()
		return fmt.Errorf("job %s: %w", jobName, contracts.ErrJobRunning)
	}
	s.active[jobName] = true
	s.mu.Unlock()

	s.logger.WithField("job", jobName).Info("Job triggered manually")
	s.manual.Add(1)
	go func() {
		defer s.manual.Done()
		s.execute(job)
	}()
	return nil
}

// claim marks jobName running; false when a run is already in flight
func (s *Scheduler) claim(jobName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[jobName] {
		return false
	}
	s.active[jobName] = true
	return true
}

// execute runs a claimed job and releases it
func (s *Scheduler) execute(job Job) {
	jobName := job.Name()
	defer func() {
		s.mu.Lock()
		delete(s.active, jobName)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(map[string]interface{}{
				"job":   jobName,
				"panic": fmt.Sprint(r),
			}).Error("Job panicked")
		}
	}()
	s.runJob(job)
}

// skipped reports errors that mean "nothing to do now", never retried
func skipped(err error) bool {
	return errors.Is(err, contracts.ErrScanInProgress)
}

// runJob executes a job with retry logic
func (s *Scheduler) runJob(job Job) {
	jobName := job.Name()
	startTime := time.Now()

	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	s.logger.WithField("job", jobName).Info("Job started")

	var lastErr error
	var success bool

	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := job.Run(ctx)
		if err == nil {
			success = true
			break
		}

		lastErr = err
		if skipped(err) || ctx.Err() != nil {
			break
		}

		s.logger.WithFields(map[string]interface{}{
			"job":     jobName,
			"attempt": attempt + 1,
			"error":   err.Error(),
		}).Warn("Job execution failed, retrying")

		if attempt < s.maxRetries {
			select {
			case <-ctx.Done():
			case <-time.After(s.retryDelay):
			}
		}
	}

	endTime := time.Now()
	duration := endTime.Sub(startTime)

	result := JobResult{
		JobName:   jobName,
		StartTime: startTime,
		EndTime:   endTime,
		Duration:  duration,
		Success:   success,
	}

	if !success && lastErr != nil {
		result.Error = lastErr.Error()
		result.Skipped = skipped(lastErr)
	}

	s.mu.Lock()
	if history, exists := s.history[jobName]; exists {
		history.AddResult(result)
	}
	s.mu.Unlock()

	switch {
	case success:
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
		}).Info("Job completed successfully")
	case result.Skipped:
		s.logger.WithFields(map[string]interface{}{
			"job":    jobName,
			"reason": lastErr.Error(),
		}).Info("Job skipped")
	default:
		s.logger.WithFields(map[string]interface{}{
			"job":      jobName,
			"duration": duration,
			"error":    lastErr.Error(),
		}).Error("Job failed after all retries")
	}
}

// GetJobHistory returns the newest limit results for a job, oldest first.
// limit <= 0 returns everything retained.
func (s *Scheduler) GetJobHistory(jobName string, limit int) ([]JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history, exists := s.history[jobName]
	if !exists {
		return nil, fmt.Errorf("job %s: %w", jobName, contracts.ErrNotFound)
	}

	if limit <= 0 {
		limit = len(history.Results)
	}
	return history.GetLatestResults(limit), nil
}

// JobInfo describes one registered job
type JobInfo struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	NextRun  *time.Time `json:"next_run"`
}

// Jobs lists registered jobs sorted by id. NextRun is nil until Start.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, job := range s.jobs {
		info := JobInfo{
			ID:       name,
			Name:     job.Description(),
			Schedule: job.Schedule(),
		}
		if next := s.cron.Entry(s.entries[name]).Next; !next.IsZero() {
			info.NextRun = &next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetJobStats returns statistics for all jobs
func (s *Scheduler) GetJobStats() map[string]JobStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]JobStats)

	for jobName, job := range s.jobs {
		history := s.history[jobName]
		latestResults := history.GetLatestResults(10)
		failedResults := history.GetFailedResults()

		var lastRun *time.Time
		var lastSuccess *time.Time
		var lastFailure *time.Time

		if len(latestResults) > 0 {
			lastResult := latestResults[len(latestResults)-1]
			lastRun = &lastResult.StartTime

			if lastResult.Success {
				lastSuccess = &lastResult.StartTime
			} else if !lastResult.Skipped {
				lastFailure = &lastResult.StartTime
			}
		}

		stats[jobName] = JobStats{
			JobName:      jobName,
			Schedule:     job.Schedule(),
			TotalRuns:    len(history.Results),
			SuccessCount: len(history.Results) - len(failedResults),
			FailureCount: len(failedResults),
			SuccessRate:  history.GetSuccessRate(),
			LastRun:      lastRun,
			LastSuccess:  lastSuccess,
			LastFailure:  lastFailure,
		}
	}

	return stats
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
}

// delayedSchedule fires once at (first Next call + delay), then follows inner.
// cron only calls Next from its run goroutine.
type delayedSchedule struct {
	delay time.Duration
	first time.Time
	inner cron.Schedule
}

func (d *delayedSchedule) Next(t time.Time) time.Time {
	if d.first.IsZero() {
		d.first = t.Add(d.delay)
		return d.first
	}
	if t.Before(d.first) {
		return d.first
	}
	return d.inner.Next(t)
}

// cronLogger routes cron's own messages to zerolog
type cronLogger struct {
	log *logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.WithFields(kvFields(keysAndValues)).Debug("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.WithError(err).WithFields(kvFields(keysAndValues)).Error("cron: " + msg)
}

func kvFields(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
