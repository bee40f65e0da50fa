// Package agent drives the pipeline autonomously: universe scans, learning
// cycles, background single-instrument analysis, and the activity log that
// records all of it.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/decision"
	"github.com/wonny/tradeloop/internal/learning"
	"github.com/wonny/tradeloop/internal/scheduler"
	"github.com/wonny/tradeloop/internal/scheduler/jobs"
	"github.com/wonny/tradeloop/internal/store"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/config"
	"github.com/wonny/tradeloop/pkg/httputil"
	"github.com/wonny/tradeloop/pkg/logger"
)

// Analyzer builds Decisions (decision.Engine)
type Analyzer interface {
	Prefetch(ctx context.Context) *contracts.SharedData
	Analyze(ctx context.Context, ticker string, shared *contracts.SharedData) (*contracts.Decision, *decision.Analysis, error)
}

// Evaluator computes Outcomes (evaluation.Evaluator)
type Evaluator interface {
	Evaluate(ctx context.Context, d contracts.Decision) (*contracts.Outcome, error)
}

// Learner folds Outcomes into the learning state (learning.Engine)
type Learner interface {
	BatchLearn(ctx context.Context, pairs []learning.Pair) (*learning.BatchResult, error)
}

// Store is every state surface the agent touches
type Store interface {
	store.DecisionStore
	store.ScanStateStore
	store.ActivityStore
	store.TaskStore
}

// Deps are the agent's collaborators. HTTP is only used for the keep-alive ping.
type Deps struct {
	Analyzer  Analyzer
	Evaluator Evaluator
	Learner   Learner
	Store     Store
	Universes *universe.Catalogue
	HTTP      *httputil.Client
}

// Agent owns the scan state machine, the background task pool and the
// recurring triggers
// ⭐ SSOT: 자율 스캔/학습 실행은 이 Agent를 통해서만
type Agent struct {
	analyzer  Analyzer
	evaluator Evaluator
	learner   Learner
	store     Store
	universes *universe.Catalogue
	http      *httputil.Client

	cfg       config.AgentConfig
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error

	mu             sync.Mutex
	running        bool
	jobsRegistered bool
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	queue          chan queuedTask
	rotation       int

	listenersMu sync.RWMutex
	listeners   []func(contracts.ActivityLogEntry)
}

// New creates an agent. Nothing runs until Start.
func New(deps Deps, cfg config.AgentConfig, log *logger.Logger) *Agent {
	if cfg.BackgroundWorkers < 1 {
		cfg.BackgroundWorkers = 2
	}
	if cfg.BatchWorkers < 1 {
		cfg.BatchWorkers = 4
	}
	if cfg.LearningBatchLimit < 1 {
		cfg.LearningBatchLimit = 30
	}
	if cfg.LearningWindow <= 0 {
		cfg.LearningWindow = 30 * 24 * time.Hour
	}
	if cfg.OverdueThreshold <= 0 {
		cfg.OverdueThreshold = 3 * time.Hour
	}

	log = log.WithComponent("agent")
	return &Agent{
		analyzer:  deps.Analyzer,
		evaluator: deps.Evaluator,
		learner:   deps.Learner,
		store:     deps.Store,
		universes: deps.Universes,
		http:      deps.HTTP,
		cfg:       cfg,
		scheduler: scheduler.New(log),
		logger:    log,
		now:       time.Now,
		sleep:     sleepCtx,
		queue:     make(chan queuedTask, taskQueueSize),
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start recovers from an unclean shutdown, starts the background workers,
// registers the recurring jobs and kicks off the overdue check. A scheduler
// failure is logged and returned (wrapping ErrSchedulerStartup); the workers
// keep running.
func (a *Agent) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.mu.Unlock()

	a.resetState(runCtx)

	for i := 0; i < a.cfg.BackgroundWorkers; i++ {
		a.wg.Add(1)
		go a.worker(runCtx, i)
	}

	if err := a.startScheduler(runCtx); err != nil {
		a.logActivity(runCtx, "AGENT_ERROR", fmt.Sprintf("Failed to start scheduler: %v", err), contracts.CategoryError)
		return err
	}

	a.logActivity(runCtx, "AGENT_STARTED",
		"Autonomous agent started: first scan in 30s, learning in 5m, keep-alive every 10m", contracts.CategorySystem)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.CheckOverdue(runCtx)
	}()

	return nil
}

// resetState clears a scan flag left by a crashed process and fails tasks that
// were queued or running when it died
func (a *Agent) resetState(ctx context.Context) {
	now := a.now().UTC()
	_, err := a.store.UpdateScanState(ctx, func(st *contracts.ScanState) error {
		if st.InProgress {
			a.logger.WithField("universe", st.CurrentUniverse).Warn("Clearing stale scan flag")
		}
		st.InProgress = false
		st.CurrentUniverse = ""
		st.ScanStartedAt = nil
		st.AgentStartedAt = &now
		return nil
	})
	if err != nil {
		a.logger.WithError(err).Error("Failed to reset scan state")
	}

	n, err := a.store.FailInterruptedTasks(ctx, now)
	if err != nil {
		a.logger.WithError(err).Error("Failed to fail interrupted tasks")
	} else if n > 0 {
		a.logger.WithField("count", n).Warn("Marked interrupted background tasks as failed")
	}
}

func (a *Agent) startScheduler(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.jobsRegistered {
		if err := jobs.Register(a.scheduler, a, a.http, a.cfg.KeepAliveURL, a.logger); err != nil {
			return err
		}
		a.jobsRegistered = true
	}
	a.scheduler.Start(ctx)
	return nil
}

// Stop cancels in-flight work between items, stops the scheduler and waits
// for the workers
func (a *Agent) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	cancel := a.cancel
	a.mu.Unlock()

	cancel()
	if a.scheduler.Running() {
		a.scheduler.Stop()
	}
	a.wg.Wait()

	a.logActivity(context.Background(), "AGENT_STOPPED", "Autonomous agent stopped", contracts.CategorySystem)
}

// Running reports whether Start has been called without Stop
func (a *Agent) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// Status is the monitoring snapshot
type Status struct {
	State            *contracts.ScanState         `json:"state"`
	RecentActivity   []contracts.ActivityLogEntry `json:"recent_activity"`
	IsRunning        bool                         `json:"is_running"`
	SchedulerRunning bool                         `json:"scheduler_running"`
}

// Status returns the scan state and the last RecentActivityView activity entries.
// IsRunning mirrors the scan flag.
func (a *Agent) Status(ctx context.Context) (*Status, error) {
	st, err := a.store.ScanState(ctx)
	if err != nil {
		return nil, fmt.Errorf("load scan state: %w", err)
	}
	recent, err := a.store.RecentActivity(ctx, contracts.RecentActivityView)
	if err != nil {
		return nil, fmt.Errorf("load activity: %w", err)
	}
	return &Status{
		State:            st,
		RecentActivity:   recent,
		IsRunning:        st.InProgress,
		SchedulerRunning: a.scheduler.Running(),
	}, nil
}

// Jobs lists the recurring jobs with their next run (nil before Start)
func (a *Agent) Jobs() []scheduler.JobInfo {
	return a.scheduler.Jobs()
}

// JobStats returns per-job execution statistics
func (a *Agent) JobStats() map[string]scheduler.JobStats {
	return a.scheduler.GetJobStats()
}

// RunJob triggers a recurring job now. Unknown names wrap ErrNotFound and a
// job still running wraps ErrJobRunning.
func (a *Agent) RunJob(ctx context.Context, name string) error {
	if err := a.scheduler.RunJob(name); err != nil {
		return err
	}
	a.logActivity(ctx, "JOB_TRIGGERED", fmt.Sprintf("Manual run of %s", name), contracts.CategorySystem)
	return nil
}

// JobHistory returns the newest limit results of one job, oldest first
func (a *Agent) JobHistory(name string, limit int) ([]scheduler.JobResult, error) {
	return a.scheduler.GetJobHistory(name, limit)
}

// Universes exposes the catalogue the agent scans
func (a *Agent) Universes() *universe.Catalogue {
	return a.universes
}
