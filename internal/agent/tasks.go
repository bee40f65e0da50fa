package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/store"
)

const taskQueueSize = 256

// ErrNotRunning rejects background work before Start or after Stop
var ErrNotRunning = errors.New("agent not running")

type queuedTask struct {
	id     string
	ticker string
}

// Submit queues a single-instrument analysis and returns its task id
func (a *Agent) Submit(ctx context.Context, ticker string) (string, error) {
	if !a.Running() {
		return "", ErrNotRunning
	}

	task := contracts.BackgroundTask{
		ID:          uuid.NewString(),
		Ticker:      ticker,
		Status:      contracts.TaskQueued,
		SubmittedAt: a.now().UTC(),
	}
	if err := a.store.CreateTask(ctx, task); err != nil {
		return "", fmt.Errorf("%w: create task: %w", contracts.ErrPersistence, err)
	}

	select {
	case a.queue <- queuedTask{id: task.ID, ticker: ticker}:
	default:
		a.failTask(ctx, task.ID, ticker, errors.New("task queue full"))
		return "", fmt.Errorf("submit %s: task queue full", ticker)
	}

	a.logActivity(ctx, "ANALYSIS_QUEUED", fmt.Sprintf("Background analysis queued for %s", ticker), contracts.CategoryAnalysis)
	return task.ID, nil
}

// Analyze runs one analysis synchronously, outside the scan flag. The decision
// is persisted when save is set; a save failure does not fail the call.
func (a *Agent) Analyze(ctx context.Context, ticker string, save bool) (*contracts.Decision, error) {
	d, err := a.analyzeOne(ctx, ticker, nil)
	if err != nil {
		return nil, err
	}
	if save {
		a.saveDecision(ctx, d)
	}
	return d, nil
}

// Decisions lists persisted decisions, oldest first
func (a *Agent) Decisions(ctx context.Context, f store.DecisionFilter) ([]contracts.Decision, error) {
	return a.store.ListDecisions(ctx, f)
}

// Task returns one background task
func (a *Agent) Task(ctx context.Context, id string) (*contracts.BackgroundTask, error) {
	return a.store.GetTask(ctx, id)
}

// Tasks returns every retained background task
func (a *Agent) Tasks(ctx context.Context) ([]contracts.BackgroundTask, error) {
	return a.store.ListTasks(ctx)
}

// worker drains the task queue until ctx is cancelled
func (a *Agent) worker(ctx context.Context, n int) {
	defer a.wg.Done()
	log := a.logger.WithField("worker", n)
	log.Debug("Background worker started")

	for {
		select {
		case <-ctx.Done():
			log.Debug("Background worker stopped")
			return
		case qt := <-a.queue:
			a.runTask(ctx, qt)
		}
	}
}

// runTask moves a task queued → running → done|error
func (a *Agent) runTask(ctx context.Context, qt queuedTask) {
	started := a.now().UTC()
	if _, err := a.store.TransitionTask(ctx, qt.id, func(t *contracts.BackgroundTask) {
		t.Status = contracts.TaskRunning
		t.StartedAt = &started
	}); err != nil {
		a.logger.WithError(err).WithField("task_id", qt.id).Error("Failed to start task")
		return
	}

	d, err := a.analyzeOne(ctx, qt.ticker, nil)
	if err != nil {
		a.failTask(ctx, qt.id, qt.ticker, err)
		return
	}

	a.saveDecision(ctx, d)

	completed := a.now().UTC()
	if _, err := a.store.TransitionTask(context.WithoutCancel(ctx), qt.id, func(t *contracts.BackgroundTask) {
		t.Status = contracts.TaskDone
		t.Result = d
		t.CompletedAt = &completed
	}); err != nil {
		a.logger.WithError(err).WithField("task_id", qt.id).Error("Failed to complete task")
	}

	a.logActivity(ctx, "ANALYSIS_COMPLETE",
		fmt.Sprintf("%s: %s (score: %.1f, confidence: %d%%)", qt.ticker, d.Action, d.CompositeScore, d.Confidence),
		contracts.CategoryAnalysis)
}

func (a *Agent) failTask(ctx context.Context, id, ticker string, cause error) {
	completed := a.now().UTC()
	if _, err := a.store.TransitionTask(context.WithoutCancel(ctx), id, func(t *contracts.BackgroundTask) {
		t.Status = contracts.TaskError
		t.Error = cause.Error()
		t.CompletedAt = &completed
	}); err != nil {
		a.logger.WithError(err).WithField("task_id", id).Error("Failed to record task error")
	}
	a.logActivity(ctx, "ANALYSIS_ERROR", fmt.Sprintf("%s: %v", ticker, cause), contracts.CategoryError)
}
