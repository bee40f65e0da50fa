package agent

import (
	"context"
	"fmt"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/learning"
	"github.com/wonny/tradeloop/internal/store"
)

// LearningRun summarizes one evaluation pass
type LearningRun struct {
	Skipped   bool   `json:"skipped"`
	Reason    string `json:"reason,omitempty"`
	Evaluated int    `json:"evaluated"`
	Failed    int    `json:"failed"`
}

// Learn evaluates the most recent actionable decisions inside the learning
// window (at most LearningBatchLimit) and feeds each outcome to the learning
// engine. One decision failing never stops the rest.
func (a *Agent) Learn(ctx context.Context) (*LearningRun, error) {
	a.logActivity(ctx, "LEARNING_STARTED", "Auto-learning cycle started", contracts.CategoryLearning)

	cutoff := a.now().UTC().Add(-a.cfg.LearningWindow)
	recent, err := a.store.ListDecisions(ctx, store.DecisionFilter{Since: cutoff})
	if err != nil {
		a.logActivity(ctx, "LEARNING_ERROR", fmt.Sprintf("Failed to load decisions: %v", err), contracts.CategoryError)
		return nil, fmt.Errorf("%w: list decisions: %w", contracts.ErrPersistence, err)
	}

	if len(recent) == 0 {
		older, err := a.store.ListDecisions(ctx, store.DecisionFilter{Limit: 1})
		if err == nil && len(older) == 0 {
			a.logActivity(ctx, "LEARNING_SKIPPED", "No decisions to learn from", contracts.CategoryLearning)
			return &LearningRun{Skipped: true, Reason: "no_decisions"}, nil
		}
	}

	actionable := recent[:0:0]
	for _, d := range recent {
		if d.Action.IsActionable() {
			actionable = append(actionable, d)
		}
	}
	if len(actionable) == 0 {
		a.logActivity(ctx, "LEARNING_SKIPPED", "No recent actionable decisions to evaluate", contracts.CategoryLearning)
		return &LearningRun{Skipped: true, Reason: "no_recent_actionable"}, nil
	}
	if len(actionable) > a.cfg.LearningBatchLimit {
		actionable = actionable[len(actionable)-a.cfg.LearningBatchLimit:]
	}

	run := a.learnFrom(ctx, actionable)

	if _, err := a.store.UpdateScanState(context.WithoutCancel(ctx), func(st *contracts.ScanState) error {
		st.LearningCycles++
		return nil
	}); err != nil {
		a.logger.WithError(err).Error("Failed to record learning cycle")
	}

	a.logActivity(ctx, "LEARNING_COMPLETE", run.detail(), contracts.CategoryLearning)
	return run, nil
}

// RunAutoLearning is Learn for the scheduler
func (a *Agent) RunAutoLearning(ctx context.Context) error {
	_, err := a.Learn(ctx)
	return err
}

// EvaluateLatest runs the evaluate-and-learn loop over the newest limit
// decisions of any action and age. Used by the on-demand learning trigger.
func (a *Agent) EvaluateLatest(ctx context.Context, limit int) (*LearningRun, error) {
	decisions, err := a.store.ListDecisions(ctx, store.DecisionFilter{Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("%w: list decisions: %w", contracts.ErrPersistence, err)
	}
	if len(decisions) == 0 {
		return &LearningRun{Skipped: true, Reason: "no_decisions"}, nil
	}

	run := a.learnFrom(ctx, decisions)
	a.logActivity(ctx, "LEARNING_COMPLETE", run.detail(), contracts.CategoryLearning)
	return run, nil
}

func (r *LearningRun) detail() string {
	if r.Failed == 0 {
		return fmt.Sprintf("Evaluated %d decisions", r.Evaluated)
	}
	return fmt.Sprintf("Evaluated %d decisions, %d failed", r.Evaluated, r.Failed)
}

// learnFrom evaluates each decision, then folds the outcomes in as one batch.
// Every failed item lands in the activity log as LEARNING_ERROR.
func (a *Agent) learnFrom(ctx context.Context, decisions []contracts.Decision) *LearningRun {
	run := &LearningRun{}

	pairs := make([]learning.Pair, 0, len(decisions))
	for _, d := range decisions {
		if ctx.Err() != nil {
			break
		}
		o, err := a.evaluateOne(ctx, d)
		if err != nil {
			run.Failed++
			a.learningFailed(ctx, d.ID, d.Ticker, err.Error())
			continue
		}
		pairs = append(pairs, learning.Pair{Decision: d, Outcome: *o})
	}
	if len(pairs) == 0 {
		return run
	}

	res, err := a.learner.BatchLearn(ctx, pairs)
	if res == nil {
		run.Failed += len(pairs)
		a.logger.WithError(err).Error("Batch learning failed")
		a.logActivity(ctx, "LEARNING_ERROR", fmt.Sprintf("Batch learning failed: %v", err), contracts.CategoryError)
		return run
	}
	if err != nil {
		a.logger.WithError(err).Warn("Batch learning stopped early")
	}

	failed := make(map[string]bool, len(res.Failures))
	for _, f := range res.Failures {
		failed[f.DecisionID] = true
		run.Failed++
		a.learningFailed(ctx, f.DecisionID, f.Ticker, f.Error)
	}

	// pairs past Processed+Failed were never reached (cancelled batch)
	reached := res.Processed + res.Failed
	for i, p := range pairs {
		if i >= reached {
			break
		}
		if failed[p.Decision.ID] {
			continue
		}
		run.Evaluated++
		if err := a.store.AttachEvaluation(ctx, p.Decision.ID, p.Outcome.Evaluation); err != nil {
			a.logger.WithError(err).WithField("decision_id", p.Decision.ID).Warn("Failed to attach evaluation")
		}
	}
	return run
}

func (a *Agent) learningFailed(ctx context.Context, decisionID, ticker, reason string) {
	a.logger.WithFields(map[string]interface{}{
		"ticker":      ticker,
		"decision_id": decisionID,
		"error":       reason,
	}).Warn("Learning from decision failed")
	a.logActivity(ctx, "LEARNING_ERROR", fmt.Sprintf("%s: %s", ticker, reason), contracts.CategoryError)
}

func (a *Agent) evaluateOne(ctx context.Context, d contracts.Decision) (o *contracts.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			o, err = nil, fmt.Errorf("%w: %s: panic: %v", contracts.ErrEvaluation, d.Ticker, r)
		}
	}()
	return a.evaluator.Evaluate(ctx, d)
}
