// Package learning turns evaluated decisions into factor accuracy statistics
// and periodically adapts the factor weights the decision engine uses.
package learning

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/store"
	"github.com/wonny/tradeloop/pkg/logger"
)

// Store is the persistence the engine needs
type Store interface {
	store.LearningStore
	store.WeightHistoryStore
}

// Result is returned by EvaluateAndLearn
type Result struct {
	DecisionCorrect bool                `json:"decision_correct"`
	PnLPct          float64             `json:"pnl_pct"`
	FactorAccuracy  map[string]float64  `json:"factor_accuracy"`
	CurrentWeights  contracts.WeightSet `json:"current_weights"`
	Lessons         []string            `json:"lessons"`
	TotalEvaluated  int                 `json:"total_evaluated"`
	Adapted         bool                `json:"adapted"`
	Regime          string              `json:"market_regime"`
}

// Pair is one decision with its evaluated outcome
type Pair struct {
	Decision contracts.Decision
	Outcome  contracts.Outcome
}

// BatchResult is returned by BatchLearn
type BatchResult struct {
	Processed      int                 `json:"processed"`
	Failed         int                 `json:"failed"`
	Failures       []BatchFailure      `json:"failures,omitempty"`
	CurrentWeights contracts.WeightSet `json:"current_weights"`
	Summary        *Summary            `json:"overall_summary"`
}

// BatchFailure is one pair BatchLearn could not fold in
type BatchFailure struct {
	DecisionID string `json:"decision_id"`
	Ticker     string `json:"ticker"`
	Error      string `json:"error"`
}

// Engine owns the LearningState document
// ⭐ SSOT: 가중치 적응은 여기서만
type Engine struct {
	store  Store
	logger *logger.Logger
	now    func() time.Time
}

// NewEngine creates a learning engine over st
func NewEngine(st Store, log *logger.Logger) *Engine {
	return &Engine{
		store:  st,
		logger: log.WithComponent("learning"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// EvaluateAndLearn folds one evaluated decision into the learning state:
// action, factor, calibration and sector statistics, weight adaptation on
// every AdaptEvery-th evaluation, and regime detection. Every call counts;
// evaluating the same decision twice counts it twice.
func (e *Engine) EvaluateAndLearn(ctx context.Context, d contracts.Decision, o contracts.Outcome) (*Result, error) {
	now := e.now()
	// correctness and alignment follow the price move; P&L is signed by direction
	move := o.RealizedMovePct
	pnl := o.RealizedPnLPct

	var (
		correct bool
		lessons []string
		adapted bool
	)

	st, err := e.store.UpdateLearningState(ctx, func(st *contracts.LearningState) error {
		lessons, adapted = nil, false
		st.TotalEvaluated++

		// 1. action accuracy
		correct = WasDecisionCorrect(d.Action, move)
		if aa := st.ActionAccuracy[d.Action]; aa != nil {
			aa.Total++
			if correct {
				aa.Correct++
			}
		}

		// 2. per-factor alignment
		for factor, score := range d.Scores {
			fa := st.FactorAccuracy[factor]
			if fa == nil {
				fa = &contracts.FactorAccuracy{Accuracy: AccuracyPrior}
				st.FactorAccuracy[factor] = fa
			}
			fa.Record(FactorAligned(score, move))
		}

		// 3. confidence calibration
		if b := st.Calibration[contracts.CalibrationBucketFor(d.Confidence)]; b != nil {
			b.Predicted++
			if correct {
				b.Correct++
			}
		}

		// 4. sector
		sector := d.Sector
		if sector == "" {
			sector = contracts.UnknownSector
		}
		sp := st.SectorPerformance[sector]
		if sp == nil {
			sp = &contracts.SectorPerformance{}
			st.SectorPerformance[sector] = sp
		}
		sp.Decisions++
		if correct {
			sp.Correct++
		}
		sp.TotalPnL += pnl

		// 5. weights
		if ShouldAdapt(st.TotalEvaluated) {
			lessons = adaptWeights(st, now)
			adapted = true
		}

		// 6. regime
		if regime, ok := DetectRegime(o.BenchmarkChangePct, o.VolatilityIndex); ok {
			st.MarketRegime = regime
			st.RegimeHistory = append(st.RegimeHistory, contracts.RegimeEntry{
				Timestamp:          now,
				Regime:             regime,
				VolatilityIndex:    *o.VolatilityIndex,
				BenchmarkChangePct: *o.BenchmarkChangePct,
			})
		}

		for _, l := range lessons {
			st.LessonsLearned = append(st.LessonsLearned, contracts.Lesson{
				Timestamp:       now,
				Lesson:          l,
				EvaluationCount: st.TotalEvaluated,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("learn from %s: %w", d.Ticker, err)
	}

	if adapted {
		snap := contracts.WeightSnapshot{
			Timestamp:      now,
			Weights:        st.CurrentWeights.Clone(),
			Reason:         fmt.Sprintf("Auto-adaptation after %d evaluations", st.TotalEvaluated),
			TotalEvaluated: st.TotalEvaluated,
		}
		if err := e.store.AppendWeightSnapshot(ctx, snap); err != nil {
			e.logger.WithError(err).Warn("Failed to save weight snapshot")
		}
		e.logger.WithFields(map[string]interface{}{
			"total_evaluated": st.TotalEvaluated,
			"lessons":         len(lessons),
		}).Info("Factor weights adapted")
	}

	accuracy := make(map[string]float64, len(st.FactorAccuracy))
	for f, fa := range st.FactorAccuracy {
		accuracy[f] = fa.Accuracy
	}
	if lessons == nil {
		lessons = []string{}
	}

	return &Result{
		DecisionCorrect: correct,
		PnLPct:          pnl,
		FactorAccuracy:  accuracy,
		CurrentWeights:  st.CurrentWeights.Clone(),
		Lessons:         lessons,
		TotalEvaluated:  st.TotalEvaluated,
		Adapted:         adapted,
		Regime:          st.MarketRegime,
	}, nil
}

// AdaptedWeights returns the current adapted weights, or the defaults when
// the learning state cannot be read or holds an invalid set
func (e *Engine) AdaptedWeights(ctx context.Context) contracts.WeightSet {
	st, err := e.store.LearningState(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Learning state unavailable, using default weights")
		return contracts.DefaultWeights()
	}
	if err := st.CurrentWeights.Validate(); err != nil {
		e.logger.WithError(err).Warn("Stored weights invalid, using default weights")
		return contracts.DefaultWeights()
	}
	return st.CurrentWeights.Clone()
}

// BatchLearn runs EvaluateAndLearn over pairs in order. A failing pair is
// logged and recorded in Failures; the rest still run. Cancellation stops
// the batch between pairs and returns the partial result with ctx.Err().
// A summary that cannot be built leaves Summary nil.
func (e *Engine) BatchLearn(ctx context.Context, pairs []Pair) (*BatchResult, error) {
	res := &BatchResult{}
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := e.learnPair(ctx, p); err != nil {
			e.logger.WithError(err).WithField("ticker", p.Decision.Ticker).Warn("Batch learning item failed")
			res.Failed++
			res.Failures = append(res.Failures, BatchFailure{
				DecisionID: p.Decision.ID,
				Ticker:     p.Decision.Ticker,
				Error:      err.Error(),
			})
			continue
		}
		res.Processed++
	}

	summary, err := e.Summary(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Learning summary unavailable after batch")
		return res, nil
	}
	res.Summary = summary
	res.CurrentWeights = summary.CurrentWeights
	return res, nil
}

func (e *Engine) learnPair(ctx context.Context, p Pair) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("learn from %s: panic: %v", p.Decision.Ticker, r)
		}
	}()
	_, err = e.EvaluateAndLearn(ctx, p.Decision, p.Outcome)
	return err
}

// WeightHistory returns the last limit weight snapshots, oldest first
func (e *Engine) WeightHistory(ctx context.Context, limit int) ([]contracts.WeightSnapshot, error) {
	return e.store.WeightHistory(ctx, limit)
}
