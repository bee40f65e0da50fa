// Package evaluation compares a past Decision against the price action that
// followed it.
package evaluation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/logger"
)

// WindowDays is the price window fetched for an evaluation
const WindowDays = 30

// Evaluator produces Outcomes for persisted Decisions
type Evaluator struct {
	md     contracts.MarketData
	logger *logger.Logger
	now    func() time.Time
}

// NewEvaluator creates an outcome evaluator
func NewEvaluator(md contracts.MarketData, log *logger.Logger) *Evaluator {
	return &Evaluator{
		md:     md,
		logger: log.WithComponent("evaluation"),
		now:    time.Now,
	}
}

// Evaluate fetches recent bars for the decision's instrument and walks them.
// Benchmark month change and the volatility index are attached when the
// global indicators are available. Failures wrap ErrEvaluation.
func (e *Evaluator) Evaluate(ctx context.Context, d contracts.Decision) (*contracts.Outcome, error) {
	if d.Price <= 0 {
		return nil, fmt.Errorf("%w: %s: entry price %.2f", contracts.ErrEvaluation, d.Ticker, d.Price)
	}

	bars, err := e.md.PriceHistory(ctx, d.Ticker, WindowDays)
	if err == nil && len(bars) == 0 {
		err = contracts.ErrDataUnavailable
	}
	if err != nil {
		if !errors.Is(err, contracts.ErrDataUnavailable) {
			err = fmt.Errorf("%w: %v", contracts.ErrDataUnavailable, err)
		}
		return nil, fmt.Errorf("%w: %s: %w", contracts.ErrEvaluation, d.Ticker, err)
	}

	ev := Walk(d, bars)
	ev.EvaluatedAt = e.now().UTC()

	out := &contracts.Outcome{Evaluation: ev}

	ind, err := e.md.GlobalIndicators(ctx)
	if err != nil {
		e.logger.WithError(err).WithField("ticker", d.Ticker).Debug("Global indicators unavailable for outcome")
		return out, nil
	}
	if bench, ok := ind[contracts.IndicatorBenchmark]; ok {
		out.BenchmarkChangePct = contracts.Float64(bench.MonthChangePct)
	}
	if vix, ok := ind[contracts.IndicatorVolatility]; ok {
		out.VolatilityIndex = contracts.Float64(vix.Current)
	}

	return out, nil
}

// Walk replays bars dated after the decision day in order. For buy-class
// decisions the first bar whose high reaches the target or whose low reaches
// the stop decides the outcome; sell-class mirrors it. A bar touching both
// counts as a stop. With no later bars the last bar supplies a mark-to-market
// OPEN (or HOLD) reading.
func Walk(d contracts.Decision, bars []contracts.PriceBar) contracts.Evaluation {
	entry := d.Price
	if entry <= 0 || len(bars) == 0 {
		ev := contracts.Evaluation{CurrentPrice: entry, Outcome: contracts.OutcomeOpen}
		if !d.Action.IsActionable() {
			ev.Outcome = contracts.OutcomeHold
		}
		return ev
	}

	dayStart := d.Timestamp.UTC().Truncate(24 * time.Hour)

	var after []contracts.PriceBar
	for _, b := range bars {
		if b.Date.UTC().Truncate(24 * time.Hour).After(dayStart) {
			after = append(after, b)
		}
	}

	window := after
	if len(window) == 0 {
		window = bars[len(bars)-1:]
	}

	current := window[len(window)-1].Close
	high, low := window[0].High, window[0].Low
	for _, b := range window {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
	}

	move := pct(current, entry)
	ev := contracts.Evaluation{
		CurrentPrice: round2(current),
		HighSince:    round2(high),
		LowSince:     round2(low),
		BarsObserved: len(after),
		Outcome:      contracts.OutcomeOpen,
	}

	switch {
	case d.Action.IsBuy():
		ev.PnLPct = move
		ev.RealizedPnLPct = move
		ev.RealizedMovePct = move
		for _, b := range after {
			if d.StopLoss > 0 && b.Low <= d.StopLoss {
				ev.Outcome = contracts.OutcomeStopLossHit
				ev.RealizedMovePct = pct(d.StopLoss, entry)
				ev.RealizedPnLPct = ev.RealizedMovePct
				break
			}
			if d.TargetPrice > 0 && b.High >= d.TargetPrice {
				ev.Outcome = contracts.OutcomeTargetHit
				ev.RealizedMovePct = pct(d.TargetPrice, entry)
				ev.RealizedPnLPct = ev.RealizedMovePct
				break
			}
		}

	case d.Action.IsSell():
		ev.PnLPct = -move
		ev.RealizedPnLPct = -move
		ev.RealizedMovePct = move
		for _, b := range after {
			if d.StopLoss > 0 && b.High >= d.StopLoss {
				ev.Outcome = contracts.OutcomeStopLossHit
				ev.RealizedMovePct = pct(d.StopLoss, entry)
				ev.RealizedPnLPct = -ev.RealizedMovePct
				break
			}
			if d.TargetPrice > 0 && b.Low <= d.TargetPrice {
				ev.Outcome = contracts.OutcomeTargetHit
				ev.RealizedMovePct = pct(d.TargetPrice, entry)
				ev.RealizedPnLPct = -ev.RealizedMovePct
				break
			}
		}

	default:
		ev.Outcome = contracts.OutcomeHold
		ev.PnLPct = move
		ev.RealizedPnLPct = move
		ev.RealizedMovePct = move
	}

	ev.PnLPct = round2(ev.PnLPct)
	ev.RealizedPnLPct = round2(ev.RealizedPnLPct)
	ev.RealizedMovePct = round2(ev.RealizedMovePct)
	return ev
}

func pct(price, entry float64) float64 {
	return (price - entry) / entry * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
