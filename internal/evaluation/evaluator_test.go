package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/marketdata"
	"github.com/wonny/tradeloop/pkg/logger"
)

var decisionTime = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func bar(day int, high, low, close float64) contracts.PriceBar {
	return contracts.PriceBar{
		Date:  time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Open:  close,
		High:  high,
		Low:   low,
		Close: close,
	}
}

func buyDecision() contracts.Decision {
	return contracts.Decision{
		Ticker:      "RELIANCE.NS",
		Timestamp:   decisionTime,
		Action:      contracts.ActionBuy,
		Price:       100,
		TargetPrice: 110,
		StopLoss:    95,
	}
}

func TestWalk(t *testing.T) {
	sell := contracts.Decision{Timestamp: decisionTime, Action: contracts.ActionSell, Price: 100, TargetPrice: 90, StopLoss: 105}
	hold := contracts.Decision{Timestamp: decisionTime, Action: contracts.ActionHold, Price: 100, TargetPrice: 104, StopLoss: 96}

	tests := []struct {
		name         string
		decision     contracts.Decision
		bars         []contracts.PriceBar
		outcome      contracts.OutcomeKind
		realized     float64
		move         float64
		pnl          float64
		barsObserved int
	}{
		{
			name:     "buy target before stop",
			decision: buyDecision(),
			bars: []contracts.PriceBar{
				bar(1, 120, 80, 100), // decision day is ignored
				bar(2, 105, 98, 103),
				bar(3, 111, 99, 108),
				bar(4, 104, 90, 92),
			},
			outcome: contracts.OutcomeTargetHit, realized: 10, move: 10, pnl: -8, barsObserved: 3,
		},
		{
			name:     "buy stop before target",
			decision: buyDecision(),
			bars: []contracts.PriceBar{
				bar(2, 100, 94, 96),
				bar(3, 112, 99, 111),
			},
			outcome: contracts.OutcomeStopLossHit, realized: -5, move: -5, pnl: 11, barsObserved: 2,
		},
		{
			name:         "buy touching both on one bar counts as stop",
			decision:     buyDecision(),
			bars:         []contracts.PriceBar{bar(2, 115, 90, 100)},
			outcome:      contracts.OutcomeStopLossHit,
			realized:     -5,
			move:         -5,
			pnl:          0,
			barsObserved: 1,
		},
		{
			name:         "buy still open",
			decision:     buyDecision(),
			bars:         []contracts.PriceBar{bar(2, 104, 97, 103)},
			outcome:      contracts.OutcomeOpen,
			realized:     3,
			move:         3,
			pnl:          3,
			barsObserved: 1,
		},
		{
			name:         "sell target",
			decision:     sell,
			bars:         []contracts.PriceBar{bar(2, 101, 95, 96), bar(3, 97, 89, 91)},
			outcome:      contracts.OutcomeTargetHit,
			realized:     10,
			move:         -10,
			pnl:          9,
			barsObserved: 2,
		},
		{
			name:         "sell stop",
			decision:     sell,
			bars:         []contracts.PriceBar{bar(2, 106, 99, 104)},
			outcome:      contracts.OutcomeStopLossHit,
			realized:     -5,
			move:         5,
			pnl:          -4,
			barsObserved: 1,
		},
		{
			name:         "hold marks to market",
			decision:     hold,
			bars:         []contracts.PriceBar{bar(2, 110, 90, 102)},
			outcome:      contracts.OutcomeHold,
			realized:     2,
			move:         2,
			pnl:          2,
			barsObserved: 1,
		},
		{
			name:         "no bars after the decision",
			decision:     buyDecision(),
			bars:         []contracts.PriceBar{bar(1, 130, 80, 104)},
			outcome:      contracts.OutcomeOpen,
			realized:     4,
			move:         4,
			pnl:          4,
			barsObserved: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := Walk(tt.decision, tt.bars)
			assert.Equal(t, tt.outcome, ev.Outcome)
			assert.InDelta(t, tt.realized, ev.RealizedPnLPct, 1e-9)
			assert.InDelta(t, tt.move, ev.RealizedMovePct, 1e-9)
			assert.InDelta(t, tt.pnl, ev.PnLPct, 1e-9)
			assert.Equal(t, tt.barsObserved, ev.BarsObserved)
		})
	}
}

func TestWalk_HighLowSince(t *testing.T) {
	ev := Walk(buyDecision(), []contracts.PriceBar{
		bar(2, 105, 98, 103),
		bar(3, 107, 97, 104),
	})
	assert.Equal(t, 107.0, ev.HighSince)
	assert.Equal(t, 97.0, ev.LowSince)
	assert.Equal(t, 104.0, ev.CurrentPrice)
}

func TestWalk_Empty(t *testing.T) {
	ev := Walk(buyDecision(), nil)
	assert.Equal(t, contracts.OutcomeOpen, ev.Outcome)
	assert.Equal(t, 100.0, ev.CurrentPrice)
}

func TestEvaluator_Evaluate(t *testing.T) {
	md := marketdata.NewMemory()
	md.SetBars("RELIANCE.NS", []contracts.PriceBar{bar(2, 105, 98, 103), bar(3, 111, 99, 108)})
	md.SetIndicators(contracts.GlobalIndicators{
		contracts.IndicatorBenchmark:  {Current: 24000, MonthChangePct: 4.2},
		contracts.IndicatorVolatility: {Current: 14.5},
	})

	e := NewEvaluator(md, logger.Nop())
	fixed := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return fixed }

	out, err := e.Evaluate(context.Background(), buyDecision())
	require.NoError(t, err)

	assert.Equal(t, contracts.OutcomeTargetHit, out.Outcome)
	assert.InDelta(t, 10.0, out.RealizedPnLPct, 1e-9)
	assert.Equal(t, fixed, out.EvaluatedAt)
	require.NotNil(t, out.BenchmarkChangePct)
	require.NotNil(t, out.VolatilityIndex)
	assert.Equal(t, 4.2, *out.BenchmarkChangePct)
	assert.Equal(t, 14.5, *out.VolatilityIndex)
}

func TestEvaluator_EvaluateWithoutIndicators(t *testing.T) {
	md := marketdata.NewMemory()
	md.SetBars("RELIANCE.NS", []contracts.PriceBar{bar(2, 105, 98, 103)})

	out, err := NewEvaluator(md, logger.Nop()).Evaluate(context.Background(), buyDecision())
	require.NoError(t, err)
	assert.Nil(t, out.BenchmarkChangePct)
	assert.Nil(t, out.VolatilityIndex)
}

func TestEvaluator_DataUnavailable(t *testing.T) {
	md := marketdata.NewMemory()
	e := NewEvaluator(md, logger.Nop())

	_, err := e.Evaluate(context.Background(), buyDecision())
	require.Error(t, err)
	assert.True(t, errors.Is(err, contracts.ErrEvaluation))
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))

	md.Fail("RELIANCE.NS", errors.New("timeout"))
	_, err = e.Evaluate(context.Background(), buyDecision())
	assert.True(t, errors.Is(err, contracts.ErrEvaluation))
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))

	bad := buyDecision()
	bad.Price = 0
	_, err = e.Evaluate(context.Background(), bad)
	assert.True(t, errors.Is(err, contracts.ErrEvaluation))
}
