// Package decision turns factor scores into a persisted recommendation:
// weighted composite, action and confidence, target/stop envelope,
// horizon, risk rating and reasoning.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/factors"
	"github.com/wonny/tradeloop/pkg/logger"
)

// HistoryDays is the price lookback fetched per analysis
const HistoryDays = 365

// WeightSource supplies the factor weights for the next composite.
// The learning engine implements it.
type WeightSource interface {
	AdaptedWeights(ctx context.Context) contracts.WeightSet
}

// Engine runs the per-instrument analysis pipeline
// ⭐ SSOT: 종합 점수 → 액션 변환은 여기서만
type Engine struct {
	md              contracts.MarketData
	weights         WeightSource
	benchmarkSymbol string
	logger          *logger.Logger
	now             func() time.Time
}

// NewEngine creates a decision engine. weights may be nil (static defaults).
func NewEngine(md contracts.MarketData, weights WeightSource, benchmarkSymbol string, log *logger.Logger) *Engine {
	return &Engine{
		md:              md,
		weights:         weights,
		benchmarkSymbol: benchmarkSymbol,
		logger:          log.WithComponent("decision"),
		now:             time.Now,
	}
}

// Prefetch loads the benchmark series and global indicators once so a scan
// can share them across instruments. Failures leave the fields empty.
func (e *Engine) Prefetch(ctx context.Context) *contracts.SharedData {
	shared := &contracts.SharedData{Indicators: contracts.GlobalIndicators{}}

	bench, err := e.md.PriceHistory(ctx, e.benchmarkSymbol, HistoryDays)
	if err != nil {
		e.logger.WithError(err).WithField("symbol", e.benchmarkSymbol).Warn("Benchmark prefetch failed")
	} else {
		shared.Benchmark = bench
	}

	ind, err := e.md.GlobalIndicators(ctx)
	if err != nil {
		e.logger.WithError(err).Warn("Global indicator prefetch failed")
	} else if ind != nil {
		shared.Indicators = ind
	}

	return shared
}

func (e *Engine) currentWeights(ctx context.Context) contracts.WeightSet {
	if e.weights == nil {
		return contracts.DefaultWeights()
	}
	w := e.weights.AdaptedWeights(ctx)
	if w.Validate() != nil {
		return contracts.DefaultWeights()
	}
	return w
}

// DisplayName strips the exchange suffix from a ticker
func DisplayName(ticker string) string {
	for _, suffix := range []string{".NS", ".BO"} {
		if strings.HasSuffix(ticker, suffix) {
			return strings.TrimSuffix(ticker, suffix)
		}
	}
	return ticker
}

// Analyze scores one instrument and builds its Decision. shared may be nil,
// in which case the benchmark and indicators are fetched here. When no price
// series is available it returns ErrDataUnavailable and no Decision.
func (e *Engine) Analyze(ctx context.Context, ticker string, shared *contracts.SharedData) (*contracts.Decision, *Analysis, error) {
	bars, err := e.md.PriceHistory(ctx, ticker, HistoryDays)
	if err != nil {
		if errors.Is(err, contracts.ErrDataUnavailable) {
			return nil, nil, fmt.Errorf("analyze %s: %w", ticker, err)
		}
		return nil, nil, fmt.Errorf("analyze %s: %w: %v", ticker, contracts.ErrDataUnavailable, err)
	}
	if len(bars) == 0 {
		return nil, nil, fmt.Errorf("analyze %s: %w: empty price series", ticker, contracts.ErrDataUnavailable)
	}

	info, err := e.md.Info(ctx, ticker)
	if err != nil || info == nil {
		if err != nil {
			e.logger.WithError(err).WithField("ticker", ticker).Debug("Instrument info unavailable")
		}
		info = &contracts.InstrumentInfo{Symbol: ticker}
	}
	if info.Name == "" {
		info.Name = DisplayName(ticker)
	}
	if info.Sector == "" {
		info.Sector = contracts.UnknownSector
	}

	if shared == nil {
		shared = e.Prefetch(ctx)
	}

	tech := factors.Technical(bars)
	a := &Analysis{
		Technical:      tech,
		Fundamental:    factors.Fundamental(info),
		Momentum:       factors.Momentum(bars, shared.Benchmark),
		Macro:          factors.Macro(shared.Indicators, info.Sector),
		VolumeDelivery: factors.VolumeDelivery(tech.Volume),
	}

	scores := map[string]float64{
		contracts.FactorTechnical:      a.Technical.Value,
		contracts.FactorFundamental:    a.Fundamental.Value,
		contracts.FactorMomentum:       a.Momentum.Value,
		contracts.FactorMacro:          a.Macro.Value,
		contracts.FactorVolumeDelivery: a.VolumeDelivery.Value,
	}

	weights := e.currentWeights(ctx)
	composite := ComputeComposite(scores, weights)
	action, confidence := Classify(composite)
	targets := ComputeTargetStop(tech.Price, tech.ATR, action, tech.Levels)

	d := &contracts.Decision{
		ID:              uuid.NewString(),
		Ticker:          ticker,
		Name:            info.Name,
		Sector:          info.Sector,
		Timestamp:       e.now().UTC(),
		Action:          action,
		Confidence:      confidence,
		CompositeScore:  round1(composite),
		Price:           tech.Price,
		TargetPrice:     targets.TargetPrice,
		StopLoss:        targets.StopLoss,
		RiskRewardRatio: targets.RiskRewardRatio,
		TimeHorizon:     DetermineTimeHorizon(tech.ADX, tech.ATRPct),
		RiskRating:      RiskRating(info.Beta, tech.ATRPct),
		Scores:          scores,
		Weights:         weights,
		Reasoning:       GenerateReasoning(a),
	}
	if tech.ATR <= 0 {
		d.Reasoning = append(d.Reasoning, fmt.Sprintf("Volatility unavailable from short history; price levels assume %.0f%% ATR", FallbackATRPct))
	}

	e.logger.WithFields(map[string]interface{}{
		"ticker":     ticker,
		"action":     d.Action,
		"composite":  d.CompositeScore,
		"confidence": d.Confidence,
	}).Debug("Analysis complete")

	return d, a, nil
}
