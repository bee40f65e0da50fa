package decision

import (
	"math"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/factors"
)

// Classification thresholds on the composite score
const (
	StrongBuyThreshold = 72.0
	BuyThreshold       = 60.0
	HoldThreshold      = 42.0
	SellThreshold      = 30.0
)

// Time horizons
const (
	Horizon2to4Weeks = "2-4 weeks"
	Horizon1to3Weeks = "1-3 weeks"
	Horizon3to7Days  = "3-7 days"
	Horizon1to2Weeks = "1-2 weeks"
)

// DefaultRiskRating is used when beta is unknown
const DefaultRiskRating = 5

// FallbackATRPct stands in for ATR (as % of price) when the history is too
// short to compute one
const FallbackATRPct = 2.0

// ComputeComposite returns the weighted sum of factor scores. A factor with
// no score contributes neutral 50. Invalid weights fall back to the defaults.
func ComputeComposite(scores map[string]float64, weights contracts.WeightSet) float64 {
	if weights.Validate() != nil {
		weights = contracts.DefaultWeights()
	}

	composite := 0.0
	for _, name := range weights.Factors() {
		v, ok := scores[name]
		if !ok {
			v = factors.Neutral
		}
		composite += v * weights[name]
	}
	return composite
}

// Classify maps a composite score to an action and a confidence in [30, 95]
func Classify(composite float64) (contracts.Action, int) {
	var (
		action     contracts.Action
		confidence int
	)

	switch {
	case composite >= StrongBuyThreshold:
		action = contracts.ActionStrongBuy
		confidence = min(contracts.MaxConfidence, int(composite+10))
	case composite >= BuyThreshold:
		action = contracts.ActionBuy
		confidence = int(composite + 5)
	case composite >= HoldThreshold:
		action = contracts.ActionHold
		confidence = int(50 + math.Abs(composite-50))
	case composite >= SellThreshold:
		action = contracts.ActionSell
		confidence = int(100 - composite + 5)
	default:
		action = contracts.ActionStrongSell
		confidence = min(contracts.MaxConfidence, int(100-composite+10))
	}

	confidence = max(contracts.MinConfidence, min(contracts.MaxConfidence, confidence))
	return action, confidence
}

// Targets is the risk envelope around the entry price
type Targets struct {
	TargetPrice     float64 `json:"target_price"`
	StopLoss        float64 `json:"stop_loss"`
	RiskRewardRatio float64 `json:"risk_reward_ratio"`
}

func levelOr(level *float64, fallback float64) float64 {
	if level != nil {
		return *level
	}
	return fallback
}

// ComputeTargetStop derives target, stop and reward/risk from ATR bands,
// capped by the pivot levels (percentage bands when a level is missing).
// A non-positive atr is replaced by FallbackATRPct of price.
func ComputeTargetStop(price, atr float64, action contracts.Action, sr factors.SupportResistance) Targets {
	var stop, target, risk, reward float64

	if atr <= 0 {
		atr = price * FallbackATRPct / 100
	}

	switch {
	case action.IsBuy():
		stop = math.Max(price-2.5*atr, levelOr(sr.Support1, price*0.95))
		target = math.Min(price+4*atr, levelOr(sr.Resistance2, price*1.15))
		risk = price - stop
		reward = target - price
	case action.IsSell():
		stop = math.Min(price+2.5*atr, levelOr(sr.Resistance1, price*1.05))
		target = math.Max(price-4*atr, levelOr(sr.Support2, price*0.85))
		risk = stop - price
		reward = price - target
	default:
		stop = price - 2*atr
		target = price + 2*atr
		risk = 2 * atr
		reward = 2 * atr
	}

	t := Targets{
		TargetPrice: round2(target),
		StopLoss:    round2(stop),
	}
	if risk > 0 {
		t.RiskRewardRatio = round2(reward / risk)
	}
	return t
}

// DetermineTimeHorizon picks a holding period from trend strength and volatility
func DetermineTimeHorizon(adx, atrPct float64) string {
	switch {
	case adx > 30 && atrPct < 2:
		return Horizon2to4Weeks
	case adx > 25:
		return Horizon1to3Weeks
	case atrPct > 3:
		return Horizon3to7Days
	default:
		return Horizon1to2Weeks
	}
}

// RiskRating scores risk 1 (low) to 10 (high). beta may be nil.
func RiskRating(beta *float64, atrPct float64) int {
	if beta == nil {
		return DefaultRiskRating
	}
	return max(1, min(10, int(*beta*4+atrPct)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
