package contracts

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Action is the recommendation attached to a Decision
type Action string

const (
	ActionStrongBuy  Action = "STRONG_BUY"
	ActionBuy        Action = "BUY"
	ActionHold       Action = "HOLD"
	ActionSell       Action = "SELL"
	ActionStrongSell Action = "STRONG_SELL"
)

// AllActions lists every action from most bullish to most bearish
func AllActions() []Action {
	return []Action{ActionStrongBuy, ActionBuy, ActionHold, ActionSell, ActionStrongSell}
}

// IsValid reports whether a is a known action
func (a Action) IsValid() bool {
	switch a {
	case ActionStrongBuy, ActionBuy, ActionHold, ActionSell, ActionStrongSell:
		return true
	}
	return false
}

// IsBuy reports buy-class actions
func (a Action) IsBuy() bool {
	return a == ActionStrongBuy || a == ActionBuy
}

// IsSell reports sell-class actions
func (a Action) IsSell() bool {
	return a == ActionStrongSell || a == ActionSell
}

// IsActionable reports anything other than HOLD
func (a Action) IsActionable() bool {
	return a.IsBuy() || a.IsSell()
}

// Confidence bounds
const (
	MinConfidence = 30
	MaxConfidence = 95
)

// FactorScore is one factor scorer's output
type FactorScore struct {
	Name   string                 `json:"name"`
	Value  float64                `json:"value"` // 0 ~ 100
	Signal string                 `json:"signal,omitempty"`
	Detail map[string]interface{} `json:"detail,omitempty"`
}

// OutcomeKind classifies how a decision played out
type OutcomeKind string

const (
	OutcomeTargetHit   OutcomeKind = "TARGET_HIT"
	OutcomeStopLossHit OutcomeKind = "STOPLOSS_HIT"
	OutcomeOpen        OutcomeKind = "OPEN"
	OutcomeHold        OutcomeKind = "HOLD"
)

// Evaluation is attached to a Decision after the outcome evaluator runs.
// It never replaces the decision's core fields.
type Evaluation struct {
	CurrentPrice   float64     `json:"current_price"`
	HighSince      float64     `json:"high_since"`
	LowSince       float64     `json:"low_since"`
	PnLPct         float64     `json:"pnl_pct"`          // mark-to-market, side-aware
	RealizedPnLPct float64     `json:"realized_pnl_pct"` // target/stop if hit, side-aware
	Outcome        OutcomeKind `json:"outcome"`
	BarsObserved   int         `json:"bars_observed"`
	EvaluatedAt    time.Time   `json:"evaluated_at"`

	// RealizedMovePct is the instrument's own price change to the exit point
	// (positive = price rose). Learning rules read this, not the side-aware pnl.
	RealizedMovePct float64 `json:"realized_move_pct"`
}

// Outcome is the evaluator's output: the evaluation plus the auxiliary market
// signals the learning engine uses for regime detection
type Outcome struct {
	Evaluation
	BenchmarkChangePct *float64 `json:"benchmark_change_pct,omitempty"`
	VolatilityIndex    *float64 `json:"volatility_index,omitempty"`
}

// Decision is one persisted recommendation
// ⭐ SSOT: 의사결정 레코드 스키마
type Decision struct {
	ID              string             `json:"id"`
	Ticker          string             `json:"ticker"`
	Name            string             `json:"name"`
	Sector          string             `json:"sector"`
	Timestamp       time.Time          `json:"timestamp"`
	Action          Action             `json:"action"`
	Confidence      int                `json:"confidence"`
	CompositeScore  float64            `json:"composite_score"`
	Price           float64            `json:"price"`
	TargetPrice     float64            `json:"target_price"`
	StopLoss        float64            `json:"stop_loss"`
	RiskRewardRatio float64            `json:"risk_reward_ratio"`
	TimeHorizon     string             `json:"time_horizon"`
	RiskRating      int                `json:"risk_rating"`
	Scores          map[string]float64 `json:"scores"`
	Weights         WeightSet          `json:"weights,omitempty"`
	Reasoning       []string           `json:"reasoning"`
	Evaluation      *Evaluation        `json:"evaluation,omitempty"`
}

// Validate runs at the persistence boundary
func (d *Decision) Validate() error {
	var problems []string

	if strings.TrimSpace(d.Ticker) == "" {
		problems = append(problems, "ticker is empty")
	}
	if d.Timestamp.IsZero() {
		problems = append(problems, "timestamp is zero")
	}
	if !d.Action.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown action %q", d.Action))
	}
	if d.Confidence < MinConfidence || d.Confidence > MaxConfidence {
		problems = append(problems, fmt.Sprintf("confidence %d outside [%d,%d]", d.Confidence, MinConfidence, MaxConfidence))
	}
	if d.Price <= 0 || math.IsNaN(d.Price) {
		problems = append(problems, "price must be positive")
	}
	if d.RiskRating < 1 || d.RiskRating > 10 {
		problems = append(problems, fmt.Sprintf("risk rating %d outside [1,10]", d.RiskRating))
	}
	for name, v := range d.Scores {
		if v < 0 || v > 100 || math.IsNaN(v) {
			problems = append(problems, fmt.Sprintf("score %s=%.2f outside [0,100]", name, v))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: decision %s: %s", ErrInvalid, d.Ticker, strings.Join(problems, "; "))
	}
	return nil
}

// WithEvaluation returns a copy carrying ev. Core fields are untouched.
func (d Decision) WithEvaluation(ev Evaluation) Decision {
	d.Evaluation = &ev
	return d
}
