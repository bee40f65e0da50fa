package learning

import (
	"fmt"
	"math"
	"time"
	"unicode"

	"github.com/wonny/tradeloop/internal/contracts"
)

// Adaptation parameters
const (
	AdaptEvery        = 10   // 평가 N건마다 가중치 조정
	LearningRate      = 0.15 // higher = faster but noisier
	AccuracyMinSample = 3
	AccuracyPrior     = 0.5
	LessonThreshold   = 5.0 // relative weight change (%) worth a lesson
)

// Outcome thresholds (percent)
const (
	HighVolatilityVIX = 22.0
	TrendingChangePct = 3.0
	RangeBoundMaxPct  = 1.0
	HoldTolerancePct  = 3.0
	NeutralMovePct    = 5.0
)

// WasDecisionCorrect judges an action against the instrument's realized move.
// Buy-class wants a rise, sell-class a fall, HOLD a move inside ±3%.
func WasDecisionCorrect(action contracts.Action, movePct float64) bool {
	switch {
	case action.IsBuy():
		return movePct > 0
	case action.IsSell():
		return movePct < 0
	default:
		return math.Abs(movePct) < HoldTolerancePct
	}
}

// FactorAligned reports whether a factor score pointed the way price went.
// Scores in [40,60] count as aligned when the move stayed within ±5%.
func FactorAligned(score, movePct float64) bool {
	switch {
	case score > 60 && movePct > 0:
		return true
	case score < 40 && movePct < 0:
		return true
	case score >= 40 && score <= 60 && math.Abs(movePct) < NeutralMovePct:
		return true
	}
	return false
}

// ShouldAdapt reports whether the n-th evaluation triggers a weight update
func ShouldAdapt(totalEvaluated int) bool {
	return totalEvaluated >= AdaptEvery && totalEvaluated%AdaptEvery == 0
}

// DetectRegime classifies the market from the benchmark's monthly change and
// the volatility index. ok is false unless both are known.
func DetectRegime(benchmarkChangePct, vix *float64) (regime string, ok bool) {
	if benchmarkChangePct == nil || vix == nil {
		return "", false
	}
	change := math.Abs(*benchmarkChangePct)
	switch {
	case *vix > HighVolatilityVIX:
		return contracts.RegimeHighVolatility, true
	case change > TrendingChangePct:
		return contracts.RegimeTrending, true
	case change < RangeBoundMaxPct:
		return contracts.RegimeRangeBound, true
	default:
		return contracts.RegimeNormal, true
	}
}

// adaptWeights moves st.CurrentWeights toward an accuracy-proportional target
// anchored on the defaults, records the adaptation and returns lessons for
// every factor whose weight moved more than LessonThreshold percent.
func adaptWeights(st *contracts.LearningState, now time.Time) []string {
	current := st.CurrentWeights.Clone()
	if current.Validate() != nil {
		current = contracts.DefaultWeights()
	}
	factors := current.Factors()
	defaults := contracts.DefaultWeights()

	accuracies := make(map[string]float64, len(factors))
	totalAcc := 0.0
	for _, f := range factors {
		acc := AccuracyPrior
		if fa := st.FactorAccuracy[f]; fa != nil && fa.Total >= AccuracyMinSample {
			acc = fa.Accuracy
		}
		accuracies[f] = acc
		totalAcc += acc
	}

	next := make(contracts.WeightSet, len(factors))
	for _, f := range factors {
		// 정확도 합이 0이면 균등 목표로 대체
		target := 1.0 / float64(len(factors))
		if totalAcc > 0 {
			target = accuracies[f] / totalAcc
		}
		anchor, ok := defaults[f]
		if !ok {
			anchor = current[f]
		}
		blended := 0.5*target + 0.5*anchor
		next[f] = math.Max(contracts.MinWeight, current[f]+LearningRate*(blended-current[f]))
	}
	next = roundWeights(applyFloor(next))

	var lessons []string
	for _, f := range factors {
		old, nw := current[f], next[f]
		if old <= 0 {
			continue
		}
		change := (nw - old) / old * 100
		if math.Abs(change) <= LessonThreshold {
			continue
		}
		direction := "decreased"
		if change > 0 {
			direction = "increased"
		}
		lessons = append(lessons, fmt.Sprintf("%s weight %s to %.1f%% (accuracy: %.0f%%, was %.1f%%)",
			titleCase(f), direction, nw*100, accuracies[f]*100, old*100))
	}

	st.CurrentWeights = next
	st.AdaptationLog = append(st.AdaptationLog, contracts.AdaptationEntry{
		Timestamp:  now,
		OldWeights: current,
		NewWeights: next.Clone(),
		Accuracies: accuracies,
	})
	return lessons
}

// applyFloor normalizes w and pins every weight that would fall under
// MinWeight, rescaling the rest until no weight is below the floor
func applyFloor(w contracts.WeightSet) contracts.WeightSet {
	out := w.Normalize()
	pinned := make(map[string]bool, len(out))

	for range out {
		var below bool
		for k, v := range out {
			if !pinned[k] && v < contracts.MinWeight {
				pinned[k] = true
				below = true
			}
		}
		if !below {
			break
		}

		free, rest := 1.0, 0.0
		for k, v := range out {
			if pinned[k] {
				out[k] = contracts.MinWeight
				free -= contracts.MinWeight
			} else {
				rest += v
			}
		}
		if rest <= 0 {
			break
		}
		for k, v := range out {
			if !pinned[k] {
				out[k] = v * free / rest
			}
		}
	}
	return out
}

// roundWeights rounds to 4 decimals and gives the rounding residual to the
// largest weight so the set still sums to 1
func roundWeights(w contracts.WeightSet) contracts.WeightSet {
	out := make(contracts.WeightSet, len(w))
	sum := 0.0
	largest := ""
	for _, k := range w.Factors() {
		out[k] = math.Round(w[k]*1e4) / 1e4
		sum += out[k]
		if largest == "" || out[k] > out[largest] {
			largest = k
		}
	}
	if largest != "" {
		out[largest] += 1 - sum
	}
	return out
}

// titleCase upper-cases the first letter of every alphabetic run:
// "volume_delivery" → "Volume_Delivery"
func titleCase(s string) string {
	runes := []rune(s)
	prevLetter := false
	for i, r := range runes {
		if unicode.IsLetter(r) {
			if !prevLetter {
				runes[i] = unicode.ToUpper(r)
			} else {
				runes[i] = unicode.ToLower(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
	}
	return string(runes)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
