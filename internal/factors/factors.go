// Package factors maps raw instrument data to 0-100 sub-scores.
// Every scorer is a pure function; 50 is neutral.
package factors

import (
	"math"

	"github.com/wonny/tradeloop/internal/contracts"
)

// Neutral is the score used when a factor cannot be computed
const Neutral = 50.0

// SignalFor labels a factor score
func SignalFor(score float64) string {
	switch {
	case score >= 75:
		return "STRONG_BUY"
	case score >= 60:
		return "BUY"
	case score >= 40:
		return "HOLD"
	case score >= 25:
		return "SELL"
	default:
		return "STRONG_SELL"
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// round rounds half away from zero to dp decimal places
func round(v float64, dp int) float64 {
	p := math.Pow(10, float64(dp))
	return math.Round(v*p) / p
}

// last returns the final element of a talib output, or fallback when the
// series is too short for the indicator's lookback (talib zero-pads it)
func last(series []float64, lookback int, fallback float64) float64 {
	if len(series) == 0 || len(series) <= lookback {
		return fallback
	}
	v := series[len(series)-1]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

func score(name string, value float64) contracts.FactorScore {
	value = round(clamp(value, 0, 100), 1)
	return contracts.FactorScore{
		Name:   name,
		Value:  value,
		Signal: SignalFor(value),
	}
}

func splitOHLCV(bars []contracts.PriceBar) (open, high, low, close, volume []float64) {
	n := len(bars)
	open = make([]float64, n)
	high = make([]float64, n)
	low = make([]float64, n)
	close = make([]float64, n)
	volume = make([]float64, n)
	for i, b := range bars {
		open[i] = b.Open
		high[i] = b.High
		low[i] = b.Low
		close[i] = b.Close
		volume[i] = b.Volume
	}
	return
}
