package factors

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/tradeloop/internal/contracts"
)

// MinMomentumBars is the history needed for a momentum read
const MinMomentumBars = 30

// RelativeStrengthPeriod is the comparison window against the benchmark (~3 months)
const RelativeStrengthPeriod = 66

// Mean-reversion signals
const (
	StronglyOversold   = "strongly_oversold"
	Oversold           = "oversold"
	StronglyOverbought = "strongly_overbought"
	Overbought         = "overbought"
)

var returnPeriods = []struct {
	label string
	bars  int
}{
	{"1d", 1}, {"5d", 5}, {"1m", 22}, {"3m", 66}, {"6m", 132}, {"1y", 252},
}

// MeanReversion is the deviation of price from its 50-bar average
type MeanReversion struct {
	DeviationPct float64  `json:"deviation_pct"`
	MA           *float64 `json:"ma_value,omitempty"`
	Signal       string   `json:"signal"`
}

// MomentumResult is the momentum factor plus its inputs
type MomentumResult struct {
	contracts.FactorScore
	Returns          map[string]float64 `json:"returns"`
	RelativeStrength *float64           `json:"relative_strength,omitempty"` // pct points vs benchmark
	ROC14            float64            `json:"rate_of_change_14d"`
	MeanReversion    MeanReversion      `json:"mean_reversion"`
	VolatilityPct    *float64           `json:"annualized_volatility_pct,omitempty"`
	BenchmarkCorr    *float64           `json:"benchmark_correlation,omitempty"`
}

// Momentum scores multi-horizon returns, relative strength against the
// benchmark, 14-bar rate of change and mean reversion. benchmark may be nil.
func Momentum(bars, benchmark []contracts.PriceBar) MomentumResult {
	res := MomentumResult{
		FactorScore:   score(contracts.FactorMomentum, Neutral),
		Returns:       map[string]float64{},
		MeanReversion: MeanReversion{Signal: "neutral"},
	}
	if len(bars) < MinMomentumBars {
		res.Signal = "insufficient_data"
		return res
	}

	closes := contracts.Closes(bars)
	res.Returns = Returns(closes)
	s := Neutral

	switch r1m := res.Returns["1m"]; {
	case r1m > 10:
		s += 10
	case r1m > 5:
		s += 5
	case r1m < -10:
		s -= 8
	case r1m < -5:
		s -= 4
	}

	switch r3m := res.Returns["3m"]; {
	case r3m > 20:
		s += 12
	case r3m > 10:
		s += 6
	case r3m < -15:
		s -= 10
	case r3m < -8:
		s -= 5
	}

	if len(benchmark) > RelativeStrengthPeriod {
		benchCloses := contracts.Closes(benchmark)
		if rs, ok := RelativeStrength(closes, benchCloses, RelativeStrengthPeriod); ok {
			res.RelativeStrength = &rs
			switch {
			case rs > 10:
				s += 10
			case rs > 5:
				s += 5
			case rs < -10:
				s -= 8
			case rs < -5:
				s -= 4
			}
		}
		if corr, ok := returnCorrelation(closes, benchCloses, 60); ok {
			res.BenchmarkCorr = &corr
		}
	}

	res.ROC14 = round(last(talib.Roc(closes, 14), 14, 0), 2)
	switch {
	case res.ROC14 > 8:
		s += 5
	case res.ROC14 < -8:
		s -= 5
	}

	res.MeanReversion = meanReversion(closes, 50)
	switch res.MeanReversion.Signal {
	case StronglyOversold:
		s += 10
	case Oversold:
		s += 5
	case StronglyOverbought:
		s -= 8
	case Overbought:
		s -= 4
	}

	if vol, ok := AnnualizedVolatility(closes); ok {
		res.VolatilityPct = &vol
	}

	res.FactorScore = score(contracts.FactorMomentum, s)
	return res
}

// Returns computes percent returns over the standard horizons that fit
func Returns(closes []float64) map[string]float64 {
	out := make(map[string]float64)
	n := len(closes)
	if n == 0 {
		return out
	}
	current := closes[n-1]
	for _, p := range returnPeriods {
		if n > p.bars {
			prev := closes[n-1-p.bars]
			if prev != 0 {
				out[p.label] = round((current-prev)/prev*100, 2)
			}
		}
	}
	return out
}

// RelativeStrength returns the stock's return minus the benchmark's over
// period bars, in percentage points. ok is false when either series is short.
func RelativeStrength(stock, bench []float64, period int) (float64, bool) {
	if len(stock) < period || len(bench) < period {
		return 0, false
	}
	s0 := stock[len(stock)-period]
	b0 := bench[len(bench)-period]
	if s0 == 0 || b0 == 0 {
		return 0, false
	}
	stockRet := stock[len(stock)-1]/s0 - 1
	benchRet := bench[len(bench)-1]/b0 - 1
	if benchRet == 0 {
		return 0, true
	}
	return round((stockRet-benchRet)*100, 2), true
}

func meanReversion(closes []float64, period int) MeanReversion {
	mr := MeanReversion{Signal: "neutral"}
	if len(closes) < period {
		return mr
	}

	ma := stat.Mean(closes[len(closes)-period:], nil)
	if ma == 0 {
		return mr
	}
	dev := (closes[len(closes)-1] - ma) / ma * 100

	switch {
	case dev < -15:
		mr.Signal = StronglyOversold
	case dev < -8:
		mr.Signal = Oversold
	case dev > 15:
		mr.Signal = StronglyOverbought
	case dev > 8:
		mr.Signal = Overbought
	}
	mr.DeviationPct = round(dev, 2)
	mr.MA = contracts.Float64(round(ma, 2))
	return mr
}

func logReturns(closes []float64) []float64 {
	if len(closes) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		out = append(out, math.Log(closes[i]/closes[i-1]))
	}
	return out
}

// AnnualizedVolatility is the sample standard deviation of daily log returns
// scaled by √252, in percent
func AnnualizedVolatility(closes []float64) (float64, bool) {
	rets := logReturns(closes)
	if len(rets) < 2 {
		return 0, false
	}
	return round(stat.StdDev(rets, nil)*math.Sqrt(252)*100, 2), true
}

func returnCorrelation(stock, bench []float64, window int) (float64, bool) {
	if len(stock) <= window || len(bench) <= window {
		return 0, false
	}
	a := pctChanges(stock[len(stock)-window-1:])
	b := pctChanges(bench[len(bench)-window-1:])
	if stat.StdDev(a, nil) == 0 || stat.StdDev(b, nil) == 0 {
		return 0, false
	}
	return round(stat.Correlation(a, b, nil), 3), true
}

func pctChanges(closes []float64) []float64 {
	out := make([]float64, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] != 0 {
			out[i-1] = closes[i]/closes[i-1] - 1
		}
	}
	return out
}
