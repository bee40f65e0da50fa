package factors

import (
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/tradeloop/internal/contracts"
)

// MinTechnicalBars is the history needed for a full technical read
const MinTechnicalBars = 50

// Volume signals
const (
	VolumeStrongAccumulation = "strong_accumulation"
	VolumeAccumulation       = "accumulation"
	VolumeNeutral            = "neutral"
	VolumeDistribution       = "distribution"
	VolumeStrongDistribution = "strong_distribution"
)

// Trend directions
const (
	Bullish = "bullish"
	Bearish = "bearish"
)

// Moving-average crosses
const (
	CrossGolden = "golden_cross"
	CrossDeath  = "death_cross"
	CrossNone   = "none"
)

// SupportResistance holds pivot levels over the last 20 bars.
// Nil levels fall back to percentage bands in the decision engine.
type SupportResistance struct {
	Pivot       *float64 `json:"pivot,omitempty"`
	Resistance1 *float64 `json:"resistance_1,omitempty"`
	Resistance2 *float64 `json:"resistance_2,omitempty"`
	Support1    *float64 `json:"support_1,omitempty"`
	Support2    *float64 `json:"support_2,omitempty"`
	High52w     *float64 `json:"high_52w,omitempty"`
	Low52w      *float64 `json:"low_52w,omitempty"`
}

// Trend is the multi-timeframe moving-average read
type Trend struct {
	ShortTerm  string   `json:"short_term,omitempty"`
	MediumTerm string   `json:"medium_term,omitempty"`
	LongTerm   string   `json:"long_term,omitempty"`
	MA20       *float64 `json:"ma20,omitempty"`
	MA50       *float64 `json:"ma50,omitempty"`
	MA200      *float64 `json:"ma200,omitempty"`
	Cross      string   `json:"cross,omitempty"`
}

// BullishCount counts bullish timeframes (0-3)
func (t Trend) BullishCount() int {
	n := 0
	for _, dir := range []string{t.ShortTerm, t.MediumTerm, t.LongTerm} {
		if dir == Bullish {
			n++
		}
	}
	return n
}

// VolumeSignal classifies the last bar's volume against its 20-bar average
type VolumeSignal struct {
	Current float64 `json:"current_volume"`
	Average float64 `json:"avg_volume"`
	Ratio   float64 `json:"volume_ratio"`
	Trend   string  `json:"volume_trend"`
	Signal  string  `json:"signal"`
}

// MACD values at the last bar
type MACD struct {
	Line      float64 `json:"line"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

// Bollinger band values at the last bar
type Bollinger struct {
	Upper  float64 `json:"upper"`
	Middle float64 `json:"middle"`
	Lower  float64 `json:"lower"`
	PctB   float64 `json:"pct_b"`
}

// TechnicalResult is the technical factor plus the values the decision
// engine needs for targets, horizon and reasoning
type TechnicalResult struct {
	contracts.FactorScore
	Price     float64           `json:"price"`
	RSI       float64           `json:"rsi"`
	MACD      MACD              `json:"macd"`
	Bollinger Bollinger         `json:"bollinger"`
	ATR       float64           `json:"atr"`
	ATRPct    float64           `json:"atr_pct"`
	ADX       float64           `json:"adx"`
	Trend     Trend             `json:"trend"`
	Levels    SupportResistance `json:"support_resistance"`
	Volume    VolumeSignal      `json:"volume"`
}

// Technical scores RSI, MACD, Bollinger position, trend alignment, crosses,
// volume confirmation and ADX. Fewer than MinTechnicalBars bars yields a
// neutral score with default ADX (25) and ATR% (2).
func Technical(bars []contracts.PriceBar) TechnicalResult {
	res := TechnicalResult{
		FactorScore: score(contracts.FactorTechnical, Neutral),
		RSI:         50,
		ADX:         25,
		ATRPct:      2,
		Volume:      VolumeSignal{Signal: VolumeNeutral, Trend: "stable", Ratio: 1},
	}
	if len(bars) == 0 {
		res.Signal = "insufficient_data"
		return res
	}
	res.Price = round(bars[len(bars)-1].Close, 2)
	if len(bars) < MinTechnicalBars {
		res.Signal = "insufficient_data"
		return res
	}

	_, high, low, closes, _ := splitOHLCV(bars)
	price := closes[len(closes)-1]

	res.RSI = last(talib.Rsi(closes, 14), 14, 50)

	macdLine, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	res.MACD = MACD{
		Line:      last(macdLine, 33, 0),
		Signal:    last(macdSignal, 33, 0),
		Histogram: last(macdHist, 33, 0),
	}

	upper, middle, lower := talib.BBands(closes, 20, 2, 2, talib.SMA)
	res.Bollinger = Bollinger{
		Upper:  last(upper, 19, price),
		Middle: last(middle, 19, price),
		Lower:  last(lower, 19, price),
		PctB:   0.5,
	}
	if width := res.Bollinger.Upper - res.Bollinger.Lower; width > 0 {
		res.Bollinger.PctB = (price - res.Bollinger.Lower) / width
	}

	res.ATR = last(talib.Atr(high, low, closes, 14), 14, 0)
	if price > 0 {
		res.ATRPct = res.ATR / price * 100
	}
	res.ADX = last(talib.Adx(high, low, closes, 14), 27, 25)

	res.Trend = detectTrend(closes)
	res.Levels = supportResistance(bars)
	res.Volume = DetectVolumeSignal(bars)

	res.FactorScore = score(contracts.FactorTechnical, technicalScore(res))
	res.RSI = round(res.RSI, 2)
	res.ATR = round(res.ATR, 2)
	res.ATRPct = round(res.ATRPct, 2)
	res.ADX = round(res.ADX, 2)
	return res
}

func technicalScore(r TechnicalResult) float64 {
	s := Neutral

	switch {
	case r.RSI < 30:
		s += 15
	case r.RSI < 40:
		s += 8
	case r.RSI > 70:
		s -= 15
	case r.RSI > 60:
		s -= 5
	}

	if r.MACD.Line > r.MACD.Signal && r.MACD.Histogram > 0 {
		s += 10
		if r.MACD.Histogram > math.Abs(r.MACD.Line*0.1) {
			s += 5
		}
	} else if r.MACD.Line < r.MACD.Signal && r.MACD.Histogram < 0 {
		s -= 10
	}

	switch pct := r.Bollinger.PctB; {
	case pct < 0.1:
		s += 10
	case pct < 0.3:
		s += 5
	case pct > 0.9:
		s -= 10
	case pct > 0.7:
		s -= 5
	}

	bullish := r.Trend.BullishCount()
	s += (float64(bullish) - 1.5) * 8

	switch r.Trend.Cross {
	case CrossGolden:
		s += 10
	case CrossDeath:
		s -= 10
	}

	switch r.Volume.Signal {
	case VolumeStrongAccumulation:
		s += 8
	case VolumeAccumulation:
		s += 4
	case VolumeStrongDistribution:
		s -= 8
	case VolumeDistribution:
		s -= 4
	}

	// 강한 추세에서는 방향 증폭
	if r.ADX > 25 {
		if bullish >= 2 {
			s += 5
		} else {
			s -= 5
		}
	}

	return s
}

func detectTrend(closes []float64) Trend {
	var t Trend
	price := closes[len(closes)-1]
	n := len(closes)

	direction := func(ma float64) string {
		if price > ma {
			return Bullish
		}
		return Bearish
	}

	if n >= 20 {
		ma := talib.Sma(closes, 20)[n-1]
		t.ShortTerm = direction(ma)
		t.MA20 = contracts.Float64(round(ma, 2))
	}

	var ma50, ma200 []float64
	if n >= 50 {
		ma50 = talib.Sma(closes, 50)
		t.MediumTerm = direction(ma50[n-1])
		t.MA50 = contracts.Float64(round(ma50[n-1], 2))
	}
	if n >= 200 {
		ma200 = talib.Sma(closes, 200)
		t.LongTerm = direction(ma200[n-1])
		t.MA200 = contracts.Float64(round(ma200[n-1], 2))
	}

	if n >= 201 {
		t.Cross = CrossNone
		switch {
		case ma50[n-1] > ma200[n-1] && ma50[n-2] <= ma200[n-2]:
			t.Cross = CrossGolden
		case ma50[n-1] < ma200[n-1] && ma50[n-2] >= ma200[n-2]:
			t.Cross = CrossDeath
		}
	}

	return t
}

func supportResistance(bars []contracts.PriceBar) SupportResistance {
	_, high, low, closes, _ := splitOHLCV(bars)
	n := len(bars)

	window := 20
	if n < window {
		window = n
	}
	hi := floats.Max(high[n-window:])
	lo := floats.Min(low[n-window:])
	c := closes[n-1]

	pivot := (hi + lo + c) / 3

	yearWindow := 252
	if n < yearWindow {
		yearWindow = n
	}

	return SupportResistance{
		Pivot:       contracts.Float64(round(pivot, 2)),
		Resistance1: contracts.Float64(round(2*pivot-lo, 2)),
		Resistance2: contracts.Float64(round(pivot+(hi-lo), 2)),
		Support1:    contracts.Float64(round(2*pivot-hi, 2)),
		Support2:    contracts.Float64(round(pivot-(hi-lo), 2)),
		High52w:     contracts.Float64(round(floats.Max(high[n-yearWindow:]), 2)),
		Low52w:      contracts.Float64(round(floats.Min(low[n-yearWindow:]), 2)),
	}
}

// DetectVolumeSignal compares the last bar's volume with the 20-bar mean and
// reads the bar's direction: heavy volume on an up bar is accumulation
func DetectVolumeSignal(bars []contracts.PriceBar) VolumeSignal {
	sig := VolumeSignal{Signal: VolumeNeutral, Trend: "stable", Ratio: 1}
	n := len(bars)
	if n == 0 {
		return sig
	}

	open, _, _, closes, volume := splitOHLCV(bars)
	current := volume[n-1]

	avg := current
	if n >= 20 {
		avg = stat.Mean(volume[n-20:], nil)
	}
	if avg > 0 {
		sig.Ratio = current / avg
	}

	if n >= 10 {
		recent := stat.Mean(volume[n-5:], nil)
		prior := stat.Mean(volume[n-10:n-5], nil)
		switch {
		case recent > prior*1.1:
			sig.Trend = "increasing"
		case recent < prior*0.9:
			sig.Trend = "decreasing"
		}
	}

	change := closes[n-1] - open[n-1]
	switch {
	case sig.Ratio > 1.5 && change > 0:
		sig.Signal = VolumeStrongAccumulation
	case sig.Ratio > 1.5 && change < 0:
		sig.Signal = VolumeStrongDistribution
	case sig.Ratio > 1.2 && change > 0:
		sig.Signal = VolumeAccumulation
	case sig.Ratio > 1.2 && change < 0:
		sig.Signal = VolumeDistribution
	}

	sig.Current = current
	sig.Average = math.Round(avg)
	sig.Ratio = round(sig.Ratio, 2)
	return sig
}
