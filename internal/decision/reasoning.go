package decision

import (
	"fmt"
	"math"
	"strconv"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/factors"
)

// Analysis holds every factor scorer's output for one instrument
type Analysis struct {
	Technical      factors.TechnicalResult   `json:"technical"`
	Fundamental    factors.FundamentalResult `json:"fundamental"`
	Momentum       factors.MomentumResult    `json:"momentum"`
	Macro          factors.MacroResult       `json:"macro"`
	VolumeDelivery contracts.FactorScore     `json:"volume_delivery"`
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// GenerateReasoning turns sub-score thresholds into human-readable lines.
// Presentation only; nothing downstream parses them.
func GenerateReasoning(a *Analysis) []string {
	reasons := []string{}
	if a == nil {
		return reasons
	}

	tech := a.Technical
	rsi := num(tech.RSI)
	switch ts := tech.Value; {
	case ts >= 70:
		reasons = append(reasons, fmt.Sprintf("Strong technical setup with RSI at %s and positive MACD crossover", rsi))
	case ts >= 60:
		reasons = append(reasons, fmt.Sprintf("Favorable technical indicators with RSI at %s", rsi))
	case ts <= 30:
		reasons = append(reasons, fmt.Sprintf("Weak technical picture with RSI at %s signaling bearish momentum", rsi))
	case ts <= 40:
		reasons = append(reasons, fmt.Sprintf("Technical indicators showing caution with RSI at %s", rsi))
	}

	// 세 기간이 모두 계산된 경우에만 정렬 판단
	if tech.Trend.LongTerm != "" {
		switch tech.Trend.BullishCount() {
		case 3:
			reasons = append(reasons, "All timeframe trends aligned bullish (20/50/200 DMA)")
		case 0:
			reasons = append(reasons, "All timeframe trends bearish, trading below all major moving averages")
		}
	}

	switch tech.Volume.Signal {
	case factors.VolumeStrongAccumulation:
		reasons = append(reasons, fmt.Sprintf("Heavy accumulation detected: volume %sx average on up move", num(tech.Volume.Ratio)))
	case factors.VolumeStrongDistribution:
		reasons = append(reasons, "Distribution pattern with high volume selling pressure")
	}

	fund := a.Fundamental
	switch {
	case fund.Value >= 65:
		if fund.PE != nil {
			reasons = append(reasons, fmt.Sprintf("Fundamentally attractive: P/E of %s vs sector avg %s", num(*fund.PE), num(fund.SectorPE)))
		}
	case fund.Value <= 35:
		reasons = append(reasons, "Fundamental concerns: weak valuation or financial health metrics")
	}
	if fund.RevenueGrowthPct != nil {
		reasons = append(reasons, fmt.Sprintf("Revenue growth at %.1f%%", *fund.RevenueGrowthPct))
	}
	if fund.EarningsGrowthPct != nil {
		reasons = append(reasons, fmt.Sprintf("Earnings growth at %.1f%%", *fund.EarningsGrowthPct))
	}

	mom := a.Momentum
	if rs := mom.RelativeStrength; rs != nil {
		switch {
		case *rs > 5:
			reasons = append(reasons, fmt.Sprintf("Outperforming the benchmark by %s%% over 3 months", num(*rs)))
		case *rs < -5:
			reasons = append(reasons, fmt.Sprintf("Underperforming the benchmark by %s%% over 3 months", num(math.Abs(*rs))))
		}
	}
	if mom.MeanReversion.Signal == factors.StronglyOversold {
		reasons = append(reasons, fmt.Sprintf("Trading %s%% below 50-DMA, mean reversion opportunity", num(math.Abs(mom.MeanReversion.DeviationPct))))
	}

	sector := a.Macro.Sector
	if sector == "" {
		sector = "this sector"
	}
	switch {
	case a.Macro.Value >= 60:
		reasons = append(reasons, fmt.Sprintf("Macro environment favorable for %s", sector))
	case a.Macro.Value <= 40:
		reasons = append(reasons, fmt.Sprintf("Macro headwinds for %s", sector))
	}

	return reasons
}
