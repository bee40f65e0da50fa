package factors

import (
	"github.com/wonny/tradeloop/internal/contracts"
)

// sectorPE holds approximate sector P/E benchmarks
var sectorPE = map[string]float64{
	"Technology":             28,
	"Financial Services":     18,
	"Consumer Defensive":     45,
	"Consumer Cyclical":      35,
	"Healthcare":             30,
	"Energy":                 12,
	"Industrials":            25,
	"Basic Materials":        15,
	"Communication Services": 20,
	"Utilities":              14,
	"Real Estate":            20,
	contracts.UnknownSector:  22,
}

// SectorPE returns the P/E benchmark for sector (22 when unknown)
func SectorPE(sector string) float64 {
	if pe, ok := sectorPE[sector]; ok {
		return pe
	}
	return 22
}

// Sub-score weights
const (
	valuationWeight     = 0.30
	profitabilityWeight = 0.25
	growthWeight        = 0.25
	healthWeight        = 0.20
)

// FundamentalResult is the fundamental factor with its four sub-scores
type FundamentalResult struct {
	contracts.FactorScore
	Valuation         float64  `json:"valuation"`
	Profitability     float64  `json:"profitability"`
	Growth            float64  `json:"growth"`
	FinancialHealth   float64  `json:"financial_health"`
	PE                *float64 `json:"pe,omitempty"`
	SectorPE          float64  `json:"sector_pe"`
	RevenueGrowthPct  *float64 `json:"revenue_growth_pct,omitempty"`
	EarningsGrowthPct *float64 `json:"earnings_growth_pct,omitempty"`
}

// Fundamental scores valuation, profitability, growth and financial health
// from static metrics. Missing metrics leave their sub-score neutral.
func Fundamental(info *contracts.InstrumentInfo) FundamentalResult {
	if info == nil {
		info = &contracts.InstrumentInfo{Sector: contracts.UnknownSector}
	}

	res := FundamentalResult{
		Valuation:       clamp(valuationScore(info), 0, 100),
		Profitability:   clamp(profitabilityScore(info), 0, 100),
		Growth:          clamp(growthScore(info), 0, 100),
		FinancialHealth: clamp(healthScore(info), 0, 100),
		SectorPE:        SectorPE(info.Sector),
	}
	if info.PE != nil && *info.PE > 0 {
		res.PE = contracts.Float64(round(*info.PE, 2))
	}
	if info.RevenueGrowth != nil {
		res.RevenueGrowthPct = contracts.Float64(round(*info.RevenueGrowth*100, 1))
	}
	if info.EarningsGrowth != nil {
		res.EarningsGrowthPct = contracts.Float64(round(*info.EarningsGrowth*100, 1))
	}

	composite := res.Valuation*valuationWeight +
		res.Profitability*profitabilityWeight +
		res.Growth*growthWeight +
		res.FinancialHealth*healthWeight

	res.FactorScore = score(contracts.FactorFundamental, composite)
	res.Detail = map[string]interface{}{
		"valuation":        res.Valuation,
		"profitability":    res.Profitability,
		"growth":           res.Growth,
		"financial_health": res.FinancialHealth,
	}
	return res
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func valuationScore(info *contracts.InstrumentInfo) float64 {
	s := Neutral

	if positive(info.PE) {
		switch rel := *info.PE / SectorPE(info.Sector); {
		case rel < 0.6:
			s += 15
		case rel < 0.8:
			s += 10
		case rel < 1.0:
			s += 5
		case rel > 1.5:
			s -= 10
		case rel > 1.2:
			s -= 5
		}
	}

	if positive(info.PE) && positive(info.ForwardPE) {
		switch pe, fwd := *info.PE, *info.ForwardPE; {
		case fwd < pe*0.85:
			s += 8
		case fwd < pe:
			s += 4
		}
	}

	if positive(info.PB) {
		switch pb := *info.PB; {
		case pb < 1.0:
			s += 8
		case pb < 2.0:
			s += 4
		case pb > 5.0:
			s -= 5
		}
	}

	if positive(info.PEG) {
		switch peg := *info.PEG; {
		case peg < 0.8:
			s += 10
		case peg < 1.0:
			s += 5
		case peg > 2.0:
			s -= 8
		case peg > 1.5:
			s -= 4
		}
	}

	return s
}

func profitabilityScore(info *contracts.InstrumentInfo) float64 {
	s := Neutral

	if info.ROE != nil {
		switch roe := *info.ROE * 100; {
		case roe > 25:
			s += 15
		case roe > 18:
			s += 10
		case roe > 12:
			s += 5
		case roe < 5:
			s -= 10
		case roe < 8:
			s -= 5
		}
	}

	if info.ProfitMargin != nil {
		switch pm := *info.ProfitMargin * 100; {
		case pm > 20:
			s += 10
		case pm > 12:
			s += 5
		case pm < 3:
			s -= 10
		case pm < 7:
			s -= 5
		}
	}

	if info.OperatingMargin != nil {
		switch om := *info.OperatingMargin * 100; {
		case om > 25:
			s += 8
		case om > 15:
			s += 4
		case om < 5:
			s -= 8
		}
	}

	return s
}

func growthScore(info *contracts.InstrumentInfo) float64 {
	s := Neutral

	if info.RevenueGrowth != nil {
		switch rg := *info.RevenueGrowth * 100; {
		case rg > 25:
			s += 15
		case rg > 15:
			s += 10
		case rg > 8:
			s += 5
		case rg < 0:
			s -= 10
		case rg < 3:
			s -= 5
		}
	}

	if info.EarningsGrowth != nil {
		switch eg := *info.EarningsGrowth * 100; {
		case eg > 30:
			s += 15
		case eg > 18:
			s += 10
		case eg > 8:
			s += 5
		case eg < 0:
			s -= 12
		}
	}

	if positive(info.EPS) && info.ForwardEPS != nil {
		switch g := (*info.ForwardEPS - *info.EPS) / *info.EPS * 100; {
		case g > 20:
			s += 8
		case g > 10:
			s += 4
		case g < -10:
			s -= 8
		}
	}

	return s
}

func healthScore(info *contracts.InstrumentInfo) float64 {
	s := Neutral

	if info.DebtToEquity != nil {
		switch de := *info.DebtToEquity; {
		case de < 30:
			s += 12
		case de < 60:
			s += 8
		case de < 100:
			s += 3
		case de > 200:
			s -= 15
		case de > 150:
			s -= 10
		}
	}

	if info.CurrentRatio != nil {
		switch cr := *info.CurrentRatio; {
		case cr > 2.0:
			s += 8
		case cr > 1.5:
			s += 5
		case cr < 0.8:
			s -= 10
		case cr < 1.0:
			s -= 5
		}
	}

	if info.TotalCash != nil && positive(info.TotalDebt) {
		switch ratio := *info.TotalCash / *info.TotalDebt; {
		case ratio > 1.0:
			s += 8
		case ratio > 0.5:
			s += 4
		case ratio < 0.1:
			s -= 8
		}
	}

	if info.FreeCashFlow != nil {
		if *info.FreeCashFlow > 0 {
			s += 5
		} else {
			s -= 8
		}
	}

	return s
}
