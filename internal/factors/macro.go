package factors

import "github.com/wonny/tradeloop/internal/contracts"

// sensitivity of a sector to rising macro drivers; positive benefits
type sensitivity struct {
	InterestRate float64
	INRWeakness  float64
	CrudeOil     float64
	USMarket     float64
	Inflation    float64
}

var sectorSensitivity = map[string]sensitivity{
	"Technology":             {-0.3, 0.8, -0.1, 0.7, -0.2},
	"Financial Services":     {0.5, -0.2, -0.3, 0.3, -0.3},
	"Energy":                 {-0.2, -0.5, 0.7, 0.2, 0.3},
	"Consumer Defensive":     {-0.2, -0.3, -0.4, 0.1, -0.5},
	"Consumer Cyclical":      {-0.6, -0.3, -0.5, 0.3, -0.6},
	"Healthcare":             {-0.1, 0.5, -0.2, 0.5, -0.1},
	"Industrials":            {-0.4, -0.2, -0.4, 0.2, -0.3},
	"Basic Materials":        {-0.3, -0.3, -0.2, 0.3, 0.4},
	"Communication Services": {-0.3, -0.1, -0.2, 0.2, -0.2},
	"Utilities":              {-0.5, -0.3, -0.6, 0.1, -0.2},
}

// MacroResult is the macro factor for one sector
type MacroResult struct {
	contracts.FactorScore
	Sector string `json:"sector"`
}

// Macro scores how the global indicator moves affect sector: rates, currency,
// crude, US equities, the volatility index and the benchmark's month trend.
// Unknown sectors carry zero sensitivity, so only the VIX and benchmark
// terms move them.
func Macro(ind contracts.GlobalIndicators, sector string) MacroResult {
	sens := sectorSensitivity[sector]
	s := Neutral
	detail := map[string]interface{}{}

	if us10y, ok := ind[contracts.IndicatorUS10Y]; ok {
		impact := us10y.MonthChangePct * sens.InterestRate * 2
		s += impact
		detail["interest_rate"] = map[string]interface{}{
			"us10y_current": us10y.Current,
			"month_change":  us10y.MonthChangePct,
			"impact":        round(impact, 2),
		}
	}

	if usdinr, ok := ind[contracts.IndicatorUSDINR]; ok {
		// usdinr 상승 = 루피 약세
		impact := usdinr.MonthChangePct * sens.INRWeakness * 2
		s += impact
		detail["currency"] = map[string]interface{}{
			"usdinr_current": usdinr.Current,
			"month_change":   usdinr.MonthChangePct,
			"impact":         round(impact, 2),
		}
	}

	if crude, ok := ind[contracts.IndicatorCrudeOil]; ok {
		impact := crude.MonthChangePct * sens.CrudeOil * 1.5
		s += impact
		detail["crude_oil"] = map[string]interface{}{
			"current":      crude.Current,
			"month_change": crude.MonthChangePct,
			"impact":       round(impact, 2),
		}
	}

	if sp, ok := ind[contracts.IndicatorSP500]; ok {
		impact := sp.WeekChangePct * sens.USMarket * 2
		s += impact
		detail["us_market"] = map[string]interface{}{
			"sp500_week_change": sp.WeekChangePct,
			"impact":            round(impact, 2),
		}
	}

	if vix, ok := ind[contracts.IndicatorVolatility]; ok {
		signal := "normal"
		switch {
		case vix.Current > 25:
			s -= 8
			signal = "high_fear"
		case vix.Current > 20:
			s -= 4
			signal = "elevated"
		case vix.Current < 12:
			s += 5
			signal = "low_complacent"
		}
		detail["volatility_index"] = map[string]interface{}{"current": vix.Current, "signal": signal}
	}

	if bench, ok := ind[contracts.IndicatorBenchmark]; ok {
		switch {
		case bench.MonthChangePct > 5:
			s += 5
		case bench.MonthChangePct < -5:
			s -= 5
		}
		detail["benchmark"] = map[string]interface{}{
			"current":      bench.Current,
			"week_change":  bench.WeekChangePct,
			"month_change": bench.MonthChangePct,
		}
	}

	res := MacroResult{FactorScore: score(contracts.FactorMacro, s), Sector: sector}
	res.Detail = detail
	return res
}
