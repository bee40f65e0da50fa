package contracts

import (
	"context"
	"time"
)

// PriceBar is one daily OHLCV bar
type PriceBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// InstrumentInfo holds an instrument's static metrics.
// Ratios are fractions (0.18 = 18%) as reported upstream; nil means unknown.
type InstrumentInfo struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Sector   string `json:"sector"`
	Industry string `json:"industry"`

	MarketCap *float64 `json:"market_cap,omitempty"`
	Beta      *float64 `json:"beta,omitempty"`

	// Valuation
	PE        *float64 `json:"pe_ratio,omitempty"`
	ForwardPE *float64 `json:"forward_pe,omitempty"`
	PB        *float64 `json:"pb_ratio,omitempty"`
	PEG       *float64 `json:"peg_ratio,omitempty"`

	// Profitability
	ROE             *float64 `json:"roe,omitempty"`
	ProfitMargin    *float64 `json:"profit_margin,omitempty"`
	OperatingMargin *float64 `json:"operating_margin,omitempty"`

	// Growth
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
	EarningsGrowth *float64 `json:"earnings_growth,omitempty"`
	EPS            *float64 `json:"eps,omitempty"`
	ForwardEPS     *float64 `json:"forward_eps,omitempty"`

	// Health
	DebtToEquity *float64 `json:"debt_to_equity,omitempty"`
	CurrentRatio *float64 `json:"current_ratio,omitempty"`
	FreeCashFlow *float64 `json:"free_cash_flow,omitempty"`
	TotalDebt    *float64 `json:"total_debt,omitempty"`
	TotalCash    *float64 `json:"total_cash,omitempty"`
}

// UnknownSector is used when upstream reports no sector
const UnknownSector = "Unknown"

// GlobalIndicator summarizes one global series
type GlobalIndicator struct {
	Current        float64 `json:"current"`
	WeekChangePct  float64 `json:"week_change_pct"`
	MonthChangePct float64 `json:"month_change_pct"`
}

// GlobalIndicators is keyed by indicator name (see Indicator* constants)
type GlobalIndicators map[string]GlobalIndicator

// Indicator names
const (
	IndicatorBenchmark  = "nifty"
	IndicatorSensex     = "sensex"
	IndicatorSP500      = "sp500"
	IndicatorDollar     = "dxy"
	IndicatorCrudeOil   = "crude_oil"
	IndicatorGold       = "gold"
	IndicatorUSDINR     = "usdinr"
	IndicatorUS10Y      = "us10y"
	IndicatorVolatility = "vix_india"
)

// IndicatorSymbols maps indicator names to upstream symbols
func IndicatorSymbols() map[string]string {
	return map[string]string{
		IndicatorBenchmark:  "^NSEI",
		IndicatorSensex:     "^BSESN",
		IndicatorSP500:      "^GSPC",
		IndicatorDollar:     "DX-Y.NYB",
		IndicatorCrudeOil:   "CL=F",
		IndicatorGold:       "GC=F",
		IndicatorUSDINR:     "INR=X",
		IndicatorUS10Y:      "^TNX",
		IndicatorVolatility: "^INDIAVIX",
	}
}

// MarketData is the only way the core reaches upstream market data.
// Implementations return ErrDataUnavailable (wrapped) when a series is empty
// or cannot be fetched.
type MarketData interface {
	PriceHistory(ctx context.Context, symbol string, days int) ([]PriceBar, error)
	Info(ctx context.Context, symbol string) (*InstrumentInfo, error)
	GlobalIndicators(ctx context.Context) (GlobalIndicators, error)
}

// SharedData is fetched once per scan and reused for every instrument
type SharedData struct {
	Benchmark  []PriceBar
	Indicators GlobalIndicators
}

// Closes extracts closing prices
func Closes(bars []PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// Float64 returns a pointer to v
func Float64(v float64) *float64 {
	return &v
}
