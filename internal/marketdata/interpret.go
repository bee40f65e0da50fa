package marketdata

import (
	"fmt"

	"github.com/wonny/tradeloop/internal/contracts"
)

// Macro reading thresholds
const (
	benchmarkTrendPct = 3.0
	vixFear           = 22.0
	vixGreed          = 13.0
	crudeShockPct     = 10.0
	rupeeWeakPct      = 2.0
)

// MacroSignal is one human-readable reading of the global indicators
type MacroSignal struct {
	Factor string `json:"factor"`
	Signal string `json:"signal"`
	Detail string `json:"detail"`
}

// Interpret turns global indicators into macro signals. Missing indicators
// produce no signal.
func Interpret(ind contracts.GlobalIndicators) []MacroSignal {
	signals := []MacroSignal{}

	if nifty, ok := ind[contracts.IndicatorBenchmark]; ok {
		switch m := nifty.MonthChangePct; {
		case m > benchmarkTrendPct:
			signals = append(signals, MacroSignal{"Nifty 50", "bullish", fmt.Sprintf("+%v%% this month", m)})
		case m < -benchmarkTrendPct:
			signals = append(signals, MacroSignal{"Nifty 50", "bearish", fmt.Sprintf("%v%% this month", m)})
		}
	}

	if vix, ok := ind[contracts.IndicatorVolatility]; ok {
		switch v := vix.Current; {
		case v > vixFear:
			signals = append(signals, MacroSignal{"India VIX", "fear", fmt.Sprintf("VIX at %v, elevated fear", v)})
		case v < vixGreed:
			signals = append(signals, MacroSignal{"India VIX", "greed", fmt.Sprintf("VIX at %v, complacency", v)})
		}
	}

	if crude, ok := ind[contracts.IndicatorCrudeOil]; ok && crude.MonthChangePct > crudeShockPct {
		signals = append(signals, MacroSignal{"Crude Oil", "negative_for_india",
			fmt.Sprintf("Oil up %v%%, inflationary pressure", crude.MonthChangePct)})
	}

	if usdinr, ok := ind[contracts.IndicatorUSDINR]; ok && usdinr.MonthChangePct > rupeeWeakPct {
		signals = append(signals, MacroSignal{"USD/INR", "inr_weakening",
			fmt.Sprintf("INR weakened %v%%, benefits IT, hurts importers", usdinr.MonthChangePct)})
	}

	return signals
}
