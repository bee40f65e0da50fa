package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/contracts"
)

func TestInterpret(t *testing.T) {
	tests := []struct {
		name    string
		ind     contracts.GlobalIndicators
		signals []string
	}{
		{"empty", contracts.GlobalIndicators{}, nil},
		{"bullish nifty", contracts.GlobalIndicators{"nifty": {MonthChangePct: 3.5}}, []string{"bullish"}},
		{"bearish nifty", contracts.GlobalIndicators{"nifty": {MonthChangePct: -4}}, []string{"bearish"}},
		{"flat nifty", contracts.GlobalIndicators{"nifty": {MonthChangePct: 3}}, nil},
		{"fear", contracts.GlobalIndicators{"vix_india": {Current: 25}}, []string{"fear"}},
		{"greed", contracts.GlobalIndicators{"vix_india": {Current: 12}}, []string{"greed"}},
		{"oil and rupee", contracts.GlobalIndicators{
			"crude_oil": {MonthChangePct: 12},
			"usdinr":    {MonthChangePct: 2.4},
		}, []string{"negative_for_india", "inr_weakening"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Interpret(tt.ind)
			require.NotNil(t, got)
			var names []string
			for _, s := range got {
				names = append(names, s.Signal)
			}
			assert.Equal(t, tt.signals, names)
		})
	}

	s := Interpret(contracts.GlobalIndicators{"nifty": {MonthChangePct: 3.5}})
	assert.Equal(t, "+3.5% this month", s[0].Detail)
}
