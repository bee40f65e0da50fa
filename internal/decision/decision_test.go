package decision

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/factors"
	"github.com/wonny/tradeloop/internal/marketdata"
	"github.com/wonny/tradeloop/pkg/logger"
)

type staticWeights contracts.WeightSet

func (s staticWeights) AdaptedWeights(ctx context.Context) contracts.WeightSet {
	return contracts.WeightSet(s)
}

func trendBars(n int, start, step float64) []contracts.PriceBar {
	bars := make([]contracts.PriceBar, n)
	day := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := start + float64(i)*step
		bars[i] = contracts.PriceBar{
			Date:   day.AddDate(0, 0, i),
			Open:   c - step*0.4,
			High:   c + 0.5,
			Low:    c - 0.7,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func TestClassify(t *testing.T) {
	tests := []struct {
		composite  float64
		action     contracts.Action
		confidence int
	}{
		{100, contracts.ActionStrongBuy, 95},
		{72, contracts.ActionStrongBuy, 82},
		{71.9, contracts.ActionBuy, 76},
		{60, contracts.ActionBuy, 65},
		{59.9, contracts.ActionHold, 59},
		{50, contracts.ActionHold, 50},
		{42, contracts.ActionHold, 58},
		{41.9, contracts.ActionSell, 63},
		{30, contracts.ActionSell, 75},
		{29.9, contracts.ActionStrongSell, 80},
		{0, contracts.ActionStrongSell, 95},
	}

	for _, tt := range tests {
		action, confidence := Classify(tt.composite)
		assert.Equal(t, tt.action, action, "composite=%v", tt.composite)
		assert.Equal(t, tt.confidence, confidence, "composite=%v", tt.composite)
	}
}

func TestClassify_ConfidenceAlwaysInRange(t *testing.T) {
	for i := 0; i <= 1000; i++ {
		c := float64(i) / 10
		_, confidence := Classify(c)
		assert.GreaterOrEqual(t, confidence, contracts.MinConfidence, "composite=%v", c)
		assert.LessOrEqual(t, confidence, contracts.MaxConfidence, "composite=%v", c)
	}
}

func TestComputeComposite(t *testing.T) {
	weights := contracts.DefaultWeights()

	assert.InDelta(t, 50.0, ComputeComposite(map[string]float64{}, weights), 1e-9)

	scores := map[string]float64{contracts.FactorTechnical: 100}
	assert.InDelta(t, 65.0, ComputeComposite(scores, weights), 1e-9)

	// invalid weights fall back to defaults
	assert.InDelta(t, 65.0, ComputeComposite(scores, contracts.WeightSet{"technical": 1.5}), 1e-9)
}

func TestComputeTargetStop(t *testing.T) {
	f := contracts.Float64
	tests := []struct {
		name   string
		action contracts.Action
		sr     factors.SupportResistance
		want   Targets
	}{
		{"buy without levels", contracts.ActionBuy, factors.SupportResistance{}, Targets{108, 95, 1.6}},
		{"sell without levels", contracts.ActionStrongSell, factors.SupportResistance{}, Targets{92, 105, 1.6}},
		{"hold", contracts.ActionHold, factors.SupportResistance{}, Targets{104, 96, 1}},
		{"buy capped by levels", contracts.ActionStrongBuy,
			factors.SupportResistance{Support1: f(97), Resistance2: f(106)}, Targets{106, 97, 2}},
		{"buy with stop above price", contracts.ActionBuy,
			factors.SupportResistance{Support1: f(101)}, Targets{108, 101, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeTargetStop(100, 2, tt.action, tt.sr)
			assert.InDelta(t, tt.want.TargetPrice, got.TargetPrice, 1e-9)
			assert.InDelta(t, tt.want.StopLoss, got.StopLoss, 1e-9)
			assert.InDelta(t, tt.want.RiskRewardRatio, got.RiskRewardRatio, 1e-9)

			// missing ATR falls back to 2% of price, the same band here
			assert.Equal(t, got, ComputeTargetStop(100, 0, tt.action, tt.sr))
		})
	}
}

func TestComputeTargetStop_NoATRKeepsBand(t *testing.T) {
	for _, action := range []contracts.Action{
		contracts.ActionStrongBuy, contracts.ActionBuy, contracts.ActionHold,
		contracts.ActionSell, contracts.ActionStrongSell,
	} {
		got := ComputeTargetStop(250, 0, action, factors.SupportResistance{})
		assert.NotEqual(t, got.TargetPrice, got.StopLoss, action)
		assert.Positive(t, got.RiskRewardRatio, action)
	}
}

func TestDetermineTimeHorizon(t *testing.T) {
	tests := []struct {
		adx, atrPct float64
		want        string
	}{
		{35, 1.5, Horizon2to4Weeks},
		{35, 2.5, Horizon1to3Weeks},
		{26, 5, Horizon1to3Weeks},
		{20, 4, Horizon3to7Days},
		{20, 2, Horizon1to2Weeks},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetermineTimeHorizon(tt.adx, tt.atrPct), "adx=%v atr%%=%v", tt.adx, tt.atrPct)
	}
}

func TestRiskRating(t *testing.T) {
	f := contracts.Float64
	assert.Equal(t, DefaultRiskRating, RiskRating(nil, 8))
	assert.Equal(t, 6, RiskRating(f(1), 2))
	assert.Equal(t, 10, RiskRating(f(3), 5))
	assert.Equal(t, 1, RiskRating(f(0), 0.5))
}

func TestGenerateReasoning(t *testing.T) {
	a := &Analysis{}
	a.Technical.Value = 75
	a.Technical.RSI = 28.5
	a.Fundamental.Value = 50
	a.Macro.Value = 30
	a.Macro.Sector = "Energy"

	reasons := GenerateReasoning(a)
	assert.Equal(t, []string{
		"Strong technical setup with RSI at 28.5 and positive MACD crossover",
		"Macro headwinds for Energy",
	}, reasons)

	assert.Empty(t, GenerateReasoning(nil))
}

func TestEngine_Analyze(t *testing.T) {
	md := marketdata.NewMemory()
	md.SetBars("RELIANCE.NS", trendBars(260, 100, 0.5))
	md.SetBars("^NSEI", trendBars(260, 20000, 5))

	engine := NewEngine(md, nil, "^NSEI", logger.Nop())
	d, a, err := engine.Analyze(context.Background(), "RELIANCE.NS", nil)
	require.NoError(t, err)
	require.NotNil(t, a)

	assert.NoError(t, d.Validate())
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "RELIANCE", d.Name)
	assert.Equal(t, contracts.UnknownSector, d.Sector)
	assert.Equal(t, 229.5, d.Price)
	assert.Equal(t, DefaultRiskRating, d.RiskRating)
	assert.Len(t, d.Scores, 5)
	assert.Equal(t, contracts.DefaultWeights(), d.Weights)
	assert.Nil(t, d.Evaluation)

	// shared data was fetched because none was passed
	assert.Equal(t, 1, md.Calls("^NSEI"))
}

func TestEngine_AnalyzeUsesSharedData(t *testing.T) {
	md := marketdata.NewMemory()
	md.SetBars("TCS.NS", trendBars(100, 3000, 1))
	md.SetInfo("TCS.NS", &contracts.InstrumentInfo{
		Symbol: "TCS.NS",
		Name:   "Tata Consultancy Services",
		Sector: "Technology",
		Beta:   contracts.Float64(1),
	})

	weights := staticWeights{
		contracts.FactorTechnical:      0.2,
		contracts.FactorFundamental:    0.2,
		contracts.FactorMomentum:       0.2,
		contracts.FactorMacro:          0.2,
		contracts.FactorVolumeDelivery: 0.2,
	}
	engine := NewEngine(md, weights, "^NSEI", logger.Nop())

	shared := &contracts.SharedData{Indicators: contracts.GlobalIndicators{}}
	d, _, err := engine.Analyze(context.Background(), "TCS.NS", shared)
	require.NoError(t, err)

	assert.Equal(t, 0, md.Calls("^NSEI"))
	assert.Equal(t, "Tata Consultancy Services", d.Name)
	assert.Equal(t, "Technology", d.Sector)
	assert.Equal(t, contracts.WeightSet(weights), d.Weights)
	assert.Equal(t, 4, d.RiskRating)
}

func TestEngine_AnalyzeInvalidWeightsFallBack(t *testing.T) {
	md := marketdata.NewMemory()
	md.SetBars("INFY.NS", trendBars(100, 1500, 1))

	engine := NewEngine(md, staticWeights{"technical": 2}, "^NSEI", logger.Nop())
	d, _, err := engine.Analyze(context.Background(), "INFY.NS", &contracts.SharedData{})
	require.NoError(t, err)
	assert.Equal(t, contracts.DefaultWeights(), d.Weights)
}

func TestEngine_AnalyzeShortHistory(t *testing.T) {
	md := marketdata.NewMemory()
	md.SetBars("NEWLIST.NS", trendBars(factors.MinTechnicalBars-30, 200, 1))

	engine := NewEngine(md, nil, "^NSEI", logger.Nop())
	d, a, err := engine.Analyze(context.Background(), "NEWLIST.NS", &contracts.SharedData{})
	require.NoError(t, err)

	assert.Zero(t, a.Technical.ATR)
	assert.NoError(t, d.Validate())
	assert.Greater(t, d.TargetPrice, d.StopLoss)
	assert.Positive(t, d.RiskRewardRatio)
	assert.Contains(t, d.Reasoning[len(d.Reasoning)-1], "Volatility unavailable")
}

func TestEngine_AnalyzeDataUnavailable(t *testing.T) {
	md := marketdata.NewMemory()
	engine := NewEngine(md, nil, "^NSEI", logger.Nop())

	d, a, err := engine.Analyze(context.Background(), "MISSING.NS", &contracts.SharedData{})
	assert.Nil(t, d)
	assert.Nil(t, a)
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))

	md.Fail("BROKEN.NS", errors.New("connection reset"))
	_, _, err = engine.Analyze(context.Background(), "BROKEN.NS", &contracts.SharedData{})
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "HDFCBANK", DisplayName("HDFCBANK.NS"))
	assert.Equal(t, "SBIN", DisplayName("SBIN.BO"))
	assert.Equal(t, "AAPL", DisplayName("AAPL"))
}
