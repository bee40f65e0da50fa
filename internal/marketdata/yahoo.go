package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/pkg/config"
	"github.com/wonny/tradeloop/pkg/httputil"
	"github.com/wonny/tradeloop/pkg/logger"
	"github.com/wonny/tradeloop/pkg/redis"
)

// IndicatorLookbackDays is the window fetched per global indicator
const IndicatorLookbackDays = 90

// Yahoo is the reference MarketData adapter over the public chart and
// quoteSummary JSON endpoints
type Yahoo struct {
	client   *httputil.Client
	cache    *redis.Cache
	baseURL  string
	cacheTTL time.Duration
	symbols  map[string]string
	logger   *logger.Logger
	now      func() time.Time
}

// NewYahoo creates the adapter. cache may be nil.
func NewYahoo(cfg *config.Config, client *httputil.Client, cache *redis.Cache, log *logger.Logger) *Yahoo {
	symbols := contracts.IndicatorSymbols()
	if cfg.MarketData.BenchmarkSymbol != "" {
		symbols[contracts.IndicatorBenchmark] = cfg.MarketData.BenchmarkSymbol
	}
	if cfg.MarketData.VolatilitySymbol != "" {
		symbols[contracts.IndicatorVolatility] = cfg.MarketData.VolatilitySymbol
	}

	ttl := cfg.MarketData.CacheTTL
	if ttl <= 0 {
		ttl = redis.TTLHistory
	}

	return &Yahoo{
		client:   client,
		cache:    cache,
		baseURL:  strings.TrimRight(cfg.MarketData.BaseURL, "/"),
		cacheTTL: ttl,
		symbols:  symbols,
		logger:   log.WithComponent("marketdata"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ============================================================================
// Wire types
// ============================================================================

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *yahooError   `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*float64 `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

type yahooError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// rawValue is Yahoo's {"raw": 0.18, "fmt": "18%"} pair
type rawValue struct {
	Raw *float64 `json:"raw"`
}

type quoteSummaryResponse struct {
	QuoteSummary struct {
		Result []struct {
			Price struct {
				LongName  string   `json:"longName"`
				ShortName string   `json:"shortName"`
				MarketCap rawValue `json:"marketCap"`
			} `json:"price"`
			AssetProfile struct {
				Sector   string `json:"sector"`
				Industry string `json:"industry"`
			} `json:"assetProfile"`
			SummaryDetail struct {
				Beta       rawValue `json:"beta"`
				TrailingPE rawValue `json:"trailingPE"`
				ForwardPE  rawValue `json:"forwardPE"`
			} `json:"summaryDetail"`
			DefaultKeyStatistics struct {
				PriceToBook rawValue `json:"priceToBook"`
				PegRatio    rawValue `json:"pegRatio"`
				TrailingEps rawValue `json:"trailingEps"`
				ForwardEps  rawValue `json:"forwardEps"`
			} `json:"defaultKeyStatistics"`
			FinancialData struct {
				ReturnOnEquity   rawValue `json:"returnOnEquity"`
				ProfitMargins    rawValue `json:"profitMargins"`
				OperatingMargins rawValue `json:"operatingMargins"`
				RevenueGrowth    rawValue `json:"revenueGrowth"`
				EarningsGrowth   rawValue `json:"earningsGrowth"`
				DebtToEquity     rawValue `json:"debtToEquity"`
				CurrentRatio     rawValue `json:"currentRatio"`
				FreeCashflow     rawValue `json:"freeCashflow"`
				TotalDebt        rawValue `json:"totalDebt"`
				TotalCash        rawValue `json:"totalCash"`
			} `json:"financialData"`
		} `json:"result"`
		Error *yahooError `json:"error"`
	} `json:"quoteSummary"`
}

// ============================================================================
// MarketData
// ============================================================================

// PriceHistory returns daily bars for the last `days` calendar days
func (y *Yahoo) PriceHistory(ctx context.Context, symbol string, days int) ([]contracts.PriceBar, error) {
	to := y.now()
	from := to.AddDate(0, 0, -days)

	var bars []contracts.PriceBar
	load := func() error {
		b, err := y.fetchChart(ctx, symbol, from, to)
		if err != nil {
			return err
		}
		bars = b
		return nil
	}

	var err error
	if y.cache != nil {
		err = y.cache.GetOrSet(ctx, redis.PriceHistoryKey(symbol, from, to), &bars, y.cacheTTL, load)
	} else {
		err = load()
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", symbol, contracts.ErrDataUnavailable, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%s: %w", symbol, contracts.ErrDataUnavailable)
	}
	return bars, nil
}

func (y *Yahoo) fetchChart(ctx context.Context, symbol string, from, to time.Time) ([]contracts.PriceBar, error) {
	q := url.Values{}
	q.Set("period1", fmt.Sprint(from.Unix()))
	q.Set("period2", fmt.Sprint(to.Unix()))
	q.Set("interval", "1d")
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?%s", y.baseURL, url.PathEscape(symbol), q.Encode())

	var resp chartResponse
	if err := y.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.Chart.Error != nil {
		return nil, fmt.Errorf("chart %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 {
		return nil, errors.New("empty chart result")
	}
	return parseChart(resp.Chart.Result[0]), nil
}

// parseChart drops bars whose close is missing
func parseChart(r chartResult) []contracts.PriceBar {
	if len(r.Indicators.Quote) == 0 {
		return nil
	}
	q := r.Indicators.Quote[0]

	at := func(s []*float64, i int) float64 {
		if i < len(s) && s[i] != nil {
			return *s[i]
		}
		return math.NaN()
	}

	bars := make([]contracts.PriceBar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		c := at(q.Close, i)
		if math.IsNaN(c) {
			continue
		}
		bar := contracts.PriceBar{
			Date:   time.Unix(ts, 0).UTC(),
			Open:   at(q.Open, i),
			High:   at(q.High, i),
			Low:    at(q.Low, i),
			Close:  c,
			Volume: at(q.Volume, i),
		}
		// 결측값은 종가로 채움
		if math.IsNaN(bar.Open) {
			bar.Open = c
		}
		if math.IsNaN(bar.High) {
			bar.High = c
		}
		if math.IsNaN(bar.Low) {
			bar.Low = c
		}
		if math.IsNaN(bar.Volume) {
			bar.Volume = 0
		}
		bars = append(bars, bar)
	}
	return bars
}

// Info returns static metrics for symbol
func (y *Yahoo) Info(ctx context.Context, symbol string) (*contracts.InstrumentInfo, error) {
	var info contracts.InstrumentInfo
	load := func() error {
		i, err := y.fetchInfo(ctx, symbol)
		if err != nil {
			return err
		}
		info = *i
		return nil
	}

	var err error
	if y.cache != nil {
		err = y.cache.GetOrSet(ctx, redis.InstrumentInfoKey(symbol), &info, redis.TTLInfo, load)
	} else {
		err = load()
	}
	if err != nil {
		return nil, fmt.Errorf("info %s: %w", symbol, err)
	}
	return &info, nil
}

func (y *Yahoo) fetchInfo(ctx context.Context, symbol string) (*contracts.InstrumentInfo, error) {
	q := url.Values{}
	q.Set("modules", "price,assetProfile,summaryDetail,defaultKeyStatistics,financialData")
	endpoint := fmt.Sprintf("%s/v10/finance/quoteSummary/%s?%s", y.baseURL, url.PathEscape(symbol), q.Encode())

	var resp quoteSummaryResponse
	if err := y.client.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quoteSummary %s: %s", resp.QuoteSummary.Error.Code, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, contracts.ErrNotFound
	}
	r := resp.QuoteSummary.Result[0]

	name := r.Price.LongName
	if name == "" {
		name = r.Price.ShortName
	}
	sector := r.AssetProfile.Sector
	if sector == "" {
		sector = contracts.UnknownSector
	}

	return &contracts.InstrumentInfo{
		Symbol:          symbol,
		Name:            name,
		Sector:          sector,
		Industry:        r.AssetProfile.Industry,
		MarketCap:       r.Price.MarketCap.Raw,
		Beta:            r.SummaryDetail.Beta.Raw,
		PE:              r.SummaryDetail.TrailingPE.Raw,
		ForwardPE:       r.SummaryDetail.ForwardPE.Raw,
		PB:              r.DefaultKeyStatistics.PriceToBook.Raw,
		PEG:             r.DefaultKeyStatistics.PegRatio.Raw,
		ROE:             r.FinancialData.ReturnOnEquity.Raw,
		ProfitMargin:    r.FinancialData.ProfitMargins.Raw,
		OperatingMargin: r.FinancialData.OperatingMargins.Raw,
		RevenueGrowth:   r.FinancialData.RevenueGrowth.Raw,
		EarningsGrowth:  r.FinancialData.EarningsGrowth.Raw,
		EPS:             r.DefaultKeyStatistics.TrailingEps.Raw,
		ForwardEPS:      r.DefaultKeyStatistics.ForwardEps.Raw,
		DebtToEquity:    r.FinancialData.DebtToEquity.Raw,
		CurrentRatio:    r.FinancialData.CurrentRatio.Raw,
		FreeCashFlow:    r.FinancialData.FreeCashflow.Raw,
		TotalDebt:       r.FinancialData.TotalDebt.Raw,
		TotalCash:       r.FinancialData.TotalCash.Raw,
	}, nil
}

// GlobalIndicators fetches every indicator series. A series that cannot be
// fetched is left out; the result is never an error.
func (y *Yahoo) GlobalIndicators(ctx context.Context) (contracts.GlobalIndicators, error) {
	out := contracts.GlobalIndicators{}
	load := func() error {
		for name, symbol := range y.symbols {
			bars, err := y.PriceHistory(ctx, symbol, IndicatorLookbackDays)
			if err != nil {
				y.logger.WithError(err).WithField("indicator", name).Debug("Indicator unavailable")
				continue
			}
			out[name] = Summarize(bars)
		}
		if len(out) == 0 {
			return errors.New("no indicator series available")
		}
		return nil
	}

	if y.cache != nil {
		_ = y.cache.GetOrSet(ctx, redis.GlobalIndicatorsKey(y.now()), &out, redis.TTLQuote, load)
	} else {
		_ = load()
	}
	return out, nil
}

// Summarize computes current value and week/month change from daily closes:
// a week back is the 5th-from-last close, a month the 22nd-from-last
func Summarize(bars []contracts.PriceBar) contracts.GlobalIndicator {
	if len(bars) == 0 {
		return contracts.GlobalIndicator{}
	}
	current := bars[len(bars)-1].Close
	prevWeek, prevMonth := current, current
	if len(bars) >= 5 {
		prevWeek = bars[len(bars)-5].Close
	}
	if len(bars) >= 22 {
		prevMonth = bars[len(bars)-22].Close
	}
	return contracts.GlobalIndicator{
		Current:        round2(current),
		WeekChangePct:  round2(changePct(prevWeek, current)),
		MonthChangePct: round2(changePct(prevMonth, current)),
	}
}

func changePct(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
