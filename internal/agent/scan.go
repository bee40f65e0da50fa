package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/wonny/tradeloop/internal/contracts"
)

// Scan result caps
const (
	TopSignals     = 5
	maxErrorDigest = 3
)

// RunAutoScan scans one universe (first limit tickers, 0 = all) and persists
// every Decision. When another scan holds the flag it returns a skipped
// result together with ErrScanInProgress. The flag is released and LastScan
// recorded even if the scan panics.
func (a *Agent) RunAutoScan(ctx context.Context, key string, limit int) (res *contracts.ScanResult, err error) {
	tickers, err := a.universes.Tickers(key, limit)
	if err != nil {
		return nil, err
	}

	began, st, err := a.store.TryBeginScan(ctx, key, a.now().UTC())
	if err != nil {
		a.logger.WithError(err).WithField("universe", key).Error("Failed to acquire scan flag")
		return nil, fmt.Errorf("%w: begin scan %s: %w", contracts.ErrPersistence, key, err)
	}
	if !began {
		a.logActivity(ctx, "SCAN_SKIPPED",
			fmt.Sprintf("Scan already in progress for %s", st.CurrentUniverse), contracts.CategoryScan)
		return &contracts.ScanResult{Universe: key, Skipped: true, Reason: "scan_in_progress"}, contracts.ErrScanInProgress
	}

	res = &contracts.ScanResult{Universe: key, StartedAt: a.now().UTC()}
	var results []contracts.Decision
	saved := 0

	defer func() {
		if r := recover(); r != nil {
			a.logger.WithField("universe", key).Errorf("Scan panicked: %v", r)
			a.logActivity(ctx, "SCAN_ERROR", fmt.Sprintf("Error scanning %s: %v", key, r), contracts.CategoryError)
			err = fmt.Errorf("scan %s panicked: %v", key, r)
		}
		// 스캔 플래그는 무조건 해제
		if _, ferr := a.store.FinishScan(context.WithoutCancel(ctx), key, a.now().UTC(), len(results), saved); ferr != nil {
			a.logger.WithError(ferr).WithField("universe", key).Error("Failed to finish scan state")
		}
	}()

	a.logActivity(ctx, "SCAN_STARTED", fmt.Sprintf("Auto-scanning %s (%d stocks)", key, len(tickers)), contracts.CategoryScan)

	shared := a.analyzer.Prefetch(ctx)
	if len(shared.Benchmark) == 0 {
		a.logActivity(ctx, "SCAN_PREFETCH_ERROR", "Failed to pre-fetch shared data: benchmark series unavailable", contracts.CategoryError)
	} else {
		a.logActivity(ctx, "SCAN_PREFETCH",
			fmt.Sprintf("Cached Nifty index + %d global indicators", len(shared.Indicators)), contracts.CategoryScan)
	}

	for i, ticker := range tickers {
		d, aerr := a.analyzeOne(ctx, ticker, shared)
		if aerr != nil {
			res.Errors++
			res.ErrorDetails = append(res.ErrorDetails, fmt.Sprintf("%s: %v", ticker, aerr))
		} else {
			if a.saveDecision(ctx, d) {
				saved++
			}
			results = append(results, *d)
			if d.Action.IsActionable() {
				a.logActivity(ctx, "SIGNAL_"+string(d.Action),
					fmt.Sprintf("%s: %s (score: %.1f)", ticker, d.Action, d.CompositeScore), contracts.CategorySignal)
			}
		}

		if i < len(tickers)-1 {
			if serr := a.sleep(ctx, a.cfg.ItemDelay); serr != nil {
				a.logger.WithField("universe", key).Warn("Scan interrupted by shutdown")
				break
			}
		}
	}

	buys, sells := splitSignals(results)
	res.TotalScanned = len(results)
	res.Buys = len(buys)
	res.Sells = len(sells)
	res.TopBuys = topN(buys, TopSignals, true)
	res.TopSells = topN(sells, TopSignals, false)
	res.FinishedAt = a.now().UTC()

	summary := fmt.Sprintf("%s: %d analyzed, %d buys, %d sells, %d errors", key, len(results), len(buys), len(sells), res.Errors)
	if len(res.ErrorDetails) > 0 {
		n := len(res.ErrorDetails)
		if n > maxErrorDigest {
			n = maxErrorDigest
		}
		summary += " | First errors: " + strings.Join(res.ErrorDetails[:n], "; ")
	}
	a.logActivity(ctx, "SCAN_COMPLETE", summary, contracts.CategoryScan)

	return res, nil
}

// analyzeOne isolates a single instrument's failure, panics included
func (a *Agent) analyzeOne(ctx context.Context, ticker string, shared *contracts.SharedData) (d *contracts.Decision, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()

	d, _, err = a.analyzer.Analyze(ctx, ticker, shared)
	if err == nil && d == nil {
		err = contracts.ErrDataUnavailable
	}
	return d, err
}

// saveDecision persists d; failures are logged and swallowed
func (a *Agent) saveDecision(ctx context.Context, d *contracts.Decision) bool {
	if err := a.store.SaveDecision(context.WithoutCancel(ctx), d); err != nil {
		a.logger.WithError(err).WithField("ticker", d.Ticker).Error("Failed to save decision")
		a.logActivity(ctx, "PERSISTENCE_ERROR", fmt.Sprintf("%s: %v", d.Ticker, err), contracts.CategoryError)
		return false
	}
	return true
}

func splitSignals(results []contracts.Decision) (buys, sells []contracts.Decision) {
	for _, d := range results {
		switch {
		case d.Action.IsBuy():
			buys = append(buys, d)
		case d.Action.IsSell():
			sells = append(sells, d)
		}
	}
	return buys, sells
}

// topN sorts a copy by composite score and keeps n
func topN(list []contracts.Decision, n int, desc bool) []contracts.Decision {
	out := append([]contracts.Decision(nil), list...)
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return out[i].CompositeScore > out[j].CompositeScore
		}
		return out[i].CompositeScore < out[j].CompositeScore
	})
	if len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []contracts.Decision{}
	}
	return out
}

// RunNextRotation scans the next universe in catalogue order
func (a *Agent) RunNextRotation(ctx context.Context) error {
	a.mu.Lock()
	u := a.universes.At(a.rotation)
	a.rotation++
	a.mu.Unlock()

	_, err := a.RunAutoScan(ctx, u.Key, 0)
	if err != nil && !errors.Is(err, contracts.ErrScanInProgress) {
		a.logActivity(ctx, "SCAN_ERROR", fmt.Sprintf("Scheduled scan error for %s: %v", u.Key, err), contracts.CategoryError)
	}
	return err
}

// ScanAll scans every universe in catalogue order, pausing between universes.
// A universe that cannot be scanned is logged and the rest continue.
func (a *Agent) ScanAll(ctx context.Context) (map[string]*contracts.ScanResult, error) {
	a.logActivity(ctx, "FULL_SCAN_STARTED", "Starting full scan of all universes", contracts.CategoryScan)

	keys := a.universes.Keys()
	results := make(map[string]*contracts.ScanResult, len(keys))
	done := make([]string, 0, len(keys))

	for i, key := range keys {
		if ctx.Err() != nil {
			break
		}
		res, err := a.RunAutoScan(ctx, key, 0)
		if err != nil && !errors.Is(err, contracts.ErrScanInProgress) {
			a.logActivity(ctx, "SCAN_ERROR", fmt.Sprintf("Error scanning %s: %v", key, err), contracts.CategoryError)
		}
		results[key] = res
		done = append(done, key)

		if i < len(keys)-1 {
			if serr := a.sleep(ctx, a.cfg.UniverseDelay); serr != nil {
				break
			}
		}
	}

	a.logActivity(ctx, "FULL_SCAN_COMPLETE",
		fmt.Sprintf("All universes scanned: [%s]", strings.Join(done, ", ")), contracts.CategoryScan)
	return results, ctx.Err()
}

// RunFullScan is ScanAll for the scheduler
func (a *Agent) RunFullScan(ctx context.Context) error {
	_, err := a.ScanAll(ctx)
	return err
}

// BatchScan is the result of an ad-hoc ticker list scan
type BatchScan struct {
	TotalScanned int                  `json:"total_scanned"`
	TopBuys      []contracts.Decision `json:"top_buys"`
	TopSells     []contracts.Decision `json:"top_sells"`
	Holds        []contracts.Decision `json:"holds"`
	AllResults   []contracts.Decision `json:"all_results"`
	Errors       []string             `json:"errors,omitempty"`
}

// ScanTickers analyzes an ad-hoc list on a bounded pool (BatchWorkers) without
// touching the scan flag. Results are sorted by composite score descending;
// top buys and sells are the first topN of each class in that order.
// Decisions are persisted only when save is set.
func (a *Agent) ScanTickers(ctx context.Context, tickers []string, topN int, save bool) (*BatchScan, error) {
	if topN <= 0 {
		topN = TopSignals
	}

	shared := a.analyzer.Prefetch(ctx)

	type outcome struct {
		d   *contracts.Decision
		err error
	}
	outcomes := make([]outcome, len(tickers))

	var g errgroup.Group
	g.SetLimit(a.cfg.BatchWorkers)
	for i, ticker := range tickers {
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes[i] = outcome{err: ctx.Err()}
				return nil
			}
			d, err := a.analyzeOne(ctx, ticker, shared)
			outcomes[i] = outcome{d: d, err: err}
			return nil
		})
	}
	g.Wait()

	res := &BatchScan{}
	for i, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", tickers[i], o.err))
			continue
		}
		if save {
			a.saveDecision(ctx, o.d)
		}
		res.AllResults = append(res.AllResults, *o.d)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(res.AllResults, func(i, j int) bool {
		return res.AllResults[i].CompositeScore > res.AllResults[j].CompositeScore
	})

	res.TopBuys, res.TopSells, res.Holds = []contracts.Decision{}, []contracts.Decision{}, []contracts.Decision{}
	for _, d := range res.AllResults {
		switch {
		case d.Action.IsBuy():
			if len(res.TopBuys) < topN {
				res.TopBuys = append(res.TopBuys, d)
			}
		case d.Action.IsSell():
			if len(res.TopSells) < topN {
				res.TopSells = append(res.TopSells, d)
			}
		default:
			res.Holds = append(res.Holds, d)
		}
	}
	if res.AllResults == nil {
		res.AllResults = []contracts.Decision{}
	}
	res.TotalScanned = len(res.AllResults)

	a.logger.WithFields(map[string]interface{}{
		"requested": len(tickers),
		"scanned":   res.TotalScanned,
		"errors":    len(res.Errors),
	}).Info("Batch scan complete")

	return res, nil
}
