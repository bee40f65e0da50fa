package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/tradeloop/internal/contracts"
)

// PickOverdue chooses the universe to warm up. Universes are visited in
// catalogue order: the first one never scanned wins outright; otherwise the
// one with the longest elapsed time beyond threshold.
func PickOverdue(keys []string, last map[string]time.Time, now time.Time, threshold time.Duration) (string, bool) {
	best := ""
	var bestElapsed time.Duration

	for _, key := range keys {
		at, ok := last[key]
		if !ok || at.IsZero() {
			return key, true
		}
		elapsed := now.Sub(at)
		if elapsed > threshold && elapsed > bestElapsed {
			best, bestElapsed = key, elapsed
		}
	}
	return best, best != ""
}

// CheckOverdue runs a short warm-up scan of the most overdue universe, if
// any. Run once at startup to catch up after downtime.
func (a *Agent) CheckOverdue(ctx context.Context) {
	st, err := a.store.ScanState(ctx)
	if err != nil {
		a.logActivity(ctx, "WARMUP_ERROR", fmt.Sprintf("Warmup scan failed: %v", err), contracts.CategoryError)
		return
	}

	key, ok := PickOverdue(a.universes.Keys(), st.LastScan, a.now().UTC(), a.cfg.OverdueThreshold)
	if !ok {
		a.logActivity(ctx, "WARMUP_SKIP", "All universes scanned recently, no warmup needed", contracts.CategorySystem)
		return
	}

	a.logActivity(ctx, "WARMUP_SCAN",
		fmt.Sprintf("Overdue scan detected for %s: running immediately on wake-up", key), contracts.CategoryScan)

	if _, err := a.RunAutoScan(ctx, key, a.cfg.WarmupStocks); err != nil && !errors.Is(err, contracts.ErrScanInProgress) {
		a.logActivity(ctx, "WARMUP_ERROR", fmt.Sprintf("Warmup scan failed: %v", err), contracts.CategoryError)
	}
}

// NormalizeTicker appends the default exchange suffix to bare symbols
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(ticker)
	if strings.HasSuffix(ticker, ".NS") || strings.HasSuffix(ticker, ".BO") {
		return ticker
	}
	return strings.ToUpper(ticker) + ".NS"
}
