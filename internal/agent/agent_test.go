package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/decision"
	"github.com/wonny/tradeloop/internal/learning"
	"github.com/wonny/tradeloop/internal/scheduler"
	"github.com/wonny/tradeloop/internal/store"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/config"
	"github.com/wonny/tradeloop/pkg/logger"
)

// ---- fakes ----

type fakeAnalyzer struct {
	mu        sync.Mutex
	actions   map[string]contracts.Action
	scores    map[string]float64
	calls     []string
	benchmark bool
	panicOn   string

	hold        time.Duration
	inFlight    int32
	maxInFlight int32

	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		actions:   map[string]contracts.Action{},
		scores:    map[string]float64{},
		benchmark: true,
	}
}

func (f *fakeAnalyzer) set(ticker string, action contracts.Action, score float64) {
	f.actions[ticker] = action
	f.scores[ticker] = score
}

func (f *fakeAnalyzer) Prefetch(ctx context.Context) *contracts.SharedData {
	if f.panicOn == "prefetch" {
		panic("prefetch exploded")
	}
	shared := &contracts.SharedData{Indicators: contracts.GlobalIndicators{"nifty": {Current: 22000}}}
	if f.benchmark {
		shared.Benchmark = []contracts.PriceBar{{Close: 1}}
	}
	return shared
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, ticker string, shared *contracts.SharedData) (*contracts.Decision, *decision.Analysis, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		m := atomic.LoadInt32(&f.maxInFlight)
		if n <= m || atomic.CompareAndSwapInt32(&f.maxInFlight, m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, ticker)
	action, ok := f.actions[ticker]
	score := f.scores[ticker]
	f.mu.Unlock()

	if f.release != nil {
		f.once.Do(func() { close(f.entered) })
		<-f.release
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	if ticker == f.panicOn {
		panic("analysis exploded")
	}
	if !ok {
		return nil, nil, fmt.Errorf("analyze %s: %w", ticker, contracts.ErrDataUnavailable)
	}
	return makeDecision(ticker, action, score, time.Now().UTC()), nil, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func makeDecision(ticker string, action contracts.Action, score float64, ts time.Time) *contracts.Decision {
	return &contracts.Decision{
		ID:             uuid.NewString(),
		Ticker:         ticker,
		Name:           strings.TrimSuffix(ticker, ".NS"),
		Sector:         "Technology",
		Timestamp:      ts,
		Action:         action,
		Confidence:     60,
		CompositeScore: score,
		Price:          100,
		TargetPrice:    110,
		StopLoss:       95,
		RiskRating:     5,
		Scores:         map[string]float64{contracts.FactorTechnical: score},
	}
}

type fakeEvaluator struct {
	fail map[string]bool
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, d contracts.Decision) (*contracts.Outcome, error) {
	if f.fail[d.Ticker] {
		return nil, fmt.Errorf("%w: %s: %w", contracts.ErrEvaluation, d.Ticker, contracts.ErrDataUnavailable)
	}
	return &contracts.Outcome{Evaluation: contracts.Evaluation{
		CurrentPrice:    105,
		PnLPct:          5,
		RealizedMovePct: 5,
		Outcome:         contracts.OutcomeOpen,
		EvaluatedAt:     time.Now().UTC(),
	}}, nil
}

type fakeLearner struct {
	mu      sync.Mutex
	learned []string
	fail    map[string]bool
}

func (f *fakeLearner) BatchLearn(ctx context.Context, pairs []learning.Pair) (*learning.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res := &learning.BatchResult{}
	for _, p := range pairs {
		if f.fail[p.Decision.Ticker] {
			res.Failed++
			res.Failures = append(res.Failures, learning.BatchFailure{
				DecisionID: p.Decision.ID,
				Ticker:     p.Decision.Ticker,
				Error:      "state write failed",
			})
			continue
		}
		f.learned = append(f.learned, p.Decision.Ticker)
		res.Processed++
	}
	return res, nil
}

// ---- harness ----

const testUniverses = `
universes:
  - key: alpha
    name: Alpha
    tickers: [A.NS, B.NS, C.NS, D.NS]
  - key: beta
    name: Beta
    tickers: [E.NS, F.NS]
`

type harness struct {
	agent    *Agent
	store    *store.Store
	analyzer *fakeAnalyzer
	eval     *fakeEvaluator
	learner  *fakeLearner
	sleeps   []time.Duration
	sleepMu  sync.Mutex
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	cat, err := universe.Parse([]byte(testUniverses))
	require.NoError(t, err)

	h := &harness{
		store:    st,
		analyzer: newFakeAnalyzer(),
		eval:     &fakeEvaluator{fail: map[string]bool{}},
		learner:  &fakeLearner{},
	}
	h.agent = New(Deps{
		Analyzer:  h.analyzer,
		Evaluator: h.eval,
		Learner:   h.learner,
		Store:     st,
		Universes: cat,
	}, config.AgentConfig{
		ItemDelay:          time.Second,
		UniverseDelay:      2 * time.Second,
		OverdueThreshold:   3 * time.Hour,
		WarmupStocks:       2,
		BackgroundWorkers:  2,
		BatchWorkers:       2,
		LearningWindow:     30 * 24 * time.Hour,
		LearningBatchLimit: 30,
	}, logger.Nop())
	h.agent.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleepMu.Lock()
		h.sleeps = append(h.sleeps, d)
		h.sleepMu.Unlock()
		return ctx.Err()
	}
	return h
}

func (h *harness) activity(t *testing.T) []contracts.ActivityLogEntry {
	t.Helper()
	entries, err := h.store.RecentActivity(context.Background(), contracts.MaxActivityLog)
	require.NoError(t, err)
	return entries
}

func (h *harness) find(t *testing.T, action string) []contracts.ActivityLogEntry {
	t.Helper()
	var out []contracts.ActivityLogEntry
	for _, e := range h.activity(t) {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

// ---- scans ----

func TestRunAutoScan(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.set("A.NS", contracts.ActionBuy, 68.4)
	h.analyzer.set("B.NS", contracts.ActionStrongSell, 21)
	h.analyzer.set("D.NS", contracts.ActionHold, 50)

	res, err := h.agent.RunAutoScan(ctx, "alpha", 0)
	require.NoError(t, err)

	assert.False(t, res.Skipped)
	assert.Equal(t, 3, res.TotalScanned)
	assert.Equal(t, 1, res.Buys)
	assert.Equal(t, 1, res.Sells)
	assert.Equal(t, 1, res.Errors)
	require.Len(t, res.ErrorDetails, 1)
	assert.True(t, strings.HasPrefix(res.ErrorDetails[0], "C.NS: "))
	require.Len(t, res.TopBuys, 1)
	assert.Equal(t, "A.NS", res.TopBuys[0].Ticker)

	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, h.sleeps, "no pause after the last item")

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.False(t, st.InProgress)
	assert.Empty(t, st.CurrentUniverse)
	assert.Contains(t, st.LastScan, "alpha")
	assert.Equal(t, 1, st.TotalScansCompleted)
	assert.Equal(t, 3, st.TotalStocksAnalyzed)
	assert.Equal(t, 3, st.TotalDecisionsSaved)

	saved, err := h.store.ListDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, saved, 3)

	started := h.find(t, "SCAN_STARTED")
	require.Len(t, started, 1)
	assert.Equal(t, "Auto-scanning alpha (4 stocks)", started[0].Detail)

	buy := h.find(t, "SIGNAL_BUY")
	require.Len(t, buy, 1)
	assert.Equal(t, "A.NS: BUY (score: 68.4)", buy[0].Detail)
	assert.Equal(t, contracts.CategorySignal, buy[0].Category)
	assert.Len(t, h.find(t, "SIGNAL_STRONG_SELL"), 1)
	assert.Empty(t, h.find(t, "SIGNAL_HOLD"))

	prefetch := h.find(t, "SCAN_PREFETCH")
	require.Len(t, prefetch, 1)
	assert.Equal(t, "Cached Nifty index + 1 global indicators", prefetch[0].Detail)

	done := h.find(t, "SCAN_COMPLETE")
	require.Len(t, done, 1)
	assert.True(t, strings.HasPrefix(done[0].Detail, "alpha: 3 analyzed, 1 buys, 1 sells, 1 errors | First errors: C.NS: "))
}

func TestRunAutoScan_LimitAndUnknownUniverse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.agent.RunAutoScan(ctx, "alpha", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Errors)
	assert.Equal(t, 2, h.analyzer.callCount())

	_, err = h.agent.RunAutoScan(ctx, "gamma", 0)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestRunAutoScan_SkipsWhileAnotherScanRuns(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ok, _, err := h.store.TryBeginScan(ctx, "beta", time.Now())
	require.NoError(t, err)
	require.True(t, ok)

	res, err := h.agent.RunAutoScan(ctx, "alpha", 0)
	assert.True(t, errors.Is(err, contracts.ErrScanInProgress))
	require.NotNil(t, res)
	assert.True(t, res.Skipped)
	assert.Equal(t, "scan_in_progress", res.Reason)
	assert.Zero(t, h.analyzer.callCount())

	skipped := h.find(t, "SCAN_SKIPPED")
	require.Len(t, skipped, 1)
	assert.Equal(t, "Scan already in progress for beta", skipped[0].Detail)

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.True(t, st.InProgress, "the holder's flag is untouched")
	assert.Equal(t, "beta", st.CurrentUniverse)
}

func TestRunAutoScan_ConcurrentTriggers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.set("E.NS", contracts.ActionBuy, 70)
	h.analyzer.set("F.NS", contracts.ActionBuy, 72)
	h.analyzer.entered = make(chan struct{})
	h.analyzer.release = make(chan struct{})

	var wg sync.WaitGroup
	var first *contracts.ScanResult
	wg.Add(1)
	go func() {
		defer wg.Done()
		first, _ = h.agent.RunAutoScan(ctx, "beta", 0)
	}()

	<-h.analyzer.entered
	second, err := h.agent.RunAutoScan(ctx, "alpha", 0)
	assert.True(t, errors.Is(err, contracts.ErrScanInProgress))
	assert.True(t, second.Skipped)

	close(h.analyzer.release)
	wg.Wait()

	require.NotNil(t, first)
	assert.Equal(t, 2, first.TotalScanned)

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.False(t, st.InProgress)
	assert.Equal(t, 1, st.TotalScansCompleted)
}

func TestRunAutoScan_PanicReleasesFlag(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.panicOn = "prefetch"

	_, err := h.agent.RunAutoScan(ctx, "beta", 0)
	require.Error(t, err)

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.False(t, st.InProgress)
	assert.Contains(t, st.LastScan, "beta")
	assert.Len(t, h.find(t, "SCAN_ERROR"), 1)

	h.analyzer.panicOn = ""
	_, err = h.agent.RunAutoScan(ctx, "beta", 0)
	assert.NoError(t, err, "next scan can acquire the flag")
}

func TestRunAutoScan_ItemPanicIsCounted(t *testing.T) {
	h := newHarness(t)
	h.analyzer.set("E.NS", contracts.ActionHold, 50)
	h.analyzer.set("F.NS", contracts.ActionHold, 50)
	h.analyzer.panicOn = "E.NS"

	res, err := h.agent.RunAutoScan(context.Background(), "beta", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Errors)
	assert.Equal(t, 1, res.TotalScanned)
}

func TestRunAutoScan_PrefetchFailureLogged(t *testing.T) {
	h := newHarness(t)
	h.analyzer.benchmark = false

	_, err := h.agent.RunAutoScan(context.Background(), "beta", 0)
	require.NoError(t, err)
	errs := h.find(t, "SCAN_PREFETCH_ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, contracts.CategoryError, errs[0].Category)
}

func TestTopN(t *testing.T) {
	var list []contracts.Decision
	for i, s := range []float64{61, 75, 66, 90, 70, 64, 80} {
		list = append(list, *makeDecision(fmt.Sprintf("T%d.NS", i), contracts.ActionBuy, s, time.Now()))
	}

	top := topN(list, 5, true)
	scores := make([]float64, len(top))
	for i, d := range top {
		scores[i] = d.CompositeScore
	}
	assert.Equal(t, []float64{90, 80, 75, 70, 66}, scores)

	low := topN(list, 2, false)
	assert.Equal(t, 61.0, low[0].CompositeScore)
	assert.Equal(t, 64.0, low[1].CompositeScore)

	assert.NotNil(t, topN(nil, 5, true))
}

func TestRunNextRotation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, h.agent.RunNextRotation(ctx))
	}

	var got []string
	for _, e := range h.find(t, "SCAN_STARTED") {
		got = append(got, strings.Fields(e.Detail)[1])
	}
	assert.Equal(t, []string{"alpha", "beta", "alpha"}, got)
}

func TestScanAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	results, err := h.agent.ScanAll(ctx)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	done := h.find(t, "FULL_SCAN_COMPLETE")
	require.Len(t, done, 1)
	assert.Equal(t, "All universes scanned: [alpha, beta]", done[0].Detail)

	universePauses := 0
	for _, d := range h.sleeps {
		if d == 2*time.Second {
			universePauses++
		}
	}
	assert.Equal(t, 1, universePauses)

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.TotalScansCompleted)
}

func TestScanTickers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.hold = 20 * time.Millisecond
	h.analyzer.set("A.NS", contracts.ActionBuy, 66)
	h.analyzer.set("B.NS", contracts.ActionStrongBuy, 81)
	h.analyzer.set("C.NS", contracts.ActionSell, 38)
	h.analyzer.set("D.NS", contracts.ActionHold, 50)
	h.analyzer.set("E.NS", contracts.ActionStrongSell, 20)
	h.analyzer.set("F.NS", contracts.ActionBuy, 70)

	res, err := h.agent.ScanTickers(ctx, []string{"A.NS", "B.NS", "C.NS", "D.NS", "E.NS", "F.NS", "X.NS"}, 2, false)
	require.NoError(t, err)

	assert.Equal(t, 6, res.TotalScanned)
	require.Len(t, res.Errors, 1)
	assert.True(t, strings.HasPrefix(res.Errors[0], "X.NS: "))

	var order []string
	for _, d := range res.AllResults {
		order = append(order, d.Ticker)
	}
	assert.Equal(t, []string{"B.NS", "F.NS", "A.NS", "D.NS", "C.NS", "E.NS"}, order)

	require.Len(t, res.TopBuys, 2)
	assert.Equal(t, "B.NS", res.TopBuys[0].Ticker)
	assert.Equal(t, "F.NS", res.TopBuys[1].Ticker)
	require.Len(t, res.TopSells, 2)
	assert.Equal(t, "C.NS", res.TopSells[0].Ticker)
	assert.Len(t, res.Holds, 1)

	assert.LessOrEqual(t, atomic.LoadInt32(&h.analyzer.maxInFlight), int32(2))

	saved, err := h.store.ListDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	assert.Empty(t, saved)

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.False(t, st.InProgress)
	assert.Zero(t, st.TotalScansCompleted)

	_, err = h.agent.ScanTickers(ctx, []string{"A.NS"}, 5, true)
	require.NoError(t, err)
	saved, err = h.store.ListDecisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	assert.Len(t, saved, 1)
}

// ---- learning ----

func seed(t *testing.T, st *store.Store, d *contracts.Decision) {
	t.Helper()
	require.NoError(t, st.SaveDecision(context.Background(), d))
}

func TestLearn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	h.agent.now = func() time.Time { return now }
	h.agent.cfg.LearningBatchLimit = 3

	seed(t, h.store, makeDecision("OLD.NS", contracts.ActionBuy, 70, now.AddDate(0, 0, -40)))
	seed(t, h.store, makeDecision("R1.NS", contracts.ActionBuy, 70, now.AddDate(0, 0, -10)))
	seed(t, h.store, makeDecision("HOLD.NS", contracts.ActionHold, 50, now.AddDate(0, 0, -9)))
	seed(t, h.store, makeDecision("R2.NS", contracts.ActionSell, 35, now.AddDate(0, 0, -8)))
	seed(t, h.store, makeDecision("R3.NS", contracts.ActionBuy, 66, now.AddDate(0, 0, -7)))
	seed(t, h.store, makeDecision("R4.NS", contracts.ActionStrongBuy, 80, now.AddDate(0, 0, -6)))
	h.eval.fail["R3.NS"] = true

	run, err := h.agent.Learn(ctx)
	require.NoError(t, err)

	assert.False(t, run.Skipped)
	assert.Equal(t, 2, run.Evaluated)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, []string{"R2.NS", "R4.NS"}, h.learner.learned, "last 3 actionable in window, R3 fails")

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.LearningCycles)

	r4, err := h.store.ListDecisions(ctx, store.DecisionFilter{Ticker: "R4.NS"})
	require.NoError(t, err)
	require.Len(t, r4, 1)
	require.NotNil(t, r4[0].Evaluation)
	assert.Equal(t, 5.0, r4[0].Evaluation.PnLPct)

	done := h.find(t, "LEARNING_COMPLETE")
	require.Len(t, done, 1)
	assert.Equal(t, "Evaluated 2 decisions, 1 failed", done[0].Detail)

	errs := h.find(t, "LEARNING_ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, contracts.CategoryError, errs[0].Category)
	assert.True(t, strings.HasPrefix(errs[0].Detail, "R3.NS: "), errs[0].Detail)
}

func TestLearn_RecordsLearnerFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	seed(t, h.store, makeDecision("OK.NS", contracts.ActionBuy, 70, now.Add(-2*time.Hour)))
	seed(t, h.store, makeDecision("BAD.NS", contracts.ActionSell, 35, now.Add(-time.Hour)))
	h.learner.fail = map[string]bool{"BAD.NS": true}

	run, err := h.agent.Learn(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, run.Evaluated)
	assert.Equal(t, 1, run.Failed)

	errs := h.find(t, "LEARNING_ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, "BAD.NS: state write failed", errs[0].Detail)

	done := h.find(t, "LEARNING_COMPLETE")
	require.Len(t, done, 1)
	assert.Equal(t, "Evaluated 1 decisions, 1 failed", done[0].Detail)

	// no evaluation is attached to a decision the learner rejected
	bad, err := h.store.ListDecisions(ctx, store.DecisionFilter{Ticker: "BAD.NS"})
	require.NoError(t, err)
	require.Len(t, bad, 1)
	assert.Nil(t, bad[0].Evaluation)

	ok, err := h.store.ListDecisions(ctx, store.DecisionFilter{Ticker: "OK.NS"})
	require.NoError(t, err)
	require.Len(t, ok, 1)
	assert.NotNil(t, ok[0].Evaluation)
}

func TestLearn_Skips(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	now := time.Now().UTC()

	run, err := h.agent.Learn(ctx)
	require.NoError(t, err)
	assert.True(t, run.Skipped)
	assert.Equal(t, "no_decisions", run.Reason)

	seed(t, h.store, makeDecision("HOLD.NS", contracts.ActionHold, 50, now.Add(-time.Hour)))
	run, err = h.agent.Learn(ctx)
	require.NoError(t, err)
	assert.Equal(t, "no_recent_actionable", run.Reason)

	skipped := h.find(t, "LEARNING_SKIPPED")
	require.Len(t, skipped, 2)
	assert.Equal(t, "No decisions to learn from", skipped[0].Detail)
	assert.Equal(t, "No recent actionable decisions to evaluate", skipped[1].Detail)

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.Zero(t, st.LearningCycles)
}

func TestEvaluateLatest(t *testing.T) {
	h := newHarness(t)
	now := time.Now().UTC()
	seed(t, h.store, makeDecision("A.NS", contracts.ActionHold, 50, now.AddDate(0, 0, -60)))
	seed(t, h.store, makeDecision("B.NS", contracts.ActionBuy, 70, now.AddDate(0, 0, -1)))

	run, err := h.agent.EvaluateLatest(context.Background(), 50)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Evaluated)
	assert.Equal(t, []string{"A.NS", "B.NS"}, h.learner.learned)
}

// ---- overdue ----

func TestPickOverdue(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	keys := []string{"a", "b", "c"}

	tests := []struct {
		name string
		last map[string]time.Time
		want string
		ok   bool
	}{
		{"never scanned wins", map[string]time.Time{"a": now.Add(-10 * time.Hour)}, "b", true},
		{"first never scanned", map[string]time.Time{}, "a", true},
		{"most overdue", map[string]time.Time{
			"a": now.Add(-4 * time.Hour), "b": now.Add(-8 * time.Hour), "c": now.Add(-time.Hour),
		}, "b", true},
		{"all recent", map[string]time.Time{
			"a": now.Add(-time.Hour), "b": now.Add(-2 * time.Hour), "c": now.Add(-3 * time.Hour),
		}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := PickOverdue(keys, tt.last, now, 3*time.Hour)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestCheckOverdue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.agent.CheckOverdue(ctx)

	warm := h.find(t, "WARMUP_SCAN")
	require.Len(t, warm, 1)
	assert.Contains(t, warm[0].Detail, "alpha")
	assert.Equal(t, 2, h.analyzer.callCount(), "warm-up scans WarmupStocks instruments")

	_, err := h.store.UpdateScanState(ctx, func(st *contracts.ScanState) error {
		st.LastScan["beta"] = time.Now().UTC()
		return nil
	})
	require.NoError(t, err)

	h.agent.CheckOverdue(ctx)
	assert.Len(t, h.find(t, "WARMUP_SKIP"), 1)
}

func TestNormalizeTicker(t *testing.T) {
	assert.Equal(t, "TCS.NS", NormalizeTicker("tcs"))
	assert.Equal(t, "TCS.NS", NormalizeTicker("TCS.NS"))
	assert.Equal(t, "500325.BO", NormalizeTicker("500325.BO"))
	assert.Equal(t, "M&M.NS", NormalizeTicker(" m&m "))
}

// ---- lifecycle and background tasks ----

func markAllScanned(t *testing.T, h *harness) {
	t.Helper()
	_, err := h.store.UpdateScanState(context.Background(), func(st *contracts.ScanState) error {
		for _, k := range h.agent.universes.Keys() {
			st.LastScan[k] = time.Now().UTC()
		}
		return nil
	})
	require.NoError(t, err)
}

func TestStartStop(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	markAllScanned(t, h)

	ok, _, err := h.store.TryBeginScan(ctx, "alpha", time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, h.store.CreateTask(ctx, contracts.BackgroundTask{
		ID: "stale", Ticker: "A.NS", Status: contracts.TaskQueued, SubmittedAt: time.Now(),
	}))
	_, err = h.store.TransitionTask(ctx, "stale", func(bt *contracts.BackgroundTask) {
		bt.Status = contracts.TaskRunning
	})
	require.NoError(t, err)

	require.NoError(t, h.agent.Start(ctx))
	require.NoError(t, h.agent.Start(ctx), "second start is a no-op")

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.False(t, st.InProgress, "stale flag cleared")
	assert.NotNil(t, st.AgentStartedAt)

	stale, err := h.store.GetTask(ctx, "stale")
	require.NoError(t, err)
	assert.Equal(t, contracts.TaskError, stale.Status)

	jobs := h.agent.Jobs()
	require.Len(t, jobs, 3)
	assert.Equal(t, "auto_learning", jobs[0].ID)

	status, err := h.agent.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.SchedulerRunning)
	assert.False(t, status.IsRunning)

	require.Eventually(t, func() bool {
		return len(h.find(t, "WARMUP_SKIP")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	h.agent.Stop()
	assert.False(t, h.agent.Running())
	assert.Len(t, h.find(t, "AGENT_STARTED"), 1)
	assert.Len(t, h.find(t, "AGENT_STOPPED"), 1)

	status, err = h.agent.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.SchedulerRunning)
	assert.LessOrEqual(t, len(status.RecentActivity), contracts.RecentActivityView)
}

func TestRunJob(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	markAllScanned(t, h)

	require.NoError(t, h.agent.Start(ctx))
	defer h.agent.Stop()

	err := h.agent.RunJob(ctx, "nope")
	assert.True(t, errors.Is(err, contracts.ErrNotFound))

	require.NoError(t, h.agent.RunJob(ctx, "auto_learning"))

	var history []scheduler.JobResult
	require.Eventually(t, func() bool {
		history, err = h.agent.JobHistory("auto_learning", 0)
		return err == nil && len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, history[0].Success)

	assert.Len(t, h.find(t, "JOB_TRIGGERED"), 1)
	assert.Len(t, h.find(t, "LEARNING_SKIPPED"), 1, "empty store has nothing to learn from")

	_, err = h.agent.JobHistory("nope", 0)
	assert.True(t, errors.Is(err, contracts.ErrNotFound))
}

func TestSubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	markAllScanned(t, h)
	h.analyzer.set("A.NS", contracts.ActionBuy, 67.24)

	_, err := h.agent.Submit(ctx, "A.NS")
	assert.True(t, errors.Is(err, ErrNotRunning))

	var streamed []string
	var mu sync.Mutex
	h.agent.OnActivity(func(e contracts.ActivityLogEntry) {
		mu.Lock()
		streamed = append(streamed, e.Action)
		mu.Unlock()
	})

	require.NoError(t, h.agent.Start(ctx))
	defer h.agent.Stop()

	okID, err := h.agent.Submit(ctx, "A.NS")
	require.NoError(t, err)
	badID, err := h.agent.Submit(ctx, "NOPE.NS")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		tasks, err := h.agent.Tasks(ctx)
		if err != nil {
			return false
		}
		terminal := 0
		for _, task := range tasks {
			if task.Status.IsTerminal() {
				terminal++
			}
		}
		return terminal == 2
	}, 2*time.Second, 10*time.Millisecond)

	done, err := h.agent.Task(ctx, okID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TaskDone, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, contracts.ActionBuy, done.Result.Action)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	failed, err := h.agent.Task(ctx, badID)
	require.NoError(t, err)
	assert.Equal(t, contracts.TaskError, failed.Status)
	assert.Contains(t, failed.Error, "data unavailable")
	assert.Nil(t, failed.Result)

	saved, err := h.store.ListDecisions(ctx, store.DecisionFilter{Ticker: "A.NS"})
	require.NoError(t, err)
	assert.Len(t, saved, 1)

	complete := h.find(t, "ANALYSIS_COMPLETE")
	require.Len(t, complete, 1)
	assert.Equal(t, "A.NS: BUY (score: 67.2, confidence: 60%)", complete[0].Detail)
	assert.Len(t, h.find(t, "ANALYSIS_ERROR"), 1)
	assert.Len(t, h.find(t, "ANALYSIS_QUEUED"), 2)

	mu.Lock()
	assert.Contains(t, streamed, "ANALYSIS_QUEUED")
	mu.Unlock()
}

func TestAnalyze(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.analyzer.set("A.NS", contracts.ActionSell, 31)

	d, err := h.agent.Analyze(ctx, "A.NS", false)
	require.NoError(t, err)
	assert.Equal(t, contracts.ActionSell, d.Action)

	list, err := h.agent.Decisions(ctx, store.DecisionFilter{})
	require.NoError(t, err)
	assert.Empty(t, list)

	_, err = h.agent.Analyze(ctx, "A.NS", true)
	require.NoError(t, err)
	list, err = h.agent.Decisions(ctx, store.DecisionFilter{Ticker: "A.NS"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = h.agent.Analyze(ctx, "NOPE.NS", true)
	assert.True(t, errors.Is(err, contracts.ErrDataUnavailable))

	st, err := h.store.ScanState(ctx)
	require.NoError(t, err)
	assert.False(t, st.InProgress)
}
