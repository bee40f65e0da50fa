package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/store"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/logger"
)

const (
	defaultDecisionLimit = 50
	maxDecisionLimit     = 500
	defaultScanTopN      = 10
)

// DecisionService analyzes instruments and reads the decision record
type DecisionService interface {
	Analyze(ctx context.Context, ticker string, save bool) (*contracts.Decision, error)
	ScanTickers(ctx context.Context, tickers []string, topN int, save bool) (*agent.BatchScan, error)
	Decisions(ctx context.Context, f store.DecisionFilter) ([]contracts.Decision, error)
	Universes() *universe.Catalogue
}

// DecisionHandler handles analysis and decision history requests
type DecisionHandler struct {
	svc    DecisionService
	logger *logger.Logger
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(svc DecisionService, log *logger.Logger) *DecisionHandler {
	return &DecisionHandler{
		svc:    svc,
		logger: log.WithComponent("api.decisions"),
	}
}

// Analyze runs the full pipeline on one instrument
// GET /api/analyze/{ticker}?save=true
func (h *DecisionHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	ticker := agent.NormalizeTicker(mux.Vars(r)["ticker"])

	save := true
	if raw := r.URL.Query().Get("save"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'save' (expected true or false)")
			return
		}
		save = v
	}

	d, err := h.svc.Analyze(r.Context(), ticker, save)
	if err != nil {
		h.logger.WithError(err).WithField("ticker", ticker).Warn("Analysis failed")
		// 분석 실패는 원인과 무관하게 404 (데이터 없음과 동일 취급)
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, d)
}

// ScanRequest is the body of an ad-hoc scan
type ScanRequest struct {
	Tickers []string `json:"tickers"`
	TopN    int      `json:"top_n"`
	Save    bool     `json:"save"`
}

// Scan analyzes a ticker list and returns top recommendations. The list
// defaults to the first catalogue universe.
// POST /api/scan
func (h *DecisionHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.TopN == 0 {
		req.TopN = defaultScanTopN
	}
	if req.TopN < 0 {
		respondError(w, http.StatusBadRequest, "top_n must be positive")
		return
	}

	tickers := req.Tickers
	if len(tickers) == 0 {
		cat := h.svc.Universes()
		if cat.Len() == 0 {
			respondError(w, http.StatusBadRequest, "tickers is required")
			return
		}
		tickers = cat.At(0).Tickers
	}

	res, err := h.svc.ScanTickers(r.Context(), tickers, req.TopN, req.Save)
	if err != nil {
		h.logger.WithError(err).Error("Scan failed")
		respondError(w, http.StatusInternalServerError, "Scan failed")
		return
	}

	h.logger.WithFields(map[string]interface{}{
		"requested": len(tickers),
		"scanned":   res.TotalScanned,
	}).Info("Ad-hoc scan complete")

	respondJSON(w, http.StatusOK, res)
}

// WatchlistRequest is the body of a quick scan
type WatchlistRequest struct {
	Tickers []string `json:"tickers"`
}

// QuickScan analyzes a custom watchlist and returns every result by score
// POST /api/scan/quick
func (h *DecisionHandler) QuickScan(w http.ResponseWriter, r *http.Request) {
	var req WatchlistRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Tickers) == 0 {
		respondError(w, http.StatusBadRequest, "tickers is required")
		return
	}

	tickers := make([]string, len(req.Tickers))
	for i, t := range req.Tickers {
		tickers[i] = agent.NormalizeTicker(t)
	}

	res, err := h.svc.ScanTickers(r.Context(), tickers, len(tickers), false)
	if err != nil {
		h.logger.WithError(err).Error("Quick scan failed")
		respondError(w, http.StatusInternalServerError, "Quick scan failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"results": res.AllResults,
	})
}

// GetDecisions returns the persisted decision history (newest limit, oldest first)
// GET /api/decisions?limit=50&ticker=X
func (h *DecisionHandler) GetDecisions(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultDecisionLimit, maxDecisionLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxDecisionLimit))
		return
	}

	filter := store.DecisionFilter{}
	if ticker := r.URL.Query().Get("ticker"); ticker != "" {
		filter.Ticker = agent.NormalizeTicker(ticker)
	}

	decisions, err := h.svc.Decisions(r.Context(), filter)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list decisions")
		respondError(w, http.StatusInternalServerError, "Failed to list decisions")
		return
	}

	total := len(decisions)
	if total > limit {
		decisions = decisions[total-limit:]
	}
	if decisions == nil {
		decisions = []contracts.Decision{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"total":     total,
		"decisions": decisions,
	})
}
