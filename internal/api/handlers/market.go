package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/marketdata"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/logger"
)

// MarketHandler serves macro indicators, instrument info and the universe catalogue
type MarketHandler struct {
	md        contracts.MarketData
	universes *universe.Catalogue
	logger    *logger.Logger
}

// NewMarketHandler creates a new market handler
func NewMarketHandler(md contracts.MarketData, universes *universe.Catalogue, log *logger.Logger) *MarketHandler {
	return &MarketHandler{
		md:        md,
		universes: universes,
		logger:    log.WithComponent("api.market"),
	}
}

// GetMacro returns the global indicators with a quick interpretation
// GET /api/macro
func (h *MarketHandler) GetMacro(w http.ResponseWriter, r *http.Request) {
	ind, err := h.md.GlobalIndicators(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to fetch global indicators")
		respondError(w, http.StatusBadGateway, "Failed to fetch global indicators")
		return
	}
	if ind == nil {
		ind = contracts.GlobalIndicators{}
	}

	signals := marketdata.Interpret(ind)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"indicators": ind,
		"analysis": map[string]interface{}{
			"signals": signals,
			"count":   len(signals),
		},
	})
}

// GetInfo returns fundamental info for one instrument
// GET /api/info/{ticker}
func (h *MarketHandler) GetInfo(w http.ResponseWriter, r *http.Request) {
	ticker := agent.NormalizeTicker(mux.Vars(r)["ticker"])

	info, err := h.md.Info(r.Context(), ticker)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			status = http.StatusBadGateway
		}
		h.logger.WithError(err).WithField("ticker", ticker).Warn("Failed to fetch instrument info")
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// GetUniverse returns the default universe (first in the catalogue)
// GET /api/universe
func (h *MarketHandler) GetUniverse(w http.ResponseWriter, r *http.Request) {
	tickers := []string{}
	if h.universes.Len() > 0 {
		tickers = h.universes.At(0).Tickers
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"tickers": tickers,
		"count":   len(tickers),
	})
}

// GetUniverses returns the whole catalogue in rotation order
// GET /api/universes
func (h *MarketHandler) GetUniverses(w http.ResponseWriter, r *http.Request) {
	type entry struct {
		Key   string `json:"key"`
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	list := make([]entry, 0, h.universes.Len())
	for _, u := range h.universes.Universes {
		list = append(list, entry{Key: u.Key, Name: u.Name, Count: len(u.Tickers)})
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"universes": list,
		"count":     len(list),
	})
}

// GetUniverseByKey returns one universe with its tickers
// GET /api/universes/{key}
func (h *MarketHandler) GetUniverseByKey(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	u, err := h.universes.Get(key)
	if err != nil {
		respondError(w, http.StatusNotFound, "Unknown universe: "+key)
		return
	}
	respondJSON(w, http.StatusOK, u)
}
