package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/api/handlers"
	"github.com/wonny/tradeloop/internal/marketdata"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/logger"
)

func testRouter() http.Handler {
	log := logger.Nop()
	cat := &universe.Catalogue{Universes: []universe.Universe{{Key: "nifty50", Tickers: []string{"A.NS"}}}}
	return NewRouter(Handlers{
		Agent:     handlers.NewAgentHandler(nil, context.Background(), log),
		Decisions: handlers.NewDecisionHandler(nil, log),
		Learning:  handlers.NewLearningHandler(nil, nil, log),
		Market:    handlers.NewMarketHandler(marketdata.NewMemory(), cat, log),
	}, log)
}

func TestRouter_Health(t *testing.T) {
	r := testRouter()

	for _, path := range []string{"/", "/health"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
		require.Equal(t, http.StatusOK, rec.Code, path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "tradeloop", body["service"])
	}
}

func TestRouter_Routes(t *testing.T) {
	r := testRouter()

	tests := []struct {
		method string
		path   string
		code   int
	}{
		{"GET", "/api/universe", http.StatusOK},
		{"GET", "/api/universes/nifty50", http.StatusOK},
		{"GET", "/api/macro", http.StatusOK},
		{"GET", "/api/decisions?limit=0", http.StatusBadRequest},
		{"GET", "/api/scan", http.StatusMethodNotAllowed},
		{"GET", "/api/nope", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))
		assert.Equal(t, tt.code, rec.Code, tt.method+" "+tt.path)
	}
}

func TestRouter_RecoversPanics(t *testing.T) {
	r := testRouter()

	// nil learning reader panics inside the handler
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/learning", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Internal server error")
}
