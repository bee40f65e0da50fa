package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/learning"
	"github.com/wonny/tradeloop/pkg/logger"
)

const (
	evaluateBatch        = 50
	defaultHistoryLimit  = 20
	maxWeightHistoryView = contracts.MaxWeightHistory
)

// LearningReader exposes the learning state
type LearningReader interface {
	Summary(ctx context.Context) (*learning.Summary, error)
	AdaptedWeights(ctx context.Context) contracts.WeightSet
	WeightHistory(ctx context.Context, limit int) ([]contracts.WeightSnapshot, error)
}

// LearningTrigger runs an on-demand evaluation pass
type LearningTrigger interface {
	EvaluateLatest(ctx context.Context, limit int) (*agent.LearningRun, error)
}

// LearningHandler handles learning engine requests
type LearningHandler struct {
	reader  LearningReader
	trigger LearningTrigger
	logger  *logger.Logger
}

// NewLearningHandler creates a new learning handler
func NewLearningHandler(reader LearningReader, trigger LearningTrigger, log *logger.Logger) *LearningHandler {
	return &LearningHandler{
		reader:  reader,
		trigger: trigger,
		logger:  log.WithComponent("api.learning"),
	}
}

// GetSummary returns the learning digest
// GET /api/learning
func (h *LearningHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.reader.Summary(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load learning summary")
		respondError(w, http.StatusInternalServerError, "Failed to load learning summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// Evaluate evaluates the newest decisions and returns the updated digest
// POST /api/learning/evaluate
func (h *LearningHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	run, err := h.trigger.EvaluateLatest(r.Context(), evaluateBatch)
	if err != nil {
		h.logger.WithError(err).Error("Learning evaluation failed")
		respondError(w, http.StatusInternalServerError, "Learning evaluation failed")
		return
	}
	if run.Skipped {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"error": "No decisions to learn from",
		})
		return
	}

	summary, err := h.reader.Summary(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load learning summary")
		respondError(w, http.StatusInternalServerError, "Failed to load learning summary")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"evaluated": run.Evaluated,
		"failed":    run.Failed,
		"summary":   summary,
	})
}

// GetWeights returns the current adapted weights and recent snapshots
// GET /api/learning/weights?limit=20
func (h *LearningHandler) GetWeights(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultHistoryLimit, maxWeightHistoryView)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxWeightHistoryView))
		return
	}

	history, err := h.reader.WeightHistory(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load weight history")
		respondError(w, http.StatusInternalServerError, "Failed to load weight history")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"current": h.reader.AdaptedWeights(r.Context()),
		"history": history,
	})
}
