package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/wonny/tradeloop/internal/agent"
	"github.com/wonny/tradeloop/internal/contracts"
	"github.com/wonny/tradeloop/internal/scheduler"
	"github.com/wonny/tradeloop/internal/universe"
	"github.com/wonny/tradeloop/pkg/logger"
)

const (
	defaultActivityLimit = 50
	maxActivityLimit     = contracts.MaxActivityLog

	defaultJobHistoryLimit = 20
	maxJobHistoryLimit     = 100
)

// AgentService is the agent surface the monitoring endpoints read and trigger
type AgentService interface {
	Status(ctx context.Context) (*agent.Status, error)
	Activity(ctx context.Context, limit int) ([]contracts.ActivityLogEntry, error)
	Jobs() []scheduler.JobInfo
	JobStats() map[string]scheduler.JobStats
	JobHistory(name string, limit int) ([]scheduler.JobResult, error)
	RunJob(ctx context.Context, name string) error
	Universes() *universe.Catalogue
	RunAutoScan(ctx context.Context, key string, limit int) (*contracts.ScanResult, error)
	Submit(ctx context.Context, ticker string) (string, error)
	Task(ctx context.Context, id string) (*contracts.BackgroundTask, error)
	Tasks(ctx context.Context) ([]contracts.BackgroundTask, error)
}

// AgentHandler handles agent monitoring and trigger requests
type AgentHandler struct {
	agent  AgentService
	base   context.Context
	logger *logger.Logger
}

// NewAgentHandler creates a new agent handler. Triggered scans run on base so
// they outlive the request.
func NewAgentHandler(svc AgentService, base context.Context, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		agent:  svc,
		base:   base,
		logger: log.WithComponent("api.agent"),
	}
}

// GetStatus returns scan state and recent activity
// GET /api/agent/status
func (h *AgentHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.agent.Status(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load agent status")
		respondError(w, http.StatusInternalServerError, "Failed to load agent status")
		return
	}
	respondJSON(w, http.StatusOK, status)
}

// GetActivity returns the newest activity entries, oldest first
// GET /api/agent/activity?limit=50
func (h *AgentHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(r, defaultActivityLimit, maxActivityLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxActivityLimit))
		return
	}

	entries, err := h.agent.Activity(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load activity")
		respondError(w, http.StatusInternalServerError, "Failed to load activity")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(entries),
		"activity": entries,
	})
}

// GetJobs lists the recurring jobs with next run times and statistics
// GET /api/agent/jobs
func (h *AgentHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  h.agent.Jobs(),
		"stats": h.agent.JobStats(),
	})
}

// GetJobHistory returns one job's recent runs
// GET /api/agent/jobs/{name}?limit=20
func (h *AgentHandler) GetJobHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	limit, ok := parseLimit(r, defaultJobHistoryLimit, maxJobHistoryLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, "limit must be between 1 and "+strconv.Itoa(maxJobHistoryLimit))
		return
	}

	history, err := h.agent.JobHistory(name, limit)
	if err != nil {
		respondError(w, statusFor(err), "Unknown job: "+name)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"job":     name,
		"count":   len(history),
		"history": history,
		"stats":   h.agent.JobStats()[name],
	})
}

// RunJob triggers a recurring job outside its schedule
// POST /api/agent/jobs/{name}/run
func (h *AgentHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.agent.RunJob(r.Context(), name); err != nil {
		switch status := statusFor(err); status {
		case http.StatusNotFound:
			respondError(w, status, "Unknown job: "+name)
		case http.StatusConflict:
			respondJSON(w, status, map[string]interface{}{
				"status": "skipped",
				"reason": "job_running",
				"job":    name,
			})
		default:
			h.logger.WithError(err).WithField("job", name).Error("Failed to trigger job")
			respondError(w, status, "Failed to trigger job")
		}
		return
	}

	h.logger.WithField("job", name).Info("Job triggered")
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
		"job":    name,
	})
}

// TriggerScan starts a universe scan in the background
// POST /api/agent/scan/{universe}
func (h *AgentHandler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["universe"]

	if _, err := h.agent.Universes().Get(key); err != nil {
		respondError(w, http.StatusNotFound, "Unknown universe: "+key)
		return
	}

	status, err := h.agent.Status(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to load agent status")
		respondError(w, http.StatusInternalServerError, "Failed to load agent status")
		return
	}
	if status.IsRunning {
		respondJSON(w, http.StatusConflict, map[string]interface{}{
			"status":   "skipped",
			"reason":   "scan_in_progress",
			"universe": status.State.CurrentUniverse,
		})
		return
	}

	go func() {
		if _, err := h.agent.RunAutoScan(h.base, key, 0); err != nil && !errors.Is(err, contracts.ErrScanInProgress) {
			h.logger.WithError(err).WithField("universe", key).Error("Triggered scan failed")
		}
	}()

	h.logger.WithField("universe", key).Info("Scan triggered")
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":   "started",
		"universe": key,
	})
}

// SubmitAnalysis queues a background single-instrument analysis
// POST /api/agent/analyze/{ticker}
func (h *AgentHandler) SubmitAnalysis(w http.ResponseWriter, r *http.Request) {
	ticker := agent.NormalizeTicker(mux.Vars(r)["ticker"])

	id, err := h.agent.Submit(r.Context(), ticker)
	if err != nil {
		if errors.Is(err, agent.ErrNotRunning) {
			respondError(w, http.StatusServiceUnavailable, "Agent is not running")
			return
		}
		h.logger.WithError(err).WithField("ticker", ticker).Error("Failed to queue analysis")
		respondError(w, http.StatusInternalServerError, "Failed to queue analysis")
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"task_id": id,
		"ticker":  ticker,
		"status":  contracts.TaskQueued,
	})
}

// GetTasks lists retained background tasks
// GET /api/agent/tasks
func (h *AgentHandler) GetTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.agent.Tasks(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tasks")
		respondError(w, http.StatusInternalServerError, "Failed to list tasks")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(tasks),
		"tasks": tasks,
	})
}

// GetTask returns one background task
// GET /api/agent/tasks/{id}
func (h *AgentHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	task, err := h.agent.Task(r.Context(), id)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			respondError(w, status, "Task not found")
			return
		}
		h.logger.WithError(err).WithField("task_id", id).Error("Failed to load task")
		respondError(w, status, "Failed to load task")
		return
	}
	respondJSON(w, http.StatusOK, task)
}
