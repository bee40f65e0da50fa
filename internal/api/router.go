package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/tradeloop/internal/api/handlers"
	"github.com/wonny/tradeloop/pkg/logger"
)

const serviceName = "tradeloop"

// Handlers groups every endpoint handler the router mounts
type Handlers struct {
	Agent     *handlers.AgentHandler
	Decisions *handlers.DecisionHandler
	Learning  *handlers.LearningHandler
	Market    *handlers.MarketHandler
	Stream    http.Handler
}

// NewRouter creates and configures the HTTP router
// ⭐ SSOT: 라우팅 설정은 이 함수에서만
func NewRouter(h Handlers, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/", rootHandler).Methods("GET")
	r.HandleFunc("/health", healthCheckHandler).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// Analysis
	api.HandleFunc("/analyze/{ticker}", h.Decisions.Analyze).Methods("GET")
	api.HandleFunc("/scan", h.Decisions.Scan).Methods("POST")
	api.HandleFunc("/scan/quick", h.Decisions.QuickScan).Methods("POST")
	api.HandleFunc("/decisions", h.Decisions.GetDecisions).Methods("GET")

	// Market
	api.HandleFunc("/macro", h.Market.GetMacro).Methods("GET")
	api.HandleFunc("/info/{ticker}", h.Market.GetInfo).Methods("GET")
	api.HandleFunc("/universe", h.Market.GetUniverse).Methods("GET")
	api.HandleFunc("/universes", h.Market.GetUniverses).Methods("GET")
	api.HandleFunc("/universes/{key}", h.Market.GetUniverseByKey).Methods("GET")

	// Learning
	api.HandleFunc("/learning", h.Learning.GetSummary).Methods("GET")
	api.HandleFunc("/learning/evaluate", h.Learning.Evaluate).Methods("POST")
	api.HandleFunc("/learning/weights", h.Learning.GetWeights).Methods("GET")

	// Agent
	api.HandleFunc("/agent/status", h.Agent.GetStatus).Methods("GET")
	api.HandleFunc("/agent/activity", h.Agent.GetActivity).Methods("GET")
	api.HandleFunc("/agent/jobs", h.Agent.GetJobs).Methods("GET")
	api.HandleFunc("/agent/jobs/{name}", h.Agent.GetJobHistory).Methods("GET")
	api.HandleFunc("/agent/jobs/{name}/run", h.Agent.RunJob).Methods("POST")
	api.HandleFunc("/agent/scan/{universe}", h.Agent.TriggerScan).Methods("POST")
	api.HandleFunc("/agent/analyze/{ticker}", h.Agent.SubmitAnalysis).Methods("POST")
	api.HandleFunc("/agent/tasks", h.Agent.GetTasks).Methods("GET")
	api.HandleFunc("/agent/tasks/{id}", h.Agent.GetTask).Methods("GET")
	if h.Stream != nil {
		api.Handle("/agent/stream", h.Stream).Methods("GET")
	}

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// rootHandler describes the service
func rootHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"service": serviceName,
		"status":  "running",
		"endpoints": []string{
			"/api/analyze/{ticker}",
			"/api/scan",
			"/api/decisions",
			"/api/macro",
			"/api/learning",
			"/api/agent/status",
		},
	})
}

// healthCheckHandler returns server health status
func healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "ok",
		"service": serviceName,
	})
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			next.ServeHTTP(w, r)

			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
