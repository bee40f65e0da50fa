package contracts

import "time"

// Agent caps
const (
	MaxActivityLog     = 500
	MaxCompletedTasks  = 100
	RecentActivityView = 10
)

// ScanState is the persisted agent run state. At most one scan holds
// InProgress at a time; the flag only changes through compare-and-set.
type ScanState struct {
	InProgress          bool                 `json:"scan_in_progress"`
	CurrentUniverse     string               `json:"current_scan_universe,omitempty"`
	ScanStartedAt       *time.Time           `json:"scan_started_at,omitempty"`
	LastScan            map[string]time.Time `json:"last_scan"`
	TotalScansCompleted int                  `json:"total_scans_completed"`
	TotalStocksAnalyzed int                  `json:"total_stocks_analyzed"`
	TotalDecisionsSaved int                  `json:"total_decisions_saved"`
	LearningCycles      int                  `json:"learning_cycles"`
	AgentStartedAt      *time.Time           `json:"agent_started_at,omitempty"`
}

// NewScanState returns an idle state
func NewScanState() *ScanState {
	return &ScanState{LastScan: make(map[string]time.Time)}
}

// ActivityCategory groups activity entries for monitoring
type ActivityCategory string

const (
	CategoryScan     ActivityCategory = "scan"
	CategorySignal   ActivityCategory = "signal"
	CategoryLearning ActivityCategory = "learning"
	CategoryAnalysis ActivityCategory = "analysis"
	CategoryError    ActivityCategory = "error"
	CategorySystem   ActivityCategory = "system"
)

// ActivityLogEntry is one domain activity record
type ActivityLogEntry struct {
	Timestamp time.Time        `json:"timestamp"`
	Action    string           `json:"action"`
	Detail    string           `json:"detail"`
	Category  ActivityCategory `json:"category"`
}

// TaskStatus is the lifecycle of a background task
type TaskStatus string

const (
	TaskQueued  TaskStatus = "queued"
	TaskRunning TaskStatus = "running"
	TaskDone    TaskStatus = "done"
	TaskError   TaskStatus = "error"
)

// IsTerminal reports done or error
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskError
}

func (s TaskStatus) rank() int {
	switch s {
	case TaskQueued:
		return 0
	case TaskRunning:
		return 1
	case TaskDone, TaskError:
		return 2
	}
	return -1
}

// CanTransition enforces queued → running → {done, error}
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	if s.IsTerminal() || next.rank() < 0 {
		return false
	}
	return next.rank() > s.rank()
}

// BackgroundTask is one single-instrument analysis submitted to the pool
type BackgroundTask struct {
	ID          string     `json:"id"`
	Ticker      string     `json:"ticker"`
	Status      TaskStatus `json:"status"`
	Result      *Decision  `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	SubmittedAt time.Time  `json:"submitted_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ScanResult summarizes one universe scan
type ScanResult struct {
	Universe     string     `json:"universe"`
	Skipped      bool       `json:"skipped"`
	Reason       string     `json:"reason,omitempty"`
	TotalScanned int        `json:"total_scanned"`
	Buys         int        `json:"buys"`
	Sells        int        `json:"sells"`
	Errors       int        `json:"errors"`
	ErrorDetails []string   `json:"error_details,omitempty"`
	TopBuys      []Decision `json:"top_buys"`
	TopSells     []Decision `json:"top_sells"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   time.Time  `json:"finished_at"`
}

// Err returns ErrScanInProgress for a skipped result
func (r *ScanResult) Err() error {
	if r != nil && r.Skipped {
		return ErrScanInProgress
	}
	return nil
}
