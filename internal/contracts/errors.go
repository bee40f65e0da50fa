package contracts

import "errors"

// Sentinel errors shared by every component. Compare with errors.Is.
var (
	// ErrDataUnavailable means no usable price series exists for an instrument
	ErrDataUnavailable = errors.New("data unavailable")

	// ErrScanInProgress rejects a scan trigger while another scan holds the flag
	ErrScanInProgress = errors.New("scan already in progress")

	// ErrEvaluation marks an outcome computation failure for one decision
	ErrEvaluation = errors.New("evaluation failed")

	// ErrPersistence marks a failed state write
	ErrPersistence = errors.New("persistence failed")

	// ErrJobRunning rejects a manual job run while the same job is executing
	ErrJobRunning = errors.New("job already running")

	// ErrSchedulerStartup marks a failure to register or start recurring triggers
	ErrSchedulerStartup = errors.New("scheduler startup failed")

	// ErrNotFound is returned by stores for unknown keys
	ErrNotFound = errors.New("not found")

	// ErrInvalid wraps validation failures at the persistence boundary
	ErrInvalid = errors.New("invalid record")
)
