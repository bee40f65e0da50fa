package jobs

import (
	"context"
	"time"

	"github.com/wonny/tradeloop/pkg/logger"
)

// Schedules
const (
	RotatingScanInterval  = 2 * time.Hour
	FirstScanDelay        = 30 * time.Second
	DailyFullScanSchedule = "0 30 4 * * *" // 04:30 UTC
)

// Scanner is the agent surface the scan jobs drive
type Scanner interface {
	RunNextRotation(ctx context.Context) error
	RunFullScan(ctx context.Context) error
}

// RotatingScanJob scans one universe per tick, cycling through the catalogue
// ⭐ SSOT: 순환 스캔 스케줄은 이 Job에서만
type RotatingScanJob struct {
	agent  Scanner
	logger *logger.Logger
}

// NewRotatingScanJob creates the rotating scan job
func NewRotatingScanJob(agent Scanner, log *logger.Logger) *RotatingScanJob {
	return &RotatingScanJob{agent: agent, logger: log}
}

// Name returns the job name
func (j *RotatingScanJob) Name() string { return "rotating_scan" }

// Description returns the listing label
func (j *RotatingScanJob) Description() string { return "Rotate through stock universes" }

// Schedule returns the cron schedule (every 2 hours)
func (j *RotatingScanJob) Schedule() string { return "@every " + RotatingScanInterval.String() }

// FirstRunDelay runs the first scan shortly after startup
func (j *RotatingScanJob) FirstRunDelay() time.Duration { return FirstScanDelay }

// Run executes the next rotation
func (j *RotatingScanJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled rotating scan")
	return j.agent.RunNextRotation(ctx)
}

// FullScanJob scans every universe once a day
type FullScanJob struct {
	agent  Scanner
	logger *logger.Logger
}

// NewFullScanJob creates the daily full scan job
func NewFullScanJob(agent Scanner, log *logger.Logger) *FullScanJob {
	return &FullScanJob{agent: agent, logger: log}
}

// Name returns the job name
func (j *FullScanJob) Name() string { return "daily_full_scan" }

// Description returns the listing label
func (j *FullScanJob) Description() string { return "Daily full market scan (10 AM IST)" }

// Schedule returns the cron schedule (04:30 UTC daily, with seconds)
func (j *FullScanJob) Schedule() string { return DailyFullScanSchedule }

// Run executes the full scan
func (j *FullScanJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled full scan")
	return j.agent.RunFullScan(ctx)
}
