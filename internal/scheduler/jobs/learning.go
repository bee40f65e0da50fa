package jobs

import (
	"context"
	"time"

	"github.com/wonny/tradeloop/pkg/logger"
)

// Learning cadence
const (
	LearningInterval   = 6 * time.Hour
	FirstLearningDelay = 5 * time.Minute
)

// Learner is the agent surface the learning job drives
type Learner interface {
	RunAutoLearning(ctx context.Context) error
}

// LearningJob evaluates recent decisions and adapts the factor weights
type LearningJob struct {
	agent  Learner
	logger *logger.Logger
}

// NewLearningJob creates the learning job
func NewLearningJob(agent Learner, log *logger.Logger) *LearningJob {
	return &LearningJob{agent: agent, logger: log}
}

// Name returns the job name
func (j *LearningJob) Name() string { return "auto_learning" }

// Description returns the listing label
func (j *LearningJob) Description() string { return "Auto-learning cycle" }

// Schedule returns the cron schedule (every 6 hours)
func (j *LearningJob) Schedule() string { return "@every " + LearningInterval.String() }

// FirstRunDelay gives the first scan time to produce decisions
func (j *LearningJob) FirstRunDelay() time.Duration { return FirstLearningDelay }

// Run executes one learning cycle
func (j *LearningJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting scheduled learning cycle")
	return j.agent.RunAutoLearning(ctx)
}
