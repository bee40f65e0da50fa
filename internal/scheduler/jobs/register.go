package jobs

import (
	"github.com/wonny/tradeloop/internal/scheduler"
	"github.com/wonny/tradeloop/pkg/httputil"
	"github.com/wonny/tradeloop/pkg/logger"
)

// Agent is everything the recurring jobs drive
type Agent interface {
	Scanner
	Learner
}

// Register adds the agent's recurring jobs to s. keepAliveURL empty skips the ping.
// Errors wrap contracts.ErrSchedulerStartup.
func Register(s *scheduler.Scheduler, agent Agent, client *httputil.Client, keepAliveURL string, log *logger.Logger) error {
	log = log.WithComponent("jobs")

	list := []scheduler.Job{
		NewRotatingScanJob(agent, log),
		NewLearningJob(agent, log),
		NewFullScanJob(agent, log),
	}
	if keepAliveURL != "" && client != nil {
		list = append(list, NewKeepAliveJob(client, keepAliveURL, log))
	}

	for _, job := range list {
		if err := s.AddJob(job); err != nil {
			return err
		}
	}
	return nil
}
