package jobs

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/wonny/tradeloop/pkg/httputil"
	"github.com/wonny/tradeloop/pkg/logger"
)

// KeepAliveInterval is the self-ping period
const KeepAliveInterval = 10 * time.Minute

// KeepAliveJob pings the service's own root URL so idle hosts do not sleep
type KeepAliveJob struct {
	client *httputil.Client
	url    string
	logger *logger.Logger
}

// NewKeepAliveJob creates the keep-alive job. baseURL is the service's public URL.
func NewKeepAliveJob(client *httputil.Client, baseURL string, log *logger.Logger) *KeepAliveJob {
	return &KeepAliveJob{
		client: client,
		url:    strings.TrimRight(baseURL, "/") + "/",
		logger: log,
	}
}

// Name returns the job name
func (j *KeepAliveJob) Name() string { return "keep_alive" }

// Description returns the listing label
func (j *KeepAliveJob) Description() string { return "Keep-alive self-ping" }

// Schedule returns the cron schedule (every 10 minutes)
func (j *KeepAliveJob) Schedule() string { return "@every " + KeepAliveInterval.String() }

// Run pings the URL. Best effort: failures are logged at debug and never retried.
func (j *KeepAliveJob) Run(ctx context.Context) error {
	resp, err := j.client.Get(ctx, j.url)
	if err != nil {
		j.logger.WithError(err).WithField("url", j.url).Debug("Keep-alive ping failed")
		return nil
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return nil
}
