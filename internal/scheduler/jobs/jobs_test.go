package jobs

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/tradeloop/internal/scheduler"
	"github.com/wonny/tradeloop/pkg/config"
	"github.com/wonny/tradeloop/pkg/httputil"
	"github.com/wonny/tradeloop/pkg/logger"
)

type fakeAgent struct {
	rotations, fullScans, learning int32
}

func (a *fakeAgent) RunNextRotation(ctx context.Context) error {
	atomic.AddInt32(&a.rotations, 1)
	return nil
}

func (a *fakeAgent) RunFullScan(ctx context.Context) error {
	atomic.AddInt32(&a.fullScans, 1)
	return nil
}

func (a *fakeAgent) RunAutoLearning(ctx context.Context) error {
	atomic.AddInt32(&a.learning, 1)
	return nil
}

func testClient() *httputil.Client {
	cfg := &config.Config{MarketData: config.MarketDataConfig{
		RequestsPerSec: 1000,
		Timeout:        time.Second,
		RetryBackoff:   time.Millisecond,
	}}
	return httputil.New(cfg, logger.Nop())
}

func ids(infos []scheduler.JobInfo) []string {
	out := make([]string, len(infos))
	for i, info := range infos {
		out[i] = info.ID
	}
	return out
}

func TestRegister(t *testing.T) {
	s := scheduler.New(logger.Nop())
	require.NoError(t, Register(s, &fakeAgent{}, testClient(), "http://localhost:8000", logger.Nop()))
	assert.Equal(t, []string{"auto_learning", "daily_full_scan", "keep_alive", "rotating_scan"}, ids(s.Jobs()))

	s2 := scheduler.New(logger.Nop())
	require.NoError(t, Register(s2, &fakeAgent{}, nil, "", logger.Nop()))
	assert.Len(t, s2.Jobs(), 3)

	assert.Error(t, Register(s2, &fakeAgent{}, nil, "", logger.Nop()), "duplicate registration")
}

func TestJobs_Delegate(t *testing.T) {
	a := &fakeAgent{}
	ctx := context.Background()

	rot := NewRotatingScanJob(a, logger.Nop())
	require.NoError(t, rot.Run(ctx))
	assert.Equal(t, 30*time.Second, rot.FirstRunDelay())
	assert.Equal(t, "@every 2h0m0s", rot.Schedule())

	require.NoError(t, NewFullScanJob(a, logger.Nop()).Run(ctx))

	learn := NewLearningJob(a, logger.Nop())
	require.NoError(t, learn.Run(ctx))
	assert.Equal(t, 5*time.Minute, learn.FirstRunDelay())

	assert.Equal(t, int32(1), a.rotations)
	assert.Equal(t, int32(1), a.fullScans)
	assert.Equal(t, int32(1), a.learning)
}

func TestKeepAlive(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	job := NewKeepAliveJob(testClient(), srv.URL+"/", logger.Nop())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	srv.Close()
	assert.NoError(t, job.Run(context.Background()), "ping failures are swallowed")
}
