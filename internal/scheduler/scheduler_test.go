package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/aegis/consult/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	calls    int32
	failures int32 // 처음 N번 실패
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) (string, error) {
	n := atomic.AddInt32(&j.calls, 1)
	if n <= atomic.LoadInt32(&j.failures) {
		return "", errors.New("registry unavailable")
	}
	return "signals=2", nil
}

func TestScheduler_AddAndRun(t *testing.T) {
	s := New(logger.Nop())
	job := &fakeJob{name: "consult_ALL", schedule: "0 30 9 * * MON-FRI"}

	require.NoError(t, s.AddJob(job))
	assert.Error(t, s.AddJob(job), "duplicate names are rejected")
	assert.Equal(t, []string{"consult_ALL"}, s.GetAllJobs())

	result, err := s.RunJob("consult_ALL")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "signals=2", result.Detail)
	assert.Equal(t, 1, result.Attempts)

	history, err := s.GetJobHistory("consult_ALL")
	require.NoError(t, err)
	require.Len(t, history.Results, 1)

	stats := s.GetJobStats()["consult_ALL"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1.0, stats.SuccessRate)
	assert.NotNil(t, stats.LastSuccess)
	assert.Nil(t, stats.LastFailure)
}

func TestScheduler_NoRetryByDefault(t *testing.T) {
	s := New(logger.Nop())
	job := &fakeJob{name: "j", schedule: "@hourly", failures: 1}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob("j")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "registry unavailable", result.Error)
	assert.Equal(t, int32(1), atomic.LoadInt32(&job.calls))
}

func TestScheduler_WithRetry(t *testing.T) {
	s := New(logger.Nop()).WithRetry(2, time.Millisecond)
	job := &fakeJob{name: "j", schedule: "@hourly", failures: 2}
	require.NoError(t, s.AddJob(job))

	result, err := s.RunJob("j")
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := New(logger.Nop())
	assert.Error(t, s.AddJob(&fakeJob{name: "bad", schedule: "every tuesday"}))
	assert.Empty(t, s.GetAllJobs())
}

func TestScheduler_RemoveJob(t *testing.T) {
	s := New(logger.Nop())
	require.NoError(t, s.AddJob(&fakeJob{name: "j", schedule: "@every 1h"}))

	next, err := s.NextRun("j")
	require.NoError(t, err)
	_ = next

	require.NoError(t, s.RemoveJob("j"))
	assert.Error(t, s.RemoveJob("j"))
	_, err = s.RunJob("j")
	assert.Error(t, err)
}

func TestScheduler_CronFires(t *testing.T) {
	s := New(logger.Nop())
	job := &fakeJob{name: "tick", schedule: "@every 1s"}
	require.NoError(t, s.AddJob(job))

	s.Start()
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&job.calls) >= 1
	}, 3*time.Second, 20*time.Millisecond)
	s.Stop()
}

func TestJobHistory_Cap(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0})
	}
	assert.Len(t, h.Results, maxHistory)
	assert.Len(t, h.GetLatestResults(5), 5)
	assert.InDelta(t, 0.5, h.GetSuccessRate(), 1e-9)
}
