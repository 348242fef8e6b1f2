package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	fn   func(ctx context.Context) error
}

func (j funcJob) Name() string                  { return j.name }
func (j funcJob) Description() string           { return "test job " + j.name }
func (j funcJob) Run(ctx context.Context) error { return j.fn(ctx) }

func TestScheduler_RegisterValidation(t *testing.T) {
	s := New(DefaultConfig())
	job := funcJob{name: "noop", fn: func(context.Context) error { return nil }}

	assert.ErrorIs(t, s.Register(nil, "* * * * * *"), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, "not a spec"), ErrInvalidSpec)
	require.NoError(t, s.Register(job, "*/5 * * * * *"))
	assert.ErrorIs(t, s.Register(job, "*/5 * * * * *"), ErrJobAlreadyExists)

	jobs := s.Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "*/5 * * * * *", jobs[0].Spec)

	require.NoError(t, s.Unregister("noop"))
	assert.ErrorIs(t, s.Unregister("noop"), ErrJobNotFound)
}

func TestScheduler_RunNowRecordsHistory(t *testing.T) {
	var completed []JobResult
	cfg := DefaultConfig()
	cfg.HistorySize = 2
	cfg.OnJobComplete = func(r JobResult) { completed = append(completed, r) }
	s := New(cfg)

	boom := errors.New("boom")
	require.NoError(t, s.Register(funcJob{name: "ok", fn: func(context.Context) error { return nil }}, "@every 1h"))
	require.NoError(t, s.Register(funcJob{name: "bad", fn: func(context.Context) error { return boom }}, "@every 1h"))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.True(t, res.Manual)

	_, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)
	_, err = s.RunNow(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.History(0)
	require.Len(t, history, 2)
	assert.Equal(t, "bad", history[1].JobName)
	assert.Len(t, completed, 3)

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	assert.Equal(t, int64(2), jobs[0].Runs)
	assert.Equal(t, int64(2), jobs[0].Failures)
	require.NotNil(t, jobs[0].Last)
	assert.ErrorIs(t, jobs[0].Last.Error, boom)
	assert.Len(t, s.History(1), 1)
}

func TestScheduler_JobTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JobTimeout = 20 * time.Millisecond
	s := New(cfg)

	require.NoError(t, s.Register(funcJob{name: "slow", fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}, "@every 1h"))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	s := New(DefaultConfig())
	var runs atomic.Int32

	require.NoError(t, s.Register(funcJob{name: "tick", fn: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, "* * * * * *"))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 20*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)
}
