package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type countingJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job " + j.name }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		select {
		case <-j.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return j.err
}

func newTestScheduler() *Scheduler {
	return NewScheduler(SchedulerConfig{Tick: 5 * time.Millisecond, EnableMetrics: true})
}

func TestRegisterValidation(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "audit"}

	assert.ErrorIs(t, s.Register(nil, NewIntervalSchedule(time.Second)), ErrNilJob)
	assert.ErrorIs(t, s.Register(job, nil), ErrNilSchedule)
	require.NoError(t, s.Register(job, NewIntervalSchedule(time.Second)))
	assert.ErrorIs(t, s.Register(job, NewIntervalSchedule(time.Second)), ErrJobAlreadyExists)

	assert.ErrorIs(t, s.Unregister("missing"), ErrJobNotFound)
	assert.ErrorIs(t, s.SetEnabled("missing", false), ErrJobNotFound)
	require.NoError(t, s.Unregister("audit"))
	assert.Empty(t, s.ListJobs())
}

func TestIntervalJobRuns(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "warm"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(10*time.Millisecond)))

	var completed atomic.Int32
	s.OnJobComplete(func(r JobResult) {
		if r.Success {
			completed.Add(1)
		}
	})

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)
	assert.True(t, s.IsRunning())

	assert.Eventually(t, func() bool { return completed.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, s.Stop())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info, err := s.GetJobInfo("warm")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, info.RunCount, int64(2))
	assert.Zero(t, info.FailCount)
	require.NotNil(t, info.LastResult)
	assert.True(t, info.LastResult.Success)
}

func TestOverlappingRunIsSkipped(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.EqualValues(t, 1, job.runs.Load(), "job must not overlap with itself")

	close(job.block)
	require.NoError(t, s.Stop())
}

func TestDisabledJobDoesNotRun(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "off"}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))
	require.NoError(t, s.SetEnabled("off", false))

	require.NoError(t, s.Start(context.Background()))
	time.Sleep(40 * time.Millisecond)
	require.NoError(t, s.Stop())

	assert.Zero(t, job.runs.Load())
}

func TestRunNowRecordsHistoryAndMetrics(t *testing.T) {
	s := newTestScheduler()
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", err: errors.New("store unavailable")}
	require.NoError(t, s.Register(ok, NewIntervalSchedule(time.Hour)))
	require.NoError(t, s.Register(bad, NewIntervalSchedule(time.Hour)))

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Manual)
	assert.True(t, res.Success)

	res, err = s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, res.Success)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	history := s.GetHistory(0)
	require.Len(t, history, 2)
	assert.Equal(t, "ok", history[0].JobName)
	assert.Len(t, s.GetHistory(1), 1)

	snap := s.GetMetrics().Snapshot()
	assert.EqualValues(t, 2, snap.TotalExecutions)
	assert.EqualValues(t, 1, snap.TotalFailures)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
}

func TestStopCancelsRunningJob(t *testing.T) {
	s := newTestScheduler()
	job := &countingJob{name: "blocked", block: make(chan struct{})}
	require.NoError(t, s.Register(job, NewIntervalSchedule(5*time.Millisecond)))

	var mu sync.Mutex
	var results []JobResult
	s.OnJobComplete(func(r JobResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return job.runs.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.Stop())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Error, context.Canceled)
}

func TestCronSchedule(t *testing.T) {
	cs, err := ParseCronExpression(EveryFiveMinutes)
	require.NoError(t, err)
	assert.Equal(t, EveryFiveMinutes, cs.String())

	from := time.Date(2026, 5, 1, 10, 2, 30, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 5, 1, 10, 5, 0, 0, time.UTC), cs.Next(from))

	daily := MustParseCronExpression(EveryDayMidnight)
	assert.Equal(t, time.Date(2026, 5, 2, 0, 0, 0, 0, time.UTC), daily.Next(from))

	hourly, err := ParseCronExpression("@hourly")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 5, 1, 11, 0, 0, 0, time.UTC), hourly.Next(from))

	_, err = ParseCronExpression("61 * * * *")
	assert.Error(t, err)
	assert.Panics(t, func() { MustParseCronExpression("bogus") })
}

func TestIntervalScheduleDefaults(t *testing.T) {
	s := NewIntervalSchedule(0)
	assert.Equal(t, time.Minute, s.Interval)
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(time.Minute), s.Next(from))
	assert.Equal(t, "@every 1m0s", s.String())
}
