package cron

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
	"github.com/angelmondragon/fulfillment-backend/pkg/metrics"
)

type fakeLock struct {
	held     bool
	released int
	err      error
}

func (f *fakeLock) Acquire(context.Context) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(context.Context) error {
	f.held = false
	f.released++
	return nil
}

type testJob struct {
	name     string
	err      error
	runs     int
	deadline bool
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(ctx context.Context) error {
	t.runs++
	_, t.deadline = ctx.Deadline()
	return t.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestRunOnceRunsAllJobsEvenOnFailure(t *testing.T) {
	success := &testJob{name: "success"}
	failure := &testJob{name: "fail", err: errors.New("boom")}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(success, failure),
		Lock:     lock,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)
	assert.True(t, success.deadline, "jobs run with a timeout")
	assert.Equal(t, 1, lock.released)
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	job := &testJob{name: "parcel-resync"}
	lock := &fakeLock{held: true}
	service, err := NewService(ServiceParams{Logger: testLogger(), Registry: NewRegistry(job), Lock: lock})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Zero(t, job.runs)
	assert.Zero(t, lock.released)
}

func TestRunOnceReturnsLockError(t *testing.T) {
	service, err := NewService(ServiceParams{Logger: testLogger(), Lock: &fakeLock{err: errors.New("redis down")}})
	require.NoError(t, err)

	assert.Error(t, service.RunOnce(context.Background()))
}

func TestRunOnceRecordsJobMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Logger:     testLogger(),
		Registry:   NewRegistry(&testJob{name: "ok"}, &testJob{name: "bad", err: errors.New("x")}),
		Lock:       &fakeLock{},
		Metrics:    metrics.NewCronJobMetrics(reg),
		JobTimeout: time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	families, err := reg.Gather()
	require.NoError(t, err)
	series := map[string]int{}
	for _, family := range families {
		series[family.GetName()] = len(family.GetMetric())
	}
	assert.Equal(t, 2, series["cron_job_runs_total"])
	assert.Equal(t, 2, series["cron_job_duration_seconds"])
	assert.Equal(t, 1, series["cron_job_last_success_timestamp_seconds"])
}

func TestNewServiceRequiresLoggerAndLock(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &fakeLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	assert.Error(t, err)
}

type cancelingJob struct {
	cancel context.CancelFunc
	runs   int
}

func (c *cancelingJob) Name() string { return "canceling" }

func (c *cancelingJob) Run(context.Context) error {
	c.runs++
	c.cancel()
	return nil
}

func TestRunStopsCycleAndLoopOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := &cancelingJob{cancel: cancel}
	second := &testJob{name: "outbox-retention"}
	lock := &fakeLock{}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(first, second),
		Lock:     lock,
		Interval: time.Hour,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, service.Run(ctx), context.Canceled)
	assert.Equal(t, 1, first.runs)
	assert.Zero(t, second.runs, "jobs after cancellation are skipped")
	assert.Equal(t, 1, lock.released)
}

type panickingJob struct{}

func (panickingJob) Name() string { return "panicking" }

func (panickingJob) Run(context.Context) error { panic("nil map") }

func TestRunOnceIsolatesPanickingJob(t *testing.T) {
	reg := prometheus.NewRegistry()
	after := &testJob{name: "after"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(panickingJob{}, after),
		Lock:     &fakeLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, after.runs)

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, family := range families {
		if family.GetName() != "cron_job_runs_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "result" && label.GetValue() == "failure" {
					failures += metric.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, float64(1), failures)
}
