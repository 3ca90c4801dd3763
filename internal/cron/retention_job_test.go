package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func TestRetentionJobUsesCutoff(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	var got time.Time
	jobIface, err := NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Logger: testLogger(),
		DB:     passthroughTx{},
		Purge: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			got = cutoff
			return 3, nil
		},
		RetentionDays: 7,
	})
	require.NoError(t, err)
	job := jobIface.(*retentionJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-7*24*time.Hour), got)
	assert.Equal(t, "outbox-retention", job.Name())
}

func TestRetentionJobPropagatesError(t *testing.T) {
	job, err := NewRetentionJob(RetentionJobParams{
		Name:   "notification-retention",
		Logger: testLogger(),
		DB:     passthroughTx{},
		Purge: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "notification-retention")
}

func TestNewRetentionJobReportsEveryMissingParam(t *testing.T) {
	_, err := NewRetentionJob(RetentionJobParams{Logger: testLogger(), DB: passthroughTx{}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "job name required")
	assert.ErrorContains(t, err, "purge func required")
}

func TestRetentionJobDefaultsWindow(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	var got time.Time
	jobIface, err := NewRetentionJob(RetentionJobParams{
		Name:   "outbox-retention",
		Logger: testLogger(),
		DB:     passthroughTx{},
		Purge: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			got = cutoff
			return 0, nil
		},
		RetentionDays: -5,
	})
	require.NoError(t, err)
	job := jobIface.(*retentionJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, now.Add(-defaultRetentionDays*24*time.Hour), got)
}
