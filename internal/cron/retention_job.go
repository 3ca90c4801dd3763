package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/fulfillment-backend/pkg/logger"
)

const (
	defaultRetentionDays = 30
	day                  = 24 * time.Hour
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// PurgeFunc deletes rows older than cutoff and reports how many went.
type PurgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// RetentionJobParams describe one table purge. RetentionDays below one falls
// back to 30.
type RetentionJobParams struct {
	Name          string
	Logger        *logger.Logger
	DB            txRunner
	Purge         PurgeFunc
	RetentionDays int
}

func (p RetentionJobParams) validate() error {
	var errs error
	if p.Name == "" {
		errs = multierr.Append(errs, errors.New("job name required"))
	}
	if p.Logger == nil {
		errs = multierr.Append(errs, errors.New("logger required"))
	}
	if p.DB == nil {
		errs = multierr.Append(errs, errors.New("db runner required"))
	}
	if p.Purge == nil {
		errs = multierr.Append(errs, errors.New("purge func required"))
	}
	return errs
}

// NewRetentionJob builds a job that purges one table past its retention window.
func NewRetentionJob(params RetentionJobParams) (Job, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("retention job: %w", err)
	}
	days := params.RetentionDays
	if days < 1 {
		days = defaultRetentionDays
	}
	return &retentionJob{
		params: params,
		window: time.Duration(days) * day,
		now:    time.Now,
	}, nil
}

type retentionJob struct {
	params RetentionJobParams
	window time.Duration
	now    func() time.Time
}

func (j *retentionJob) Name() string { return j.params.Name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	var deleted int64
	err := j.params.DB.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.params.Purge(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.params.Name, err)
	}
	logg := j.params.Logger
	logg.Info(logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": int(j.window / day),
		"rows_deleted":   deleted,
	}), "retention cleanup complete")
	return nil
}
