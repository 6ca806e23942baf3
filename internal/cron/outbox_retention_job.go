package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/quotehub-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	outboxMinAttempts   = 5
	dlqRetentionFactor  = 3
)

const day = 24 * time.Hour

type OutboxRetentionJobParams struct {
	Logger        *logger.Logger
	DB            txRunner
	Repository    outboxRetentionRepo
	DLQRepository dlqRetentionRepo
	Retention     int
	MinAttempts   int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type dlqRetentionRepo interface {
	DeleteFailedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// pruneStep deletes one table's rows older than cutoff inside tx.
type pruneStep struct {
	table string
	age   time.Duration
	run   func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

// NewOutboxRetentionJob prunes published outbox rows after the retention
// window. Dead-lettered rows are kept three times longer for inspection.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	minAttempts := params.MinAttempts
	if minAttempts <= 0 {
		minAttempts = outboxMinAttempts
	}

	steps := []pruneStep{{
		table: "outbox_events",
		age:   time.Duration(retention) * day,
		run: func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return params.Repository.DeletePublishedBefore(ctx, tx, cutoff, minAttempts)
		},
	}}
	if params.DLQRepository != nil {
		steps = append(steps, pruneStep{
			table: "outbox_dlq",
			age:   time.Duration(retention*dlqRetentionFactor) * day,
			run:   params.DLQRepository.DeleteFailedBefore,
		})
	}

	return &outboxRetentionJob{
		logg:        params.Logger,
		db:          params.DB,
		steps:       steps,
		minAttempts: minAttempts,
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	db          txRunner
	steps       []pruneStep
	minAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

// Run prunes every table even when an earlier step fails.
func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var errs error
	for _, step := range j.steps {
		errs = multierr.Append(errs, j.prune(ctx, step, now.Add(-step.age)))
	}
	return errs
}

func (j *outboxRetentionJob) prune(ctx context.Context, step pruneStep, cutoff time.Time) error {
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = step.run(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s retention: %w", step.table, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"table":        step.table,
		"cutoff":       cutoff,
		"age_days":     int(step.age / day),
		"min_attempts": j.minAttempts,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return nil
}
