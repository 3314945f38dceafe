package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

const (
	outboxRetentionDays = 30
	outboxMaxAttempts   = 10
)

// OutboxRetentionJobParams configure the outbox cleanup job.
type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Repository  outboxRetentionRepo
	Retention   int
	MaxAttempts int
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(cutoff time.Time, maxAttempts int) (int64, error)
}

// NewOutboxRetentionJob builds the job that prunes delivered outbox rows.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = outboxRetentionDays
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = outboxMaxAttempts
	}
	return &outboxRetentionJob{
		logg:        params.Logger,
		repo:        params.Repository,
		retention:   retention,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

type outboxRetentionJob struct {
	logg        *logger.Logger
	repo        outboxRetentionRepo
	retention   int
	maxAttempts int
	now         func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-time.Duration(j.retention) * 24 * time.Hour)
	deleted, err := j.repo.DeletePublishedBefore(cutoff, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	})
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
