package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

// PointsExpiryJobParams configure the nightly point expiry sweep.
type PointsExpiryJobParams struct {
	Logger *logger.Logger
	Ledger expirer
}

type expirer interface {
	ExpireDue(ctx context.Context, now time.Time) (*ledger.ExpireResult, error)
}

// NewPointsExpiryJob builds the job that expires earned points past their
// per-tenant expiry window.
func NewPointsExpiryJob(params PointsExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &pointsExpiryJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		now:    time.Now,
	}, nil
}

type pointsExpiryJob struct {
	logg   *logger.Logger
	ledger expirer
	now    func() time.Time
}

func (j *pointsExpiryJob) Name() string { return "points-expiry" }

func (j *pointsExpiryJob) Run(ctx context.Context) error {
	result, err := j.ledger.ExpireDue(ctx, j.now().UTC())
	if result != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"customers_processed": result.CustomersProcessed,
			"entries_expired":     result.EntriesExpired,
			"points_expired":      result.PointsExpired,
		})
		j.logg.Info(logCtx, "points expiry sweep complete")
	}
	if err != nil {
		return fmt.Errorf("points expiry: %w", err)
	}
	return nil
}
