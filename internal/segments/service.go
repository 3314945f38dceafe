package segments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
	"github.com/forkpoint/loyalty-backend/pkg/types"
)

// Service recomputes automatic segment membership. Membership is a derived
// view over transaction history; recomputing deletes and recreates the rows
// for one customer, so it is safe to run at any time and any number of times.
type Service interface {
	RecomputeCustomer(ctx context.Context, customerID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	runner    txRunner
	repo      Repository
	customers customers.Repository
	events    eventEmitter
	logg      *logger.Logger
}

// NewService wires the segmentation service.
func NewService(runner txRunner, repo Repository, customerRepo customers.Repository, events eventEmitter, logg *logger.Logger) (Service, error) {
	if runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if repo == nil {
		return nil, fmt.Errorf("segment repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{runner: runner, repo: repo, customers: customerRepo, events: events, logg: logg}, nil
}

func (s *service) RecomputeCustomer(ctx context.Context, customerID uuid.UUID) error {
	if customerID == uuid.Nil {
		return fmt.Errorf("customer id is required")
	}
	return s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.recomputeInTx(ctx, tx, customerID)
	})
}

func (s *service) recomputeInTx(ctx context.Context, tx *gorm.DB, customerID uuid.UUID) error {
	customerRepo := s.customers.WithTx(tx)
	repo := s.repo.WithTx(tx)

	customer, err := customerRepo.Get(ctx, customerID)
	if err != nil {
		return err
	}

	segments, err := repo.ListAutomaticByRestaurant(ctx, customer.RestaurantID)
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}

	now := time.Now()
	joined := 0
	for _, segment := range segments {
		if segment.Criteria == nil {
			continue
		}

		since := time.Time{}
		if segment.Criteria.LookbackDays > 0 {
			since = now.AddDate(0, 0, -segment.Criteria.LookbackDays)
		}
		stats, err := repo.PurchaseStats(ctx, customerID, since)
		if err != nil {
			return err
		}

		if err := repo.DeleteMembershipByCustomer(ctx, segment.ID, customerID); err != nil {
			return err
		}
		if !matches(*segment.Criteria, stats, customer.LastVisitAt, now) {
			continue
		}
		if err := repo.CreateMembership(ctx, &models.CustomerSegment{
			SegmentID:  segment.ID,
			CustomerID: customerID,
		}); err != nil {
			return err
		}
		joined++
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithCustomerID(ctx, customerID.String()),
			fmt.Sprintf("segment membership recomputed, member of %d of %d automatic segments", joined, len(segments)))
	}

	if s.events != nil {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSegmentRecomputed,
			AggregateType: enums.OutboxAggregateSegment,
			AggregateID:   customerID,
			Data: map[string]any{
				"customerId":     customerID,
				"segmentsJoined": joined,
			},
		})
	}
	return nil
}

// matches evaluates every bound the criteria sets; absent bounds pass. A
// customer who never visited satisfies min-recency bounds and fails
// max-recency bounds.
func matches(criteria types.SegmentCriteria, stats *PurchaseStats, lastVisit *time.Time, now time.Time) bool {
	if criteria.MinPurchaseCount != nil && stats.PurchaseCount < *criteria.MinPurchaseCount {
		return false
	}
	if criteria.MaxPurchaseCount != nil && stats.PurchaseCount > *criteria.MaxPurchaseCount {
		return false
	}
	if criteria.MinAvgOrderCents != nil && stats.AvgOrderCents < *criteria.MinAvgOrderCents {
		return false
	}
	if criteria.MaxAvgOrderCents != nil && stats.AvgOrderCents > *criteria.MaxAvgOrderCents {
		return false
	}

	if criteria.MinDaysSinceVisit != nil || criteria.MaxDaysSinceVisit != nil {
		if lastVisit == nil {
			return criteria.MaxDaysSinceVisit == nil
		}
		days := int(now.Sub(*lastVisit).Hours() / 24)
		if criteria.MinDaysSinceVisit != nil && days < *criteria.MinDaysSinceVisit {
			return false
		}
		if criteria.MaxDaysSinceVisit != nil && days > *criteria.MaxDaysSinceVisit {
			return false
		}
	}
	return true
}
