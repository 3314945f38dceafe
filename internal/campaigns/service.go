package campaigns

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
)

const defaultBirthdayWindowDays = 7

// Service quotes campaign effects for a prospective order. This is the
// preparation step upstream of settlement: settlement trusts and persists
// whatever applied-campaigns list the caller sends, so this is where
// eligibility is actually decided.
type Service interface {
	Quote(ctx context.Context, input QuoteInput) ([]Evaluation, error)
}

// QuoteInput describes the prospective order.
type QuoteInput struct {
	RestaurantID uuid.UUID
	CustomerID   uuid.UUID
	OrderCents   int64
	// Now overrides wall-clock time, for deterministic quoting.
	Now time.Time
}

type settingsProvider interface {
	BasePointRate(ctx context.Context, restaurantID uuid.UUID) (decimal.Decimal, error)
}

type service struct {
	repo      Repository
	customers customers.Repository
	settings  settingsProvider
	logg      *logger.Logger
}

// NewService wires the campaign quote service.
func NewService(repo Repository, customerRepo customers.Repository, settings settingsProvider, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("campaign repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if settings == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	return &service{repo: repo, customers: customerRepo, settings: settings, logg: logg}, nil
}

func (s *service) Quote(ctx context.Context, input QuoteInput) ([]Evaluation, error) {
	if input.RestaurantID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "restaurant id is required")
	}
	if input.CustomerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "customer id is required")
	}
	if input.OrderCents < 0 {
		return nil, errors.New(errors.CodeValidation, "order amount cannot be negative")
	}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	customer, err := s.customers.Get(ctx, input.CustomerID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "customer not found")
		}
		return nil, err
	}

	baseRate, err := s.settings.BasePointRate(ctx, input.RestaurantID)
	if err != nil {
		return nil, err
	}

	active, err := s.repo.ListActive(ctx, input.RestaurantID, now)
	if err != nil {
		return nil, err
	}

	evaluations := make([]Evaluation, 0, len(active))
	for i := range active {
		campaign := &active[i]

		if campaign.Type == enums.CampaignTypeBirthdaySpecial && !withinBirthdayWindow(customer.BirthDate, campaign.BirthdayWindowDays, now) {
			continue
		}

		customerUsage, err := s.repo.CountUsageByCustomer(ctx, campaign.ID, input.CustomerID)
		if err != nil {
			return nil, err
		}
		totalUsage, err := s.repo.CountUsage(ctx, campaign.ID)
		if err != nil {
			return nil, err
		}

		evaluations = append(evaluations, Evaluate(campaign, EvaluationInput{
			OrderCents:         input.OrderCents,
			CustomerUsageCount: customerUsage,
			TotalUsageCount:    totalUsage,
			BasePointRate:      baseRate,
			Now:                now,
		}))
	}
	return evaluations, nil
}

// withinBirthdayWindow reports whether now falls within the campaign's
// window around the customer's next or previous birthday anniversary.
func withinBirthdayWindow(birthDate *time.Time, windowDays *int, now time.Time) bool {
	if birthDate == nil {
		return false
	}
	window := defaultBirthdayWindowDays
	if windowDays != nil && *windowDays > 0 {
		window = *windowDays
	}

	for _, year := range []int{now.Year() - 1, now.Year(), now.Year() + 1} {
		anniversary := time.Date(year, birthDate.Month(), birthDate.Day(), 0, 0, 0, 0, now.Location())
		diff := now.Sub(anniversary)
		if diff < 0 {
			diff = -diff
		}
		if diff <= time.Duration(window)*24*time.Hour {
			return true
		}
	}
	return false
}
