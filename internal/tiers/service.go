package tiers

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
)

// TierChange describes one applied transition.
type TierChange struct {
	CustomerID uuid.UUID  `json:"customerId"`
	FromTierID *uuid.UUID `json:"fromTierId,omitempty"`
	ToTierID   uuid.UUID  `json:"toTierId"`
	FromLevel  int        `json:"fromLevel"`
	ToLevel    int        `json:"toLevel"`
	TierName   string     `json:"tierName"`
	Reason     string     `json:"reason"`
}

// Service is the tier state machine. Automatic transitions only ever move
// upward; the downgrade path exists solely for cancellation.
type Service interface {
	// CheckAndUpgrade evaluates the customer against the restaurant's active
	// tiers and upgrades to the highest qualifying level. Returns nil when
	// the eligible tier is the same or lower than the current one.
	CheckAndUpgrade(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, reason string) (*TierChange, error)
	// CheckDowngrade re-places the customer using post-cancellation
	// aggregates; it may move the tier in either direction.
	CheckDowngrade(ctx context.Context, tx *gorm.DB, input DowngradeInput) (*TierChange, error)
}

// DowngradeInput carries the aggregates recomputed as if the cancelled
// transaction never happened.
type DowngradeInput struct {
	CustomerID         uuid.UUID
	NewTotalSpentCents int64
	NewVisitCount      int
	OrderNumber        string
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo      Repository
	customers customers.Repository
	events    eventEmitter
	logg      *logger.Logger
}

// NewService wires the tier engine. The event emitter may be nil in tests.
func NewService(repo Repository, customerRepo customers.Repository, events eventEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("tier repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	return &service{repo: repo, customers: customerRepo, events: events, logg: logg}, nil
}

func (s *service) CheckAndUpgrade(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, reason string) (*TierChange, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	customerRepo := s.customers.WithTx(tx)
	customer, err := customerRepo.GetForUpdate(ctx, customerID)
	if err != nil {
		return nil, err
	}

	tierList, err := s.repo.WithTx(tx).ListActive(ctx, customer.RestaurantID)
	if err != nil {
		return nil, err
	}
	if len(tierList) == 0 {
		return nil, nil
	}

	// Ascending scan; later matches override earlier ones so the highest
	// qualifying level wins.
	var eligible *models.Tier
	for i := range tierList {
		tier := &tierList[i]
		if meetsRequirements(customer, tier) {
			eligible = tier
		}
	}
	if eligible == nil {
		eligible = fallbackTier(tierList)
	}

	currentLevel := -1
	if customer.Tier != nil {
		currentLevel = customer.Tier.Level
	} else if customer.TierID != nil {
		if current, err := s.repo.WithTx(tx).Get(ctx, *customer.TierID); err == nil {
			currentLevel = current.Level
		}
	}

	if eligible.Level <= currentLevel {
		return nil, nil
	}

	change := &TierChange{
		CustomerID: customer.ID,
		FromTierID: customer.TierID,
		ToTierID:   eligible.ID,
		FromLevel:  currentLevel,
		ToLevel:    eligible.Level,
		TierName:   eligible.Name,
		Reason:     fmt.Sprintf("qualified for %s (level %d): %s", eligible.Name, eligible.Level, reason),
	}

	tierID := eligible.ID
	customer.TierID = &tierID
	customer.Tier = eligible
	customer.Level = levelForTier(eligible)
	if err := customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}

	if err := s.repo.WithTx(tx).CreateHistory(ctx, &models.TierHistory{
		CustomerID:  customer.ID,
		FromTierID:  change.FromTierID,
		ToTierID:    eligible.ID,
		Reason:      change.Reason,
		TriggeredBy: "auto_upgrade",
	}); err != nil {
		return nil, err
	}

	if err := s.emitChange(ctx, tx, change); err != nil {
		return nil, err
	}
	return change, nil
}

func (s *service) CheckDowngrade(ctx context.Context, tx *gorm.DB, input DowngradeInput) (*TierChange, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	customerRepo := s.customers.WithTx(tx)
	customer, err := customerRepo.GetForUpdate(ctx, input.CustomerID)
	if err != nil {
		return nil, err
	}

	tierList, err := s.repo.WithTx(tx).ListActive(ctx, customer.RestaurantID)
	if err != nil {
		return nil, err
	}
	if len(tierList) == 0 {
		return nil, nil
	}

	// Highest spend threshold first; the first tier whose spend and visit
	// floors are both met is where the customer lands.
	var target *models.Tier
	for i := len(tierList) - 1; i >= 0; i-- {
		tier := &tierList[i]
		if meetsDowngradeRequirements(input, tier) {
			if target == nil || minSpent(tier) > minSpent(target) {
				target = tier
			}
		}
	}
	if target == nil {
		target = fallbackTier(tierList)
	}

	if customer.TierID != nil && *customer.TierID == target.ID {
		return nil, nil
	}

	currentLevel := -1
	if customer.Tier != nil {
		currentLevel = customer.Tier.Level
	}

	change := &TierChange{
		CustomerID: customer.ID,
		FromTierID: customer.TierID,
		ToTierID:   target.ID,
		FromLevel:  currentLevel,
		ToLevel:    target.Level,
		TierName:   target.Name,
		Reason:     fmt.Sprintf("re-evaluated after cancellation of order %s", input.OrderNumber),
	}

	tierID := target.ID
	customer.TierID = &tierID
	customer.Tier = target
	customer.Level = levelForTier(target)
	if err := customerRepo.Save(ctx, customer); err != nil {
		return nil, err
	}

	if err := s.repo.WithTx(tx).CreateHistory(ctx, &models.TierHistory{
		CustomerID:  customer.ID,
		FromTierID:  change.FromTierID,
		ToTierID:    target.ID,
		Reason:      change.Reason,
		TriggeredBy: "cancellation",
	}); err != nil {
		return nil, err
	}

	if err := s.emitChange(ctx, tx, change); err != nil {
		return nil, err
	}
	return change, nil
}

func (s *service) emitChange(ctx context.Context, tx *gorm.DB, change *TierChange) error {
	if s.events == nil {
		return nil
	}
	return s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTierChanged,
		AggregateType: enums.OutboxAggregateCustomer,
		AggregateID:   change.CustomerID,
		Data:          change,
	})
}

func meetsRequirements(customer *models.Customer, tier *models.Tier) bool {
	if tier.MinTotalSpentCents != nil && customer.TotalSpentCents < *tier.MinTotalSpentCents {
		return false
	}
	if tier.MinVisitCount != nil && customer.VisitCount < *tier.MinVisitCount {
		return false
	}
	if tier.MinPoints != nil && customer.Points < *tier.MinPoints {
		return false
	}
	return true
}

func meetsDowngradeRequirements(input DowngradeInput, tier *models.Tier) bool {
	if tier.MinTotalSpentCents != nil && input.NewTotalSpentCents < *tier.MinTotalSpentCents {
		return false
	}
	if tier.MinVisitCount != nil && input.NewVisitCount < *tier.MinVisitCount {
		return false
	}
	return true
}

func minSpent(tier *models.Tier) int64 {
	if tier.MinTotalSpentCents == nil {
		return 0
	}
	return *tier.MinTotalSpentCents
}

// levelForTier maps a tier row onto the coarse customer level column so that
// level-ranked checks (reward minimum tiers, tier-reached rules) follow the
// customer's current tier. Tiers named after a canonical level map by name;
// anything else maps by ordinal.
func levelForTier(tier *models.Tier) enums.CustomerLevel {
	if parsed, err := enums.ParseCustomerLevel(strings.ToLower(tier.Name)); err == nil {
		return parsed
	}
	switch {
	case tier.Level <= 0:
		return enums.CustomerLevelRegular
	case tier.Level == 1:
		return enums.CustomerLevelBronze
	case tier.Level == 2:
		return enums.CustomerLevelSilver
	case tier.Level == 3:
		return enums.CustomerLevelGold
	default:
		return enums.CustomerLevelPlatinum
	}
}

// fallbackTier picks the level-0 tier, or the first tier when none is
// level 0. The list is ordered ascending.
func fallbackTier(tierList []models.Tier) *models.Tier {
	for i := range tierList {
		if tierList[i].Level == 0 {
			return &tierList[i]
		}
	}
	return &tierList[0]
}
