package settlement

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/campaigns"
	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/internal/rewards"
	"github.com/forkpoint/loyalty-backend/internal/tiers"
	"github.com/forkpoint/loyalty-backend/pkg/db"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/metrics"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
	"github.com/forkpoint/loyalty-backend/pkg/types"
)

// LineItem is one purchased line in the settlement input.
type LineItem struct {
	ProductID      uuid.UUID
	Quantity       int
	UnitPriceCents int64
	TotalCents     int64
	IsFree         bool
	CampaignID     *uuid.UUID
}

// AppliedCampaign is a campaign effect the quote step already decided.
// Settlement trusts and persists it; the persisted snapshot is what
// cancellation reverses later.
type AppliedCampaign struct {
	CampaignID    uuid.UUID
	DiscountCents int64
	PointsEarned  int
	FreeItems     []uuid.UUID
}

// SettleInput is the settlement contract for one completed purchase.
type SettleInput struct {
	RestaurantID     uuid.UUID
	CustomerID       uuid.UUID
	OrderNumber      string
	Items            []LineItem
	TotalCents       int64
	DiscountCents    int64
	FinalCents       int64
	PointsUsed       int
	PaymentMethod    *string
	Notes            *string
	AppliedCampaigns []AppliedCampaign
}

// SettleResult reports everything settlement produced.
type SettleResult struct {
	Transaction    *models.Transaction     `json:"transaction"`
	PointsEarned   int                     `json:"pointsEarned"`
	PointsUsed     int                     `json:"pointsUsed"`
	GrantedRewards []models.CustomerReward `json:"grantedRewards,omitempty"`
	TierChange     *tiers.TierChange       `json:"tierChange,omitempty"`
}

// Service settles and cancels transactions. Both operations run inside one
// database transaction; segmentation recompute is the only async follow-up.
type Service interface {
	Settle(ctx context.Context, input SettleInput) (*SettleResult, error)
	Cancel(ctx context.Context, input CancelInput) (*CancelResult, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type settingsProvider interface {
	BasePointRate(ctx context.Context, restaurantID uuid.UUID) (decimal.Decimal, error)
	PointsExpiryDays(ctx context.Context, restaurantID uuid.UUID) (*int, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type segmentQueue interface {
	QueueUpdate(customerID uuid.UUID)
}

type service struct {
	runner    txRunner
	repo      Repository
	customers customers.Repository
	campaigns campaigns.Repository
	points    ledger.Service
	rewards   rewards.Service
	tiers     tiers.Service
	settings  settingsProvider
	events    eventEmitter
	segments  segmentQueue
	metrics   *metrics.SettlementMetrics
	logg      *logger.Logger
}

// Deps bundles the collaborators the settlement service orchestrates.
type Deps struct {
	Runner    txRunner
	Repo      Repository
	Customers customers.Repository
	Campaigns campaigns.Repository
	Points    ledger.Service
	Rewards   rewards.Service
	Tiers     tiers.Service
	Settings  settingsProvider
	Events    eventEmitter
	Segments  segmentQueue
	Metrics   *metrics.SettlementMetrics
	Logger    *logger.Logger
}

// NewService wires the settlement service.
func NewService(deps Deps) (Service, error) {
	if deps.Runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if deps.Repo == nil {
		return nil, fmt.Errorf("transaction repository required")
	}
	if deps.Customers == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if deps.Campaigns == nil {
		return nil, fmt.Errorf("campaign repository required")
	}
	if deps.Points == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if deps.Rewards == nil {
		return nil, fmt.Errorf("reward service required")
	}
	if deps.Tiers == nil {
		return nil, fmt.Errorf("tier service required")
	}
	if deps.Settings == nil {
		return nil, fmt.Errorf("settings provider required")
	}
	return &service{
		runner:    deps.Runner,
		repo:      deps.Repo,
		customers: deps.Customers,
		campaigns: deps.Campaigns,
		points:    deps.Points,
		rewards:   deps.Rewards,
		tiers:     deps.Tiers,
		settings:  deps.Settings,
		events:    deps.Events,
		segments:  deps.Segments,
		metrics:   deps.Metrics,
		logg:      deps.Logger,
	}, nil
}

func (s *service) Settle(ctx context.Context, input SettleInput) (*SettleResult, error) {
	started := time.Now()
	if err := validateSettleInput(input); err != nil {
		return nil, err
	}

	result := &SettleResult{PointsUsed: input.PointsUsed}
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.settleInTx(ctx, tx, input, result)
	})
	if err != nil {
		s.metrics.IncSettlement("error")
		return nil, err
	}

	s.metrics.IncSettlement("ok")
	s.metrics.AddPointsIssued(result.PointsEarned)
	s.metrics.ObserveDuration("settle", time.Since(started))

	// Segmentation is eventually consistent; it never runs on the request
	// path and never blocks the response.
	if s.segments != nil {
		s.segments.QueueUpdate(input.CustomerID)
	}
	return result, nil
}

func (s *service) settleInTx(ctx context.Context, tx *gorm.DB, input SettleInput, result *SettleResult) error {
	customerRepo := s.customers.WithTx(tx)
	txnRepo := s.repo.WithTx(tx)

	customer, err := customerRepo.GetForUpdate(ctx, input.CustomerID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.CodeNotFound, "customer not found")
		}
		return err
	}

	exists, err := txnRepo.ExistsOrderNumber(ctx, input.OrderNumber)
	if err != nil {
		return err
	}
	if exists {
		return errors.New(errors.CodeConflict, fmt.Sprintf("order number %s already settled", input.OrderNumber))
	}

	baseRate, err := s.settings.BasePointRate(ctx, input.RestaurantID)
	if err != nil {
		return err
	}
	expiryDays, err := s.settings.PointsExpiryDays(ctx, input.RestaurantID)
	if err != nil {
		return err
	}

	tierMultiplier := decimal.NewFromInt(1)
	var tierID *uuid.UUID
	if customer.Tier != nil {
		tierMultiplier = customer.Tier.PointMultiplier
		id := customer.Tier.ID
		tierID = &id
	}

	pointsEarned := basePoints(input.FinalCents, baseRate, tierMultiplier)
	result.PointsEarned = pointsEarned

	txn := &models.Transaction{
		RestaurantID:   input.RestaurantID,
		CustomerID:     input.CustomerID,
		OrderNumber:    input.OrderNumber,
		Status:         enums.TransactionStatusCompleted,
		TotalCents:     input.TotalCents,
		DiscountCents:  input.DiscountCents,
		FinalCents:     input.FinalCents,
		PointsEarned:   pointsEarned,
		PointsUsed:     input.PointsUsed,
		TierID:         tierID,
		TierMultiplier: &tierMultiplier,
		PaymentMethod:  input.PaymentMethod,
		Notes:          input.Notes,
	}
	for _, item := range input.Items {
		txn.Items = append(txn.Items, models.TransactionItem{
			ProductID:      item.ProductID,
			Quantity:       item.Quantity,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
			IsFree:         item.IsFree,
			CampaignID:     item.CampaignID,
		})
	}
	for _, applied := range input.AppliedCampaigns {
		txn.Campaigns = append(txn.Campaigns, models.TransactionCampaign{
			CampaignID:    applied.CampaignID,
			DiscountCents: applied.DiscountCents,
			PointsEarned:  applied.PointsEarned,
			FreeItems:     types.UUIDList(applied.FreeItems),
		})
	}

	if err := txnRepo.Create(ctx, txn); err != nil {
		if db.IsUniqueViolation(err, "") {
			return errors.New(errors.CodeConflict, fmt.Sprintf("order number %s already settled", input.OrderNumber))
		}
		return err
	}
	result.Transaction = txn

	if err := s.recordCampaignUsage(ctx, tx, txn, input); err != nil {
		return err
	}

	// Aggregates. A purchase consisting solely of free items with a zero
	// total is not a qualifying visit.
	now := time.Now()
	customer.TotalSpentCents += input.FinalCents
	if qualifiesAsVisit(input) {
		customer.VisitCount++
	}
	customer.LastVisitAt = &now
	if err := customerRepo.Save(ctx, customer); err != nil {
		return err
	}

	if err := s.recordPointEntries(ctx, tx, txn, input, pointsEarned, expiryDays); err != nil {
		return err
	}

	// Reload so the reward passes see the post-ledger stats.
	fresh, err := customerRepo.GetForUpdate(ctx, input.CustomerID)
	if err != nil {
		return err
	}

	granted, err := s.rewards.RunMilestonePass(ctx, tx, rewards.MilestoneInput{
		Customer:      fresh,
		TransactionID: txn.ID,
		FinalCents:    input.FinalCents,
	})
	if err != nil {
		return err
	}
	result.GrantedRewards = granted

	// A tier-upgrade failure must never fail the underlying sale.
	change, err := s.tiers.CheckAndUpgrade(ctx, tx, input.CustomerID, fmt.Sprintf("transaction %s settled", input.OrderNumber))
	if err != nil {
		if s.logg != nil {
			s.logg.Error(s.logg.WithOrderNumber(ctx, input.OrderNumber), "tier upgrade check failed", err)
		}
	} else {
		result.TierChange = change
	}

	// The tier pass must see the tier the upgrade just applied, so reload
	// once more rather than reusing the pre-upgrade row.
	upgraded, err := customerRepo.GetForUpdate(ctx, input.CustomerID)
	if err != nil {
		return err
	}

	tierGrants, err := s.rewards.RunTierPass(ctx, tx, rewards.TierPassInput{
		Customer:      upgraded,
		TransactionID: txn.ID,
	})
	if err != nil {
		return err
	}
	result.GrantedRewards = append(result.GrantedRewards, tierGrants...)

	return s.emitSettled(ctx, tx, txn, result)
}

func (s *service) recordCampaignUsage(ctx context.Context, tx *gorm.DB, txn *models.Transaction, input SettleInput) error {
	campaignRepo := s.campaigns.WithTx(tx)
	for _, applied := range input.AppliedCampaigns {
		txnID := txn.ID
		usage := &models.CampaignUsage{
			CampaignID:    applied.CampaignID,
			CustomerID:    input.CustomerID,
			TransactionID: &txnID,
			Kind:          enums.CampaignUsageKindUsage,
		}
		campaign, err := campaignRepo.Get(ctx, applied.CampaignID)
		switch {
		case err == nil:
			usage.StampCount = stampsEarned(campaign, input.Items)
		case stderrors.Is(err, gorm.ErrRecordNotFound):
			// Campaign deleted mid-flight: record the usage without stamps.
		default:
			return err
		}
		if err := campaignRepo.CreateUsage(ctx, usage); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) recordPointEntries(ctx context.Context, tx *gorm.DB, txn *models.Transaction, input SettleInput, pointsEarned int, expiryDays *int) error {
	txnID := txn.ID
	if pointsEarned > 0 {
		description := fmt.Sprintf("purchase %s", input.OrderNumber)
		if _, err := s.points.Record(ctx, tx, ledger.RecordInput{
			CustomerID:    input.CustomerID,
			Amount:        pointsEarned,
			Type:          enums.PointEntryTypeEarned,
			Source:        enums.PointSourcePurchase,
			SourceID:      &txnID,
			Description:   &description,
			ExpiresInDays: expiryDays,
		}); err != nil {
			return err
		}
	}
	if input.PointsUsed > 0 {
		description := fmt.Sprintf("points spent on %s", input.OrderNumber)
		if _, err := s.points.Record(ctx, tx, ledger.RecordInput{
			CustomerID:  input.CustomerID,
			Amount:      -input.PointsUsed,
			Type:        enums.PointEntryTypeSpent,
			Source:      enums.PointSourcePurchase,
			SourceID:    &txnID,
			Description: &description,
		}); err != nil {
			return err
		}
	}
	for _, applied := range input.AppliedCampaigns {
		if applied.PointsEarned <= 0 {
			continue
		}
		campaignID := applied.CampaignID
		description := fmt.Sprintf("campaign bonus on %s", input.OrderNumber)
		if _, err := s.points.Record(ctx, tx, ledger.RecordInput{
			CustomerID:    input.CustomerID,
			Amount:        applied.PointsEarned,
			Type:          enums.PointEntryTypeEarned,
			Source:        enums.PointSourceCampaignBonus,
			SourceID:      &campaignID,
			Description:   &description,
			ExpiresInDays: expiryDays,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) emitSettled(ctx context.Context, tx *gorm.DB, txn *models.Transaction, result *SettleResult) error {
	if s.events == nil {
		return nil
	}
	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventTransactionSettled,
		AggregateType: enums.OutboxAggregateTransaction,
		AggregateID:   txn.ID,
		Data: map[string]any{
			"restaurantId": txn.RestaurantID,
			"customerId":   txn.CustomerID,
			"orderNumber":  txn.OrderNumber,
			"finalCents":   txn.FinalCents,
			"pointsEarned": result.PointsEarned,
			"pointsUsed":   result.PointsUsed,
		},
	}); err != nil {
		return err
	}
	if result.PointsEarned > 0 {
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPointsEarned,
			AggregateType: enums.OutboxAggregateCustomer,
			AggregateID:   txn.CustomerID,
			Data:          map[string]any{"points": result.PointsEarned, "orderNumber": txn.OrderNumber},
		}); err != nil {
			return err
		}
	}
	if result.PointsUsed > 0 {
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPointsSpent,
			AggregateType: enums.OutboxAggregateCustomer,
			AggregateID:   txn.CustomerID,
			Data:          map[string]any{"points": result.PointsUsed, "orderNumber": txn.OrderNumber},
		}); err != nil {
			return err
		}
	}
	return nil
}

func validateSettleInput(input SettleInput) error {
	if input.RestaurantID == uuid.Nil {
		return errors.New(errors.CodeValidation, "restaurant id is required")
	}
	if input.CustomerID == uuid.Nil {
		return errors.New(errors.CodeValidation, "customer id is required")
	}
	if input.OrderNumber == "" {
		return errors.New(errors.CodeValidation, "order number is required")
	}
	if input.TotalCents < 0 || input.DiscountCents < 0 || input.FinalCents < 0 {
		return errors.New(errors.CodeValidation, "amounts cannot be negative")
	}
	if input.PointsUsed < 0 {
		return errors.New(errors.CodeValidation, "points used cannot be negative")
	}
	return nil
}

// qualifiesAsVisit: at least one paid line or a positive total; pure stamp
// redemptions do not count as visits.
func qualifiesAsVisit(input SettleInput) bool {
	if input.FinalCents > 0 {
		return true
	}
	for _, item := range input.Items {
		if !item.IsFree {
			return true
		}
	}
	return false
}

// basePoints computes floor(orderUnits * baseRate * tierMultiplier) with
// order units being cents divided by 100.
func basePoints(finalCents int64, baseRate, tierMultiplier decimal.Decimal) int {
	points := decimal.NewFromInt(finalCents).
		Div(decimal.NewFromInt(100)).
		Mul(baseRate).
		Mul(tierMultiplier).
		Floor().
		IntPart()
	if points < 0 {
		return 0
	}
	return int(points)
}

// stampsEarned computes how many stamps the qualifying paid lines earn for a
// stamp-style campaign.
func stampsEarned(campaign *models.Campaign, items []LineItem) int {
	if campaign == nil || campaign.Type != enums.CampaignTypeProductBased {
		return 0
	}
	if campaign.BuyQuantity == nil || *campaign.BuyQuantity <= 0 {
		return 0
	}
	qualifying := 0
	for _, item := range items {
		if item.IsFree {
			continue
		}
		if len(campaign.TargetProducts) > 0 && !campaign.TargetProducts.Contains(item.ProductID) {
			continue
		}
		qualifying += item.Quantity
	}
	return qualifying / *campaign.BuyQuantity
}
