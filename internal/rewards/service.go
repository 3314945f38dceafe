package rewards

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/customers"
	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/logger"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
)

// Eligibility is the typed outcome of a fail-closed eligibility check.
// Ineligibility is a routine result, never an error.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// AssignInput identifies the grant and its provenance.
type AssignInput struct {
	CustomerID uuid.UUID
	RewardID   uuid.UUID
	SourceType enums.RewardSourceType
	SourceID   *uuid.UUID
	RuleID     *uuid.UUID
	Reason     string
}

// AssignOutcome reports either the created grant or why assignment was
// skipped.
type AssignOutcome struct {
	Grant   *models.CustomerReward
	Skipped bool
	Reason  string
}

// MilestoneInput carries the post-settlement customer stats the milestone
// pass evaluates.
type MilestoneInput struct {
	Customer      *models.Customer
	TransactionID uuid.UUID
	FinalCents    int64
}

// TierPassInput carries the customer, as of the tier engine's latest pass,
// and the settling transaction that triggered the evaluation.
type TierPassInput struct {
	Customer      *models.Customer
	TransactionID uuid.UUID
}

// RevocationOutcome reports what the cancellation-side reversal did.
type RevocationOutcome struct {
	RevokedGrantIDs []uuid.UUID
	Errors          []string
}

// Service is the reward assignment engine.
type Service interface {
	CheckEligibility(ctx context.Context, tx *gorm.DB, customer *models.Customer, reward *models.Reward) (Eligibility, error)
	// Assign grants the reward after a fail-closed eligibility check;
	// ineligibility skips the grant instead of failing.
	Assign(ctx context.Context, tx *gorm.DB, input AssignInput) (AssignOutcome, error)
	// RunMilestonePass grants rewards for rules this transaction just pushed
	// the customer across.
	RunMilestonePass(ctx context.Context, tx *gorm.DB, input MilestoneInput) ([]models.CustomerReward, error)
	// RunTierPass grants tier_reached rewards the customer now qualifies for.
	RunTierPass(ctx context.Context, tx *gorm.DB, input TierPassInput) ([]models.CustomerReward, error)
	// Redeem spends the reward's point cost through the ledger and marks the
	// grant redeemed, in one transaction.
	Redeem(ctx context.Context, grantID uuid.UUID) (*models.CustomerReward, error)
	// RevokeForTransaction deletes un-redeemed grants the transaction caused;
	// already-redeemed ones are reported as non-fatal errors.
	RevokeForTransaction(ctx context.Context, tx *gorm.DB, customerID, transactionID uuid.UUID) (RevocationOutcome, error)
	// RevokeLapsedMilestones deletes un-redeemed milestone grants whose
	// thresholds the post-cancellation aggregates no longer meet.
	RevokeLapsedMilestones(ctx context.Context, tx *gorm.DB, customer *models.Customer) (RevocationOutcome, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type service struct {
	repo      Repository
	customers customers.Repository
	points    ledger.Service
	runner    txRunner
	events    eventEmitter
	logg      *logger.Logger
}

// NewService wires the reward engine. The runner is only needed by Redeem;
// the events emitter may be nil in tests.
func NewService(repo Repository, customerRepo customers.Repository, points ledger.Service, runner txRunner, events eventEmitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reward repository required")
	}
	if customerRepo == nil {
		return nil, fmt.Errorf("customer repository required")
	}
	if points == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{
		repo:      repo,
		customers: customerRepo,
		points:    points,
		runner:    runner,
		events:    events,
		logg:      logg,
	}, nil
}

func (s *service) CheckEligibility(ctx context.Context, tx *gorm.DB, customer *models.Customer, reward *models.Reward) (Eligibility, error) {
	if customer == nil || reward == nil {
		return Eligibility{Reason: "customer and reward required"}, nil
	}
	repo := s.repo.WithTx(tx)

	if !reward.IsActive {
		return Eligibility{Reason: "reward is not active"}, nil
	}
	if reward.MinTier != nil && customer.Level.Rank() < reward.MinTier.Rank() {
		return Eligibility{Reason: fmt.Sprintf("requires tier %s or above", *reward.MinTier)}, nil
	}
	if reward.StockCount != nil && *reward.StockCount <= 0 {
		return Eligibility{Reason: "reward is out of stock"}, nil
	}
	if reward.MaxRedemptions != nil {
		total, err := repo.CountGrantsByReward(ctx, reward.ID)
		if err != nil {
			return Eligibility{}, err
		}
		if total >= *reward.MaxRedemptions {
			return Eligibility{Reason: "reward redemption limit reached"}, nil
		}
	}
	if reward.MaxPerCustomer != nil {
		mine, err := repo.CountGrantsByCustomer(ctx, reward.ID, customer.ID)
		if err != nil {
			return Eligibility{}, err
		}
		if mine >= *reward.MaxPerCustomer {
			return Eligibility{Reason: "customer limit for this reward reached"}, nil
		}
	}
	return Eligibility{Eligible: true}, nil
}

func (s *service) Assign(ctx context.Context, tx *gorm.DB, input AssignInput) (AssignOutcome, error) {
	if tx == nil {
		return AssignOutcome{}, fmt.Errorf("transaction required")
	}
	if !input.SourceType.IsValid() {
		return AssignOutcome{}, errors.New(errors.CodeValidation, fmt.Sprintf("invalid reward source %q", input.SourceType))
	}
	repo := s.repo.WithTx(tx)

	reward, err := repo.GetReward(ctx, input.RewardID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return AssignOutcome{}, errors.New(errors.CodeNotFound, "reward not found")
		}
		return AssignOutcome{}, err
	}
	customer, err := s.customers.WithTx(tx).Get(ctx, input.CustomerID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return AssignOutcome{}, errors.New(errors.CodeNotFound, "customer not found")
		}
		return AssignOutcome{}, err
	}

	eligibility, err := s.CheckEligibility(ctx, tx, customer, reward)
	if err != nil {
		return AssignOutcome{}, err
	}
	if !eligibility.Eligible {
		return AssignOutcome{Skipped: true, Reason: eligibility.Reason}, nil
	}

	grant := &models.CustomerReward{
		CustomerID: input.CustomerID,
		RewardID:   input.RewardID,
		SourceType: input.SourceType,
		SourceID:   input.SourceID,
		RuleID:     input.RuleID,
	}
	if input.Reason != "" {
		reason := input.Reason
		grant.Reason = &reason
	}
	if reward.ValidityDays != nil && *reward.ValidityDays > 0 {
		expires := time.Now().AddDate(0, 0, *reward.ValidityDays)
		grant.ExpiresAt = &expires
	}

	if err := repo.CreateGrant(ctx, grant); err != nil {
		return AssignOutcome{}, err
	}
	if reward.StockCount != nil {
		if err := repo.AdjustStock(ctx, reward.ID, -1); err != nil {
			return AssignOutcome{}, err
		}
	}

	if s.events != nil {
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRewardGranted,
			AggregateType: enums.OutboxAggregateReward,
			AggregateID:   grant.ID,
			Data: map[string]any{
				"customerId": input.CustomerID,
				"rewardId":   input.RewardID,
				"sourceType": input.SourceType,
				"reason":     input.Reason,
			},
		}); err != nil {
			return AssignOutcome{}, err
		}
	}
	return AssignOutcome{Grant: grant}, nil
}

func (s *service) RunMilestonePass(ctx context.Context, tx *gorm.DB, input MilestoneInput) ([]models.CustomerReward, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.Customer == nil {
		return nil, errors.New(errors.CodeValidation, "customer is required")
	}
	repo := s.repo.WithTx(tx)

	rules, err := repo.ListActiveRules(ctx, input.Customer.RestaurantID)
	if err != nil {
		return nil, err
	}

	var granted []models.CustomerReward
	for i := range rules {
		rule := rules[i]
		if !rule.TriggerType.IsMilestone() {
			continue
		}
		crossed, err := s.justCrossed(ctx, repo, input, rule)
		if err != nil {
			return nil, err
		}
		if !crossed {
			continue
		}

		txID := input.TransactionID
		ruleID := rule.ID
		outcome, err := s.Assign(ctx, tx, AssignInput{
			CustomerID: input.Customer.ID,
			RewardID:   rule.RewardID,
			SourceType: enums.RewardSourceMilestone,
			SourceID:   &txID,
			RuleID:     &ruleID,
			Reason:     fmt.Sprintf("%s milestone %d reached", rule.TriggerType, rule.TriggerValue),
		})
		if err != nil {
			return nil, err
		}
		if outcome.Grant != nil {
			granted = append(granted, *outcome.Grant)
		}
	}
	return granted, nil
}

// justCrossed decides whether this transaction is the one that pushed the
// customer over the rule's threshold; that is what prevents re-granting the
// same milestone on every later transaction.
func (s *service) justCrossed(ctx context.Context, repo Repository, input MilestoneInput, rule models.RewardRule) (bool, error) {
	customer := input.Customer
	switch rule.TriggerType {
	case enums.RewardTriggerVisitCount:
		return int64(customer.VisitCount) == rule.TriggerValue, nil

	case enums.RewardTriggerTotalSpent:
		return customer.TotalSpentCents >= rule.TriggerValue &&
			customer.TotalSpentCents-input.FinalCents < rule.TriggerValue, nil

	case enums.RewardTriggerPointsMilestone:
		if int64(customer.Points) < rule.TriggerValue {
			return false, nil
		}
		prior, err := repo.CountGrantsByRule(ctx, customer.ID, rule.ID)
		if err != nil {
			return false, err
		}
		return prior == 0, nil

	default:
		return false, nil
	}
}

// currentTierOrdinal resolves the level a tier_reached rule compares against.
// The loaded tier row is authoritative; the coarse level column only stands in
// when no tier is loaded.
func currentTierOrdinal(customer *models.Customer) int64 {
	if customer.Tier != nil {
		return int64(customer.Tier.Level)
	}
	return int64(customer.Level.Rank())
}

func (s *service) RunTierPass(ctx context.Context, tx *gorm.DB, input TierPassInput) ([]models.CustomerReward, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	customer := input.Customer
	if customer == nil {
		return nil, errors.New(errors.CodeValidation, "customer is required")
	}
	repo := s.repo.WithTx(tx)

	rules, err := repo.ListActiveRules(ctx, customer.RestaurantID)
	if err != nil {
		return nil, err
	}

	ordinal := currentTierOrdinal(customer)
	var granted []models.CustomerReward
	for i := range rules {
		rule := rules[i]
		if rule.TriggerType != enums.RewardTriggerTierReached {
			continue
		}
		if ordinal < rule.TriggerValue {
			continue
		}
		prior, err := repo.CountGrantsByRule(ctx, customer.ID, rule.ID)
		if err != nil {
			return nil, err
		}
		if prior > 0 {
			continue
		}

		txID := input.TransactionID
		ruleID := rule.ID
		outcome, err := s.Assign(ctx, tx, AssignInput{
			CustomerID: customer.ID,
			RewardID:   rule.RewardID,
			SourceType: enums.RewardSourceTier,
			SourceID:   &txID,
			RuleID:     &ruleID,
			Reason:     fmt.Sprintf("tier level %d reached", rule.TriggerValue),
		})
		if err != nil {
			return nil, err
		}
		if outcome.Grant != nil {
			granted = append(granted, *outcome.Grant)
		}
	}
	return granted, nil
}

func (s *service) Redeem(ctx context.Context, grantID uuid.UUID) (*models.CustomerReward, error) {
	if s.runner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}

	var redeemed *models.CustomerReward
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		grant, err := repo.GetGrant(ctx, grantID)
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				return errors.New(errors.CodeNotFound, "reward grant not found")
			}
			return err
		}
		if grant.IsRedeemed {
			return errors.New(errors.CodeStateConflict, "reward already redeemed")
		}
		if grant.ExpiresAt != nil && grant.ExpiresAt.Before(time.Now()) {
			return errors.New(errors.CodeStateConflict, "reward grant has expired")
		}

		reward, err := repo.GetReward(ctx, grant.RewardID)
		if err != nil {
			return err
		}

		// Affordability is enforced here, at spend time, not in eligibility.
		if reward.PointsCost > 0 {
			rewardID := reward.ID
			description := fmt.Sprintf("redeemed reward %s", reward.Name)
			if _, err := s.points.Record(ctx, tx, ledger.RecordInput{
				CustomerID:  grant.CustomerID,
				Amount:      -reward.PointsCost,
				Type:        enums.PointEntryTypeSpent,
				Source:      enums.PointSourceRewardRedemption,
				SourceID:    &rewardID,
				Description: &description,
			}); err != nil {
				return err
			}
		}

		if err := repo.MarkRedeemed(ctx, grant.ID); err != nil {
			return err
		}

		if s.events != nil {
			if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRewardRedeemed,
				AggregateType: enums.OutboxAggregateReward,
				AggregateID:   grant.ID,
				Data: map[string]any{
					"customerId": grant.CustomerID,
					"rewardId":   grant.RewardID,
					"pointsCost": reward.PointsCost,
				},
			}); err != nil {
				return err
			}
		}

		grant.IsRedeemed = true
		now := time.Now()
		grant.RedeemedAt = &now
		redeemed = grant
		return nil
	})
	if err != nil {
		return nil, err
	}
	return redeemed, nil
}

func (s *service) RevokeForTransaction(ctx context.Context, tx *gorm.DB, customerID, transactionID uuid.UUID) (RevocationOutcome, error) {
	if tx == nil {
		return RevocationOutcome{}, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)

	grants, err := repo.FindGrantsByTransaction(ctx, customerID, transactionID)
	if err != nil {
		return RevocationOutcome{}, err
	}

	outcome := RevocationOutcome{}
	for _, grant := range grants {
		if grant.IsRedeemed {
			outcome.Errors = append(outcome.Errors,
				fmt.Sprintf("reward grant %s already used, cannot cancel", grant.ID))
			continue
		}
		if err := s.deleteGrant(ctx, repo, tx, grant); err != nil {
			return RevocationOutcome{}, err
		}
		outcome.RevokedGrantIDs = append(outcome.RevokedGrantIDs, grant.ID)
	}
	return outcome, nil
}

func (s *service) RevokeLapsedMilestones(ctx context.Context, tx *gorm.DB, customer *models.Customer) (RevocationOutcome, error) {
	if tx == nil {
		return RevocationOutcome{}, fmt.Errorf("transaction required")
	}
	if customer == nil {
		return RevocationOutcome{}, errors.New(errors.CodeValidation, "customer is required")
	}
	repo := s.repo.WithTx(tx)

	rules, err := repo.ListActiveRules(ctx, customer.RestaurantID)
	if err != nil {
		return RevocationOutcome{}, err
	}

	outcome := RevocationOutcome{}
	for _, rule := range rules {
		lapsed := false
		switch rule.TriggerType {
		case enums.RewardTriggerVisitCount:
			lapsed = int64(customer.VisitCount) < rule.TriggerValue
		case enums.RewardTriggerTotalSpent:
			lapsed = customer.TotalSpentCents < rule.TriggerValue
		default:
			continue
		}
		if !lapsed {
			continue
		}

		grants, err := repo.FindUnredeemedByRule(ctx, customer.ID, rule.ID)
		if err != nil {
			return RevocationOutcome{}, err
		}
		for _, grant := range grants {
			if err := s.deleteGrant(ctx, repo, tx, grant); err != nil {
				return RevocationOutcome{}, err
			}
			outcome.RevokedGrantIDs = append(outcome.RevokedGrantIDs, grant.ID)
		}
	}
	return outcome, nil
}

func (s *service) deleteGrant(ctx context.Context, repo Repository, tx *gorm.DB, grant models.CustomerReward) error {
	if err := repo.DeleteGrant(ctx, grant.ID); err != nil {
		return err
	}
	if err := repo.AdjustStock(ctx, grant.RewardID, 1); err != nil {
		return err
	}
	if s.events != nil {
		return s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRewardRevoked,
			AggregateType: enums.OutboxAggregateReward,
			AggregateID:   grant.ID,
			Data: map[string]any{
				"customerId": grant.CustomerID,
				"rewardId":   grant.RewardID,
			},
		})
	}
	return nil
}
