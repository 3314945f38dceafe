package settlement

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkpoint/loyalty-backend/internal/ledger"
	"github.com/forkpoint/loyalty-backend/internal/tiers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/outbox"
)

// CancelOptions selects which reversal categories run; the zero value is not
// useful, use DefaultCancelOptions.
type CancelOptions struct {
	ReversePoints    bool
	ReverseCampaigns bool
	ReverseStamps    bool
	ReverseRewards   bool
	CheckTier        bool
}

// DefaultCancelOptions enables every reversal category.
func DefaultCancelOptions() CancelOptions {
	return CancelOptions{
		ReversePoints:    true,
		ReverseCampaigns: true,
		ReverseStamps:    true,
		ReverseRewards:   true,
		CheckTier:        true,
	}
}

// CancelInput identifies the transaction to reverse.
type CancelInput struct {
	TransactionID uuid.UUID
	Reason        string
	Options       CancelOptions
}

// CancelResult enumerates exactly what was reversed. Non-fatal issues land
// in Errors; they never abort the transaction.
type CancelResult struct {
	TransactionID           uuid.UUID         `json:"transactionId"`
	OrderNumber             string            `json:"orderNumber"`
	PointsRefunded          int               `json:"pointsRefunded"`
	PointsRevoked           int               `json:"pointsRevoked"`
	CampaignPointsRevoked   int               `json:"campaignPointsRevoked"`
	CampaignUsagesCancelled int               `json:"campaignUsagesCancelled"`
	StampsRevoked           int               `json:"stampsRevoked"`
	RewardsRevoked          []uuid.UUID       `json:"rewardsRevoked,omitempty"`
	TierChange              *tiers.TierChange `json:"tierChange,omitempty"`
	Errors                  []string          `json:"errors,omitempty"`

	customerID uuid.UUID
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancelResult, error) {
	started := time.Now()
	if input.TransactionID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "transaction id is required")
	}

	result := &CancelResult{TransactionID: input.TransactionID}
	err := s.runner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.cancelInTx(ctx, tx, input, result)
	})
	if err != nil {
		s.metrics.IncCancellation("error")
		return nil, err
	}

	s.metrics.IncCancellation("ok")
	s.metrics.AddPointsRevoked(result.PointsRevoked)
	s.metrics.ObserveDuration("cancel", time.Since(started))

	if s.segments != nil {
		s.segments.QueueUpdate(result.customerID)
	}
	return result, nil
}

func (s *service) cancelInTx(ctx context.Context, tx *gorm.DB, input CancelInput, result *CancelResult) error {
	txnRepo := s.repo.WithTx(tx)
	customerRepo := s.customers.WithTx(tx)

	txn, err := txnRepo.Get(ctx, input.TransactionID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.New(errors.CodeNotFound, "transaction not found")
		}
		return err
	}
	if txn.Status.IsReversed() {
		return errors.New(errors.CodeConflict,
			fmt.Sprintf("transaction %s is already %s", txn.OrderNumber, txn.Status))
	}
	result.OrderNumber = txn.OrderNumber
	result.customerID = txn.CustomerID

	// Serialize against concurrent settlements for the same customer.
	customer, err := customerRepo.GetForUpdate(ctx, txn.CustomerID)
	if err != nil {
		return err
	}

	// Step 1: flip status and append a structured note, preserving any
	// existing notes.
	now := time.Now()
	note := fmt.Sprintf("[cancelled %s] %s", now.Format(time.RFC3339), input.Reason)
	if txn.Notes != nil && *txn.Notes != "" {
		note = *txn.Notes + "\n" + note
	}
	txn.Status = enums.TransactionStatusCancelled
	txn.Notes = &note
	txn.CancelledAt = &now
	if err := txnRepo.SaveCancellation(ctx, txn); err != nil {
		return err
	}

	baseRate, err := s.settings.BasePointRate(ctx, txn.RestaurantID)
	if err != nil {
		return err
	}

	if input.Options.ReversePoints {
		if err := s.reversePoints(ctx, tx, txn, baseRate, result); err != nil {
			return err
		}
	}
	if input.Options.ReverseCampaigns {
		if err := s.reverseCampaigns(ctx, tx, txn, result); err != nil {
			return err
		}
	}
	if input.Options.ReverseStamps {
		if err := s.reverseStamps(ctx, tx, txn, result); err != nil {
			return err
		}
	}

	// Post-cancellation aggregates, clamped so they never go negative.
	newTotalSpent := customer.TotalSpentCents - txn.FinalCents
	if newTotalSpent < 0 {
		newTotalSpent = 0
	}
	newVisitCount := customer.VisitCount
	if newVisitCount > 0 {
		newVisitCount--
	}

	if input.Options.ReverseRewards {
		if err := s.reverseRewards(ctx, tx, txn, newTotalSpent, newVisitCount, result); err != nil {
			return err
		}
	}

	// Step 6: aggregate reversal. Re-read so the points mutations from the
	// reversal steps are not overwritten.
	fresh, err := customerRepo.GetForUpdate(ctx, txn.CustomerID)
	if err != nil {
		return err
	}
	fresh.TotalSpentCents = newTotalSpent
	fresh.VisitCount = newVisitCount
	if err := customerRepo.Save(ctx, fresh); err != nil {
		return err
	}

	if input.Options.CheckTier {
		change, err := s.tiers.CheckDowngrade(ctx, tx, tiers.DowngradeInput{
			CustomerID:         txn.CustomerID,
			NewTotalSpentCents: newTotalSpent,
			NewVisitCount:      newVisitCount,
			OrderNumber:        txn.OrderNumber,
		})
		if err != nil {
			return err
		}
		result.TierChange = change
	}

	if s.events != nil {
		if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTransactionCancelled,
			AggregateType: enums.OutboxAggregateTransaction,
			AggregateID:   txn.ID,
			Data: map[string]any{
				"customerId":     txn.CustomerID,
				"orderNumber":    txn.OrderNumber,
				"pointsRefunded": result.PointsRefunded,
				"pointsRevoked":  result.PointsRevoked,
				"reason":         input.Reason,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

// reversePoints restores spent points and claws back earned ones. The
// clawback ledger entry states the full intended revocation while the
// balance decrement is clamped at zero.
func (s *service) reversePoints(ctx context.Context, tx *gorm.DB, txn *models.Transaction, baseRate decimal.Decimal, result *CancelResult) error {
	txnID := txn.ID

	if txn.PointsUsed > 0 {
		description := fmt.Sprintf("points refund for cancelled order %s", txn.OrderNumber)
		if _, err := s.points.Record(ctx, tx, ledger.RecordInput{
			CustomerID:  txn.CustomerID,
			Amount:      txn.PointsUsed,
			Type:        enums.PointEntryTypeAdjusted,
			Source:      enums.PointSourceCancellationRefund,
			SourceID:    &txnID,
			Description: &description,
		}); err != nil {
			return err
		}
		result.PointsRefunded = txn.PointsUsed
	}

	// The tier multiplier is deliberately absent here; the revocation uses
	// the tenant base rate alone.
	pointsToRevoke := basePoints(txn.FinalCents, baseRate, decimal.NewFromInt(1))
	if pointsToRevoke > 0 {
		description := fmt.Sprintf("points revoked for cancelled order %s", txn.OrderNumber)
		_, debited, err := s.points.RecordRevocation(ctx, tx, ledger.RevocationInput{
			CustomerID:  txn.CustomerID,
			Points:      pointsToRevoke,
			Source:      enums.PointSourceCancellation,
			SourceID:    &txnID,
			Description: &description,
		})
		if err != nil {
			return err
		}
		result.PointsRevoked = debited
	}
	return nil
}

// reverseCampaigns deletes the usage rows the settlement created, claws back
// campaign bonus points and removes the applied-campaign snapshots.
func (s *service) reverseCampaigns(ctx context.Context, tx *gorm.DB, txn *models.Transaction, result *CancelResult) error {
	campaignRepo := s.campaigns.WithTx(tx)
	txnRepo := s.repo.WithTx(tx)

	for _, applied := range txn.Campaigns {
		deleted, err := campaignRepo.DeleteUsageByTransaction(ctx, applied.CampaignID, txn.CustomerID, txn.ID)
		if err != nil {
			return err
		}
		result.CampaignUsagesCancelled += int(deleted)

		if applied.PointsEarned > 0 {
			campaignID := applied.CampaignID
			description := fmt.Sprintf("campaign bonus revoked for cancelled order %s", txn.OrderNumber)
			_, debited, err := s.points.RecordRevocation(ctx, tx, ledger.RevocationInput{
				CustomerID:  txn.CustomerID,
				Points:      applied.PointsEarned,
				Source:      enums.PointSourceCampaignCancellation,
				SourceID:    &campaignID,
				Description: &description,
			})
			if err != nil {
				return err
			}
			result.CampaignPointsRevoked += debited
		}

		if err := txnRepo.DeleteTransactionCampaign(ctx, applied.ID); err != nil {
			return err
		}
	}
	return nil
}

// reverseStamps writes audit rows for clawed-back stamps. Stamp balances are
// derived from transaction history at read time, so this documents the
// clawback rather than mutating a counter.
func (s *service) reverseStamps(ctx context.Context, tx *gorm.DB, txn *models.Transaction, result *CancelResult) error {
	campaignRepo := s.campaigns.WithTx(tx)

	items := make([]LineItem, 0, len(txn.Items))
	for _, item := range txn.Items {
		items = append(items, LineItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			IsFree:    item.IsFree,
		})
	}

	for _, applied := range txn.Campaigns {
		campaign, err := campaignRepo.Get(ctx, applied.CampaignID)
		if err != nil {
			if stderrors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return err
		}
		stamps := stampsEarned(campaign, items)
		if stamps == 0 {
			continue
		}

		txnID := txn.ID
		if err := campaignRepo.CreateUsage(ctx, &models.CampaignUsage{
			CampaignID:    applied.CampaignID,
			CustomerID:    txn.CustomerID,
			TransactionID: &txnID,
			Kind:          enums.CampaignUsageKindStampRevocation,
			StampCount:    stamps,
		}); err != nil {
			return err
		}
		result.StampsRevoked += stamps
	}
	return nil
}

// reverseRewards deletes grants caused by the transaction and any milestone
// grants whose thresholds the post-cancellation aggregates no longer meet.
// Already-redeemed grants become non-fatal errors.
func (s *service) reverseRewards(ctx context.Context, tx *gorm.DB, txn *models.Transaction, newTotalSpent int64, newVisitCount int, result *CancelResult) error {
	revoked, err := s.rewards.RevokeForTransaction(ctx, tx, txn.CustomerID, txn.ID)
	if err != nil {
		return err
	}
	result.RewardsRevoked = append(result.RewardsRevoked, revoked.RevokedGrantIDs...)
	result.Errors = append(result.Errors, revoked.Errors...)

	shadow := &models.Customer{
		ID:              txn.CustomerID,
		RestaurantID:    txn.RestaurantID,
		TotalSpentCents: newTotalSpent,
		VisitCount:      newVisitCount,
	}
	lapsed, err := s.rewards.RevokeLapsedMilestones(ctx, tx, shadow)
	if err != nil {
		return err
	}
	result.RewardsRevoked = append(result.RewardsRevoked, lapsed.RevokedGrantIDs...)
	result.Errors = append(result.Errors, lapsed.Errors...)
	return nil
}
