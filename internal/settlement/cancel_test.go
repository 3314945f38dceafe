package settlement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/internal/rewards"
	"github.com/forkpoint/loyalty-backend/internal/tiers"
	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	pkgerrors "github.com/forkpoint/loyalty-backend/pkg/errors"
	"github.com/forkpoint/loyalty-backend/pkg/types"
)

func seedSettledTransaction(h *harness, customer *models.Customer, txn *models.Transaction) {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	txn.CustomerID = customer.ID
	txn.RestaurantID = customer.RestaurantID
	if txn.Status == "" {
		txn.Status = enums.TransactionStatusCompleted
	}
	h.txns.txns[txn.ID] = txn
	h.txns.orderNumbers[txn.OrderNumber] = true
}

func TestCancelRequiresTransactionID(t *testing.T) {
	h := newHarness(t, nil, "0.1")

	_, err := h.svc.Cancel(context.Background(), CancelInput{Options: DefaultCancelOptions()})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected VALIDATION, got %v", err)
	}
}

func TestCancelUnknownTransaction(t *testing.T) {
	h := newHarness(t, nil, "0.1")

	_, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: uuid.New(),
		Options:       DefaultCancelOptions(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestCancelTwiceIsConflictWithoutWrites(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New(), Points: 50}
	h := newHarness(t, customer, "0.1")
	seedSettledTransaction(h, customer, &models.Transaction{
		OrderNumber: "ORD-200",
		Status:      enums.TransactionStatusCancelled,
		FinalCents:  5000,
	})

	var txnID uuid.UUID
	for id := range h.txns.txns {
		txnID = id
	}

	_, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: txnID,
		Reason:        "duplicate request",
		Options:       DefaultCancelOptions(),
	})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
	if h.txns.cancellations != 0 {
		t.Fatal("expected no status write")
	}
	if len(h.ledger.entries) != 0 {
		t.Fatal("expected no ledger writes")
	}
	if h.customers.saves != 0 {
		t.Fatal("expected no aggregate writes")
	}
	if h.rewards.revokeCalls != 0 {
		t.Fatal("expected no reward revocation")
	}
}

func TestCancelFullReversal(t *testing.T) {
	customer := &models.Customer{
		ID:              uuid.New(),
		RestaurantID:    uuid.New(),
		Points:          15,
		TotalSpentCents: 25000,
		VisitCount:      4,
	}
	h := newHarness(t, customer, "0.1")

	buy := 2
	stampCampaign := &models.Campaign{
		ID:          uuid.New(),
		Type:        enums.CampaignTypeProductBased,
		BuyQuantity: &buy,
	}
	h.campaigns.campaigns[stampCampaign.ID] = stampCampaign

	originalNote := "table 7"
	txn := &models.Transaction{
		OrderNumber: "ORD-201",
		TotalCents:  10000,
		FinalCents:  10000,
		PointsUsed:  20,
		Notes:       &originalNote,
		Items: []models.TransactionItem{
			{ProductID: uuid.New(), Quantity: 4},
		},
		Campaigns: []models.TransactionCampaign{
			{ID: uuid.New(), CampaignID: stampCampaign.ID, PointsEarned: 5, FreeItems: types.UUIDList{}},
		},
	}
	seedSettledTransaction(h, customer, txn)

	txnID := txn.ID
	h.campaigns.usages = append(h.campaigns.usages, &models.CampaignUsage{
		ID:            uuid.New(),
		CampaignID:    stampCampaign.ID,
		CustomerID:    customer.ID,
		TransactionID: &txnID,
		Kind:          enums.CampaignUsageKindUsage,
	})

	revokedGrant := uuid.New()
	h.rewards.revokeOutcome = rewards.RevocationOutcome{
		RevokedGrantIDs: []uuid.UUID{revokedGrant},
		Errors:          []string{"reward grant " + uuid.Nil.String() + " already used, cannot cancel"},
	}
	h.tiers.downgrade = &tiers.TierChange{CustomerID: customer.ID, TierName: "Silver", ToLevel: 1}

	result, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: txn.ID,
		Reason:        "customer dispute",
		Options:       DefaultCancelOptions(),
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if result.OrderNumber != "ORD-201" {
		t.Fatalf("unexpected order number %q", result.OrderNumber)
	}
	if result.PointsRefunded != 20 {
		t.Fatalf("expected 20 points refunded, got %d", result.PointsRefunded)
	}
	// floor(100 * 0.1) = 10, no tier multiplier in the revocation.
	if result.PointsRevoked != 10 {
		t.Fatalf("expected 10 points revoked, got %d", result.PointsRevoked)
	}
	if result.CampaignPointsRevoked != 5 {
		t.Fatalf("expected 5 campaign points revoked, got %d", result.CampaignPointsRevoked)
	}
	if result.CampaignUsagesCancelled != 1 {
		t.Fatalf("expected one usage cancelled, got %d", result.CampaignUsagesCancelled)
	}
	// 4 paid units / buy 2 = 2 stamps clawed back.
	if result.StampsRevoked != 2 {
		t.Fatalf("expected 2 stamps revoked, got %d", result.StampsRevoked)
	}
	if len(result.RewardsRevoked) != 1 || result.RewardsRevoked[0] != revokedGrant {
		t.Fatalf("unexpected revoked rewards %v", result.RewardsRevoked)
	}
	if !containsSubstring(result.Errors, "already used") {
		t.Fatalf("expected non-fatal redeemed-grant error, got %v", result.Errors)
	}
	if result.TierChange == nil || result.TierChange.TierName != "Silver" {
		t.Fatalf("expected downgrade reported, got %+v", result.TierChange)
	}

	// 15 + 20 refund - 10 revoked - 5 campaign = 20.
	saved := h.customers.customers[customer.ID]
	if saved.Points != 20 {
		t.Fatalf("expected balance 20, got %d", saved.Points)
	}
	if saved.TotalSpentCents != 15000 {
		t.Fatalf("expected total spent 15000, got %d", saved.TotalSpentCents)
	}
	if saved.VisitCount != 3 {
		t.Fatalf("expected visit count 3, got %d", saved.VisitCount)
	}

	stored := h.txns.txns[txn.ID]
	if stored.Status != enums.TransactionStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", stored.Status)
	}
	if stored.CancelledAt == nil {
		t.Fatal("expected cancellation timestamp")
	}
	if stored.Notes == nil || !strings.Contains(*stored.Notes, "table 7") || !strings.Contains(*stored.Notes, "customer dispute") {
		t.Fatalf("expected note preserved and appended, got %v", stored.Notes)
	}

	if len(h.txns.deletedApplied) != 1 {
		t.Fatal("expected applied-campaign snapshot removed")
	}

	var audits int
	for _, usage := range h.campaigns.usages {
		if usage.Kind == enums.CampaignUsageKindStampRevocation {
			audits++
			if usage.StampCount != 2 {
				t.Fatalf("expected audit row with 2 stamps, got %d", usage.StampCount)
			}
		}
	}
	if audits != 1 {
		t.Fatalf("expected one stamp revocation audit row, got %d", audits)
	}

	if len(h.emitter.byType(enums.EventTransactionCancelled)) != 1 {
		t.Fatal("expected cancellation event")
	}
	if len(h.segments.queued) != 1 || h.segments.queued[0] != customer.ID {
		t.Fatal("expected segmentation recompute queued")
	}
	if h.tiers.lastDowngrade.NewTotalSpentCents != 15000 || h.tiers.lastDowngrade.NewVisitCount != 3 {
		t.Fatalf("downgrade input carries wrong aggregates: %+v", h.tiers.lastDowngrade)
	}
	if h.rewards.lastLapsed == nil || h.rewards.lastLapsed.TotalSpentCents != 15000 {
		t.Fatal("expected lapsed-milestone pass to see post-cancellation aggregates")
	}
}

func TestCancelClampsRevocationAndAggregates(t *testing.T) {
	customer := &models.Customer{
		ID:              uuid.New(),
		RestaurantID:    uuid.New(),
		Points:          4,
		TotalSpentCents: 3000,
		VisitCount:      0,
	}
	h := newHarness(t, customer, "0.1")
	txn := &models.Transaction{OrderNumber: "ORD-202", FinalCents: 10000}
	seedSettledTransaction(h, customer, txn)

	result, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: txn.ID,
		Reason:        "order voided",
		Options:       DefaultCancelOptions(),
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	// Only 4 points were available to claw back out of the intended 10.
	if result.PointsRevoked != 4 {
		t.Fatalf("expected clamped revocation of 4, got %d", result.PointsRevoked)
	}
	entries := h.ledger.bySource(enums.PointSourceCancellation)
	if len(entries) != 1 {
		t.Fatalf("expected one revocation entry, got %d", len(entries))
	}
	// The ledger entry states the full intended clawback.
	if entries[0].Amount != -10 {
		t.Fatalf("expected entry amount -10, got %d", entries[0].Amount)
	}

	saved := h.customers.customers[customer.ID]
	if saved.Points != 0 {
		t.Fatalf("expected balance clamped to 0, got %d", saved.Points)
	}
	if saved.TotalSpentCents != 0 {
		t.Fatalf("expected total spent clamped to 0, got %d", saved.TotalSpentCents)
	}
	if saved.VisitCount != 0 {
		t.Fatalf("expected visit count floor at 0, got %d", saved.VisitCount)
	}
}

func TestCancelOptionsSkipDisabledCategories(t *testing.T) {
	customer := &models.Customer{
		ID:              uuid.New(),
		RestaurantID:    uuid.New(),
		Points:          100,
		TotalSpentCents: 10000,
		VisitCount:      2,
	}
	h := newHarness(t, customer, "0.1")
	txn := &models.Transaction{
		OrderNumber: "ORD-203",
		FinalCents:  5000,
		PointsUsed:  10,
		Campaigns: []models.TransactionCampaign{
			{ID: uuid.New(), CampaignID: uuid.New(), PointsEarned: 5},
		},
	}
	seedSettledTransaction(h, customer, txn)

	result, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: txn.ID,
		Reason:        "status-only reversal",
		Options:       CancelOptions{},
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if result.PointsRefunded != 0 || result.PointsRevoked != 0 || result.CampaignPointsRevoked != 0 {
		t.Fatalf("expected no point reversals, got %+v", result)
	}
	if len(h.ledger.entries) != 0 {
		t.Fatal("expected no ledger entries")
	}
	if h.rewards.revokeCalls != 0 || h.rewards.lapsedCalls != 0 {
		t.Fatal("expected no reward revocation")
	}
	if h.tiers.downgradeCalls != 0 {
		t.Fatal("expected no tier check")
	}
	if len(h.txns.deletedApplied) != 0 {
		t.Fatal("expected applied-campaign snapshots untouched")
	}

	// Status flip and aggregate reversal still happen.
	stored := h.txns.txns[txn.ID]
	if stored.Status != enums.TransactionStatusCancelled {
		t.Fatalf("expected cancelled status, got %s", stored.Status)
	}
	saved := h.customers.customers[customer.ID]
	if saved.TotalSpentCents != 5000 || saved.VisitCount != 1 {
		t.Fatalf("expected aggregates reversed, got %+v", saved)
	}
}

func TestCancelStampAuditSkipsDeletedCampaign(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New(), Points: 50}
	h := newHarness(t, customer, "0")
	txn := &models.Transaction{
		OrderNumber: "ORD-204",
		FinalCents:  0,
		Items: []models.TransactionItem{
			{ProductID: uuid.New(), Quantity: 2},
		},
		Campaigns: []models.TransactionCampaign{
			// Campaign row no longer exists in the campaign table.
			{ID: uuid.New(), CampaignID: uuid.New()},
		},
	}
	seedSettledTransaction(h, customer, txn)

	result, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: txn.ID,
		Reason:        "cleanup",
		Options:       DefaultCancelOptions(),
	})
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if result.StampsRevoked != 0 {
		t.Fatalf("expected no stamps revoked for missing campaign, got %d", result.StampsRevoked)
	}
}

func TestCancelledAtIsRecent(t *testing.T) {
	customer := &models.Customer{ID: uuid.New(), RestaurantID: uuid.New()}
	h := newHarness(t, customer, "0")
	txn := &models.Transaction{OrderNumber: "ORD-205", FinalCents: 0}
	seedSettledTransaction(h, customer, txn)

	if _, err := h.svc.Cancel(context.Background(), CancelInput{
		TransactionID: txn.ID,
		Reason:        "test",
		Options:       DefaultCancelOptions(),
	}); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	stored := h.txns.txns[txn.ID]
	if stored.CancelledAt == nil || time.Since(*stored.CancelledAt) > time.Minute {
		t.Fatalf("unexpected cancellation timestamp %v", stored.CancelledAt)
	}
}
