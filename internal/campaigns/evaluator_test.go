package campaigns

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/types"
)

func activeCampaign(campaignType enums.CampaignType) *models.Campaign {
	return &models.Campaign{
		ID:       uuid.New(),
		Type:     campaignType,
		StartsAt: time.Now().Add(-24 * time.Hour),
		EndsAt:   time.Now().Add(24 * time.Hour),
		IsActive: true,
	}
}

func decimalPtr(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func intPtr(v int) *int { return &v }

func int64Ptr(v int64) *int64 { return &v }

func TestEvaluateInactiveCampaign(t *testing.T) {
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	campaign.IsActive = false

	result := Evaluate(campaign, EvaluationInput{OrderCents: 10000})
	if result.IsValid {
		t.Fatal("expected inactive campaign to be rejected")
	}
	if result.Message != "campaign is not active" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestEvaluateOutsideValidityPeriod(t *testing.T) {
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	campaign.StartsAt = time.Now().Add(24 * time.Hour)
	campaign.EndsAt = time.Now().Add(48 * time.Hour)

	result := Evaluate(campaign, EvaluationInput{OrderCents: 10000})
	if result.IsValid {
		t.Fatal("expected future campaign to be rejected")
	}
	if result.Message != "campaign is outside its validity period" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestEvaluateUsageCaps(t *testing.T) {
	t.Run("global cap reached", func(t *testing.T) {
		campaign := activeCampaign(enums.CampaignTypeDiscount)
		campaign.MaxUsage = intPtr(100)

		result := Evaluate(campaign, EvaluationInput{OrderCents: 10000, TotalUsageCount: 100})
		if result.IsValid {
			t.Fatal("expected capped campaign to be rejected")
		}
		if result.Message != "campaign usage limit reached" {
			t.Fatalf("unexpected message %q", result.Message)
		}
	})

	t.Run("per-customer cap defaults to one", func(t *testing.T) {
		campaign := activeCampaign(enums.CampaignTypeDiscount)

		result := Evaluate(campaign, EvaluationInput{OrderCents: 10000, CustomerUsageCount: 1})
		if result.IsValid {
			t.Fatal("expected default per-customer cap of 1 to reject a second use")
		}
		if result.Message != "customer usage limit reached" {
			t.Fatalf("unexpected message %q", result.Message)
		}
	})

	t.Run("explicit per-customer cap", func(t *testing.T) {
		campaign := activeCampaign(enums.CampaignTypeDiscount)
		campaign.MaxUsagePerCustomer = intPtr(3)
		campaign.DiscountType = func() *enums.DiscountType { d := enums.DiscountTypePercentage; return &d }()
		campaign.DiscountValue = decimalPtr("10")

		result := Evaluate(campaign, EvaluationInput{OrderCents: 10000, CustomerUsageCount: 2})
		if !result.IsValid {
			t.Fatalf("expected third use under a cap of 3 to apply, got %q", result.Message)
		}
	})
}

func TestEvaluateHourWindow(t *testing.T) {
	discountType := enums.DiscountTypePercentage
	campaign := activeCampaign(enums.CampaignTypeTimeBased)
	campaign.DiscountType = &discountType
	campaign.DiscountValue = decimalPtr("20")
	campaign.ValidHours = &types.HourWindow{Start: 17, End: 20}

	at := func(hour int) time.Time {
		return time.Date(2026, 3, 4, hour, 30, 0, 0, time.UTC)
	}

	inside := Evaluate(campaign, EvaluationInput{OrderCents: 5000, Now: at(18)})
	if !inside.IsValid || inside.DiscountCents != 1000 {
		t.Fatalf("expected 20%% discount at 18:30, got valid=%v discount=%d", inside.IsValid, inside.DiscountCents)
	}

	outside := Evaluate(campaign, EvaluationInput{OrderCents: 5000, Now: at(21)})
	if outside.IsValid {
		t.Fatal("expected rejection outside the hour window")
	}
	if outside.Message != "campaign is not valid at this hour" {
		t.Fatalf("unexpected message %q", outside.Message)
	}
}

func TestEvaluateMidnightWrappingWindow(t *testing.T) {
	discountType := enums.DiscountTypePercentage
	campaign := activeCampaign(enums.CampaignTypeTimeBased)
	campaign.DiscountType = &discountType
	campaign.DiscountValue = decimalPtr("10")
	campaign.ValidHours = &types.HourWindow{Start: 22, End: 2}

	lateNight := time.Date(2026, 3, 4, 23, 0, 0, 0, time.UTC)
	earlyMorning := time.Date(2026, 3, 5, 1, 0, 0, 0, time.UTC)
	noon := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	if r := Evaluate(campaign, EvaluationInput{OrderCents: 1000, Now: lateNight}); !r.IsValid {
		t.Fatalf("expected 23:00 inside wrapped window, got %q", r.Message)
	}
	if r := Evaluate(campaign, EvaluationInput{OrderCents: 1000, Now: earlyMorning}); !r.IsValid {
		t.Fatalf("expected 01:00 inside wrapped window, got %q", r.Message)
	}
	if r := Evaluate(campaign, EvaluationInput{OrderCents: 1000, Now: noon}); r.IsValid {
		t.Fatal("expected noon outside wrapped window")
	}
}

func TestEvaluateWeekdays(t *testing.T) {
	discountType := enums.DiscountTypePercentage
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	campaign.DiscountType = &discountType
	campaign.DiscountValue = decimalPtr("10")
	campaign.ValidDays = types.Weekdays{1, 2, 3} // Mon-Wed

	monday := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	sunday := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if r := Evaluate(campaign, EvaluationInput{OrderCents: 1000, Now: monday}); !r.IsValid {
		t.Fatalf("expected Monday valid, got %q", r.Message)
	}
	if r := Evaluate(campaign, EvaluationInput{OrderCents: 1000, Now: sunday}); r.IsValid {
		t.Fatal("expected Sunday rejected")
	}
}

func TestEvaluatePercentageDiscount(t *testing.T) {
	discountType := enums.DiscountTypePercentage
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	campaign.DiscountType = &discountType
	campaign.DiscountValue = decimalPtr("15")

	result := Evaluate(campaign, EvaluationInput{OrderCents: 9999})
	if !result.IsValid {
		t.Fatalf("expected discount to apply, got %q", result.Message)
	}
	// floor(9999 * 15 / 100) = 1499
	if result.DiscountCents != 1499 {
		t.Fatalf("expected 1499 cents discount, got %d", result.DiscountCents)
	}
}

func TestEvaluateFixedDiscountClampedToOrder(t *testing.T) {
	discountType := enums.DiscountTypeFixedAmount
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	campaign.DiscountType = &discountType
	campaign.DiscountValue = decimalPtr("5000")

	result := Evaluate(campaign, EvaluationInput{OrderCents: 3000})
	if result.DiscountCents != 3000 {
		t.Fatalf("expected discount clamped to order total, got %d", result.DiscountCents)
	}
}

func TestEvaluateMinPurchaseFloor(t *testing.T) {
	discountType := enums.DiscountTypePercentage
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	campaign.DiscountType = &discountType
	campaign.DiscountValue = decimalPtr("10")
	campaign.MinPurchaseCents = int64Ptr(5000)

	result := Evaluate(campaign, EvaluationInput{OrderCents: 4999})
	if result.IsValid {
		t.Fatal("expected order below minimum purchase to produce no effect")
	}
	if result.Message != "conditions not satisfied" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestEvaluateLoyaltyPointsCampaign(t *testing.T) {
	campaign := activeCampaign(enums.CampaignTypeLoyaltyPoints)
	campaign.PointsMultiplier = decimalPtr("2")

	result := Evaluate(campaign, EvaluationInput{
		OrderCents:    12550,
		BasePointRate: decimal.RequireFromString("0.1"),
	})
	if !result.IsValid {
		t.Fatalf("expected bonus points, got %q", result.Message)
	}
	// floor(125.50 * 0.1 * 2) = 25
	if result.PointsEarned != 25 {
		t.Fatalf("expected 25 bonus points, got %d", result.PointsEarned)
	}
}

func TestEvaluateFreeItemCampaign(t *testing.T) {
	freeItem := enums.DiscountTypeFreeItem
	productID := uuid.New()
	campaign := activeCampaign(enums.CampaignTypeProductBased)
	campaign.DiscountType = &freeItem
	campaign.FreeProducts = types.UUIDList{productID}

	result := Evaluate(campaign, EvaluationInput{OrderCents: 2000})
	if !result.IsValid {
		t.Fatalf("expected free item grant, got %q", result.Message)
	}
	if len(result.FreeProducts) != 1 || result.FreeProducts[0] != productID {
		t.Fatalf("unexpected free products %v", result.FreeProducts)
	}
}

func TestEvaluateBirthdaySpecialGrantsFreeProducts(t *testing.T) {
	productID := uuid.New()
	campaign := activeCampaign(enums.CampaignTypeBirthdaySpecial)
	campaign.FreeProducts = types.UUIDList{productID}

	result := Evaluate(campaign, EvaluationInput{OrderCents: 0})
	if !result.IsValid {
		t.Fatalf("expected birthday grant, got %q", result.Message)
	}
	if len(result.FreeProducts) != 1 {
		t.Fatalf("unexpected free products %v", result.FreeProducts)
	}
}

func TestEvaluateNoEffectIsInvalid(t *testing.T) {
	campaign := activeCampaign(enums.CampaignTypeDiscount)
	// No discount type/value configured.
	result := Evaluate(campaign, EvaluationInput{OrderCents: 10000})
	if result.IsValid {
		t.Fatal("expected campaign without effect to be invalid")
	}
	if result.Message != "conditions not satisfied" {
		t.Fatalf("unexpected message %q", result.Message)
	}
}
