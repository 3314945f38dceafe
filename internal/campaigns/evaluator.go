package campaigns

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkpoint/loyalty-backend/pkg/db/models"
	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Fallback per-customer cap when the campaign does not set one.
const defaultPerCustomerCap = 1

// EvaluationInput carries everything the evaluator needs; it never touches
// the database, the caller resolves usage counts and rates beforehand.
type EvaluationInput struct {
	OrderCents         int64
	CustomerUsageCount int
	TotalUsageCount    int
	BasePointRate      decimal.Decimal
	Now                time.Time
}

// Evaluation is the deterministic outcome for one campaign against one
// prospective order. IsValid is true only when some effect resulted.
type Evaluation struct {
	CampaignID    uuid.UUID
	IsValid       bool
	DiscountCents int64
	FreeProducts  []uuid.UUID
	PointsEarned  int
	Message       string
}

// Evaluate decides whether a campaign applies to an order and computes its
// effect. Conditions short-circuit in a fixed order, each with a distinct
// message, so callers can surface why a campaign did not apply.
func Evaluate(campaign *models.Campaign, input EvaluationInput) Evaluation {
	result := Evaluation{CampaignID: campaign.ID}
	now := input.Now
	if now.IsZero() {
		now = time.Now()
	}

	if !campaign.IsActive {
		result.Message = "campaign is not active"
		return result
	}

	if now.Before(campaign.StartsAt) || now.After(campaign.EndsAt) {
		result.Message = "campaign is outside its validity period"
		return result
	}

	if campaign.MaxUsage != nil && input.TotalUsageCount >= *campaign.MaxUsage {
		result.Message = "campaign usage limit reached"
		return result
	}
	perCustomerCap := defaultPerCustomerCap
	if campaign.MaxUsagePerCustomer != nil {
		perCustomerCap = *campaign.MaxUsagePerCustomer
	}
	if input.CustomerUsageCount >= perCustomerCap {
		result.Message = "customer usage limit reached"
		return result
	}

	if campaign.ValidHours != nil && !campaign.ValidHours.Contains(now) {
		result.Message = "campaign is not valid at this hour"
		return result
	}
	if !campaign.ValidDays.Contains(now) {
		result.Message = "campaign is not valid on this day"
		return result
	}

	switch campaign.Type {
	case enums.CampaignTypeDiscount, enums.CampaignTypeTimeBased, enums.CampaignTypeComboDeal:
		result.DiscountCents = calculateDiscount(input.OrderCents, campaign)

	case enums.CampaignTypeProductBased:
		if campaign.DiscountType != nil && *campaign.DiscountType == enums.DiscountTypeFreeItem {
			result.FreeProducts = campaign.FreeProducts
		} else {
			result.DiscountCents = calculateDiscount(input.OrderCents, campaign)
		}

	case enums.CampaignTypeLoyaltyPoints:
		result.PointsEarned = bonusPoints(input.OrderCents, input.BasePointRate, campaign.PointsMultiplier)

	case enums.CampaignTypeBirthdaySpecial:
		// The birthday-window precondition belongs to the caller selecting
		// eligible campaigns; the evaluator only grants the effect.
		result.FreeProducts = campaign.FreeProducts
	}

	if result.DiscountCents > 0 || len(result.FreeProducts) > 0 || result.PointsEarned > 0 {
		result.IsValid = true
		result.Message = "campaign applied"
		return result
	}
	result.Message = "conditions not satisfied"
	return result
}

// calculateDiscount computes the cent discount for value-style discounts.
// The discount never exceeds the order total, and a configured minimum
// purchase acts as a hard floor below which the discount is zero.
func calculateDiscount(orderCents int64, campaign *models.Campaign) int64 {
	if campaign.DiscountType == nil || campaign.DiscountValue == nil {
		return 0
	}
	if campaign.MinPurchaseCents != nil && orderCents < *campaign.MinPurchaseCents {
		return 0
	}

	switch *campaign.DiscountType {
	case enums.DiscountTypePercentage:
		discount := decimal.NewFromInt(orderCents).
			Mul(*campaign.DiscountValue).
			Div(decimal.NewFromInt(100)).
			Floor().
			IntPart()
		if discount > orderCents {
			return orderCents
		}
		return discount

	case enums.DiscountTypeFixedAmount:
		discount := campaign.DiscountValue.Floor().IntPart()
		if discount > orderCents {
			return orderCents
		}
		if discount < 0 {
			return 0
		}
		return discount

	default:
		// free_item and buy_one_get_one carry no cent discount.
		return 0
	}
}

// bonusPoints computes floor(orderUnits * baseRate * multiplier) where order
// units are cents divided by 100.
func bonusPoints(orderCents int64, baseRate decimal.Decimal, multiplier *decimal.Decimal) int {
	mult := decimal.NewFromInt(1)
	if multiplier != nil {
		mult = *multiplier
	}
	points := decimal.NewFromInt(orderCents).
		Div(decimal.NewFromInt(100)).
		Mul(baseRate).
		Mul(mult).
		Floor().
		IntPart()
	if points < 0 {
		return 0
	}
	return int(points)
}
