package enums

import "fmt"

// PointSource tags the origin of a point ledger entry.
type PointSource string

const (
	PointSourcePurchase            PointSource = "purchase"
	PointSourceRewardRedemption    PointSource = "reward_redemption"
	PointSourceCampaignBonus       PointSource = "campaign_bonus"
	PointSourceCancellation        PointSource = "cancellation"
	PointSourceCancellationRefund  PointSource = "cancellation_refund"
	PointSourceCampaignCancellation PointSource = "campaign_cancellation"
	PointSourcePointsExpiry        PointSource = "points_expiry"
	PointSourceManualAdjustment    PointSource = "manual_adjustment"
)

var validPointSources = []PointSource{
	PointSourcePurchase,
	PointSourceRewardRedemption,
	PointSourceCampaignBonus,
	PointSourceCancellation,
	PointSourceCancellationRefund,
	PointSourceCampaignCancellation,
	PointSourcePointsExpiry,
	PointSourceManualAdjustment,
}

// IsValid reports whether the value matches the canonical point source enum.
func (s PointSource) IsValid() bool {
	for _, candidate := range validPointSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParsePointSource converts raw input into PointSource.
func ParsePointSource(value string) (PointSource, error) {
	for _, candidate := range validPointSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid point source %q", value)
}
