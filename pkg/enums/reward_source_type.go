package enums

import "fmt"

// RewardSourceType records which engine pass granted a customer reward. It is
// the typed half of the grant's provenance; the other half is the source id
// (transaction, campaign or rule).
type RewardSourceType string

const (
	RewardSourceMilestone RewardSourceType = "milestone"
	RewardSourceTier      RewardSourceType = "tier"
	RewardSourceCampaign  RewardSourceType = "campaign"
	RewardSourceManual    RewardSourceType = "manual"
)

var validRewardSourceTypes = []RewardSourceType{
	RewardSourceMilestone,
	RewardSourceTier,
	RewardSourceCampaign,
	RewardSourceManual,
}

// IsValid reports whether the value matches the canonical source enum.
func (s RewardSourceType) IsValid() bool {
	for _, candidate := range validRewardSourceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRewardSourceType converts raw input into RewardSourceType.
func ParseRewardSourceType(value string) (RewardSourceType, error) {
	for _, candidate := range validRewardSourceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward source type %q", value)
}
