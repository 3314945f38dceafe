package enums

import "fmt"

// RewardTriggerType maps to the reward_trigger_type enum in Postgres.
type RewardTriggerType string

const (
	RewardTriggerVisitCount      RewardTriggerType = "visit_count"
	RewardTriggerTotalSpent      RewardTriggerType = "total_spent"
	RewardTriggerPointsMilestone RewardTriggerType = "points_milestone"
	RewardTriggerTierReached     RewardTriggerType = "tier_reached"
)

var validRewardTriggerTypes = []RewardTriggerType{
	RewardTriggerVisitCount,
	RewardTriggerTotalSpent,
	RewardTriggerPointsMilestone,
	RewardTriggerTierReached,
}

// IsMilestone reports whether the trigger is evaluated in the per-transaction
// milestone pass (as opposed to the tier pass).
func (t RewardTriggerType) IsMilestone() bool {
	switch t {
	case RewardTriggerVisitCount, RewardTriggerTotalSpent, RewardTriggerPointsMilestone:
		return true
	default:
		return false
	}
}

// IsValid reports whether the value matches the canonical trigger enum.
func (t RewardTriggerType) IsValid() bool {
	for _, candidate := range validRewardTriggerTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseRewardTriggerType converts raw input into RewardTriggerType.
func ParseRewardTriggerType(value string) (RewardTriggerType, error) {
	for _, candidate := range validRewardTriggerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reward trigger type %q", value)
}
