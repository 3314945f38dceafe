package enums

import "fmt"

// CustomerLevel is the legacy coarse membership tier kept alongside the
// fine-grained Tier rows. Reward minimum-tier checks compare level ranks.
type CustomerLevel string

const (
	CustomerLevelRegular  CustomerLevel = "regular"
	CustomerLevelBronze   CustomerLevel = "bronze"
	CustomerLevelSilver   CustomerLevel = "silver"
	CustomerLevelGold     CustomerLevel = "gold"
	CustomerLevelPlatinum CustomerLevel = "platinum"
)

var orderedCustomerLevels = []CustomerLevel{
	CustomerLevelRegular,
	CustomerLevelBronze,
	CustomerLevelSilver,
	CustomerLevelGold,
	CustomerLevelPlatinum,
}

// Rank returns the ordinal position of the level, -1 when unknown.
func (l CustomerLevel) Rank() int {
	for i, candidate := range orderedCustomerLevels {
		if candidate == l {
			return i
		}
	}
	return -1
}

// IsValid reports whether the value matches the canonical level enum.
func (l CustomerLevel) IsValid() bool {
	return l.Rank() >= 0
}

// ParseCustomerLevel converts raw input into CustomerLevel.
func ParseCustomerLevel(value string) (CustomerLevel, error) {
	for _, candidate := range orderedCustomerLevels {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid customer level %q", value)
}
