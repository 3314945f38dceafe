package enums

import "fmt"

// CampaignUsageKind distinguishes cap-counting usage rows from the audit rows
// cancellation writes when clawing back stamps.
type CampaignUsageKind string

const (
	CampaignUsageKindUsage           CampaignUsageKind = "usage"
	CampaignUsageKindStampRevocation CampaignUsageKind = "stamp_revocation"
)

var validCampaignUsageKinds = []CampaignUsageKind{
	CampaignUsageKindUsage,
	CampaignUsageKindStampRevocation,
}

// IsValid reports whether the value matches the canonical usage kind enum.
func (k CampaignUsageKind) IsValid() bool {
	for _, candidate := range validCampaignUsageKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseCampaignUsageKind converts raw input into CampaignUsageKind.
func ParseCampaignUsageKind(value string) (CampaignUsageKind, error) {
	for _, candidate := range validCampaignUsageKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid campaign usage kind %q", value)
}
