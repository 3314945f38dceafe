package enums

import "fmt"

// CampaignType maps to the campaign_type enum in Postgres.
type CampaignType string

const (
	CampaignTypeDiscount        CampaignType = "discount"
	CampaignTypeProductBased    CampaignType = "product_based"
	CampaignTypeLoyaltyPoints   CampaignType = "loyalty_points"
	CampaignTypeTimeBased       CampaignType = "time_based"
	CampaignTypeBirthdaySpecial CampaignType = "birthday_special"
	CampaignTypeComboDeal       CampaignType = "combo_deal"
)

var validCampaignTypes = []CampaignType{
	CampaignTypeDiscount,
	CampaignTypeProductBased,
	CampaignTypeLoyaltyPoints,
	CampaignTypeTimeBased,
	CampaignTypeBirthdaySpecial,
	CampaignTypeComboDeal,
}

// IsValid reports whether the value matches the canonical campaign type enum.
func (t CampaignType) IsValid() bool {
	for _, candidate := range validCampaignTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseCampaignType converts raw input into CampaignType.
func ParseCampaignType(value string) (CampaignType, error) {
	for _, candidate := range validCampaignTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid campaign type %q", value)
}
