package models

// All returns every model in dependency order, used by the dev auto-migrate
// flag and the sqlite test harness.
func All() []any {
	return []any{
		&Restaurant{},
		&Tier{},
		&Customer{},
		&PointHistory{},
		&Transaction{},
		&TransactionItem{},
		&TransactionCampaign{},
		&Campaign{},
		&CampaignUsage{},
		&TierHistory{},
		&Reward{},
		&CustomerReward{},
		&RewardRule{},
		&Segment{},
		&CustomerSegment{},
		&Notification{},
		&OutboxEvent{},
	}
}
