package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// CustomerReward is one grant instance. SourceType/SourceID/RuleID are the
// typed provenance that lets cancellation find exactly the grants one
// transaction caused; deletable only while IsRedeemed is false.
type CustomerReward struct {
	ID         uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID uuid.UUID              `gorm:"column:customer_id;type:uuid;not null;index"`
	RewardID   uuid.UUID              `gorm:"column:reward_id;type:uuid;not null;index"`
	Reward     *Reward                `gorm:"foreignKey:RewardID"`
	SourceType enums.RewardSourceType `gorm:"column:source_type;type:reward_source_type;not null"`
	SourceID   *uuid.UUID             `gorm:"column:source_id;type:uuid;index"`
	RuleID     *uuid.UUID             `gorm:"column:rule_id;type:uuid;index"`
	Reason     *string                `gorm:"column:reason"`
	IsRedeemed bool                   `gorm:"column:is_redeemed;not null;default:false"`
	RedeemedAt *time.Time             `gorm:"column:redeemed_at"`
	ExpiresAt  *time.Time             `gorm:"column:expires_at"`
	CreatedAt  time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
