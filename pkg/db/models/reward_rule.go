package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// RewardRule links a trigger to a reward. TriggerValue is a cent amount for
// total_spent triggers, a count for visit_count, a point total for
// points_milestone and a tier level for tier_reached.
type RewardRule struct {
	ID           uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID uuid.UUID               `gorm:"column:restaurant_id;type:uuid;not null;index"`
	RewardID     uuid.UUID               `gorm:"column:reward_id;type:uuid;not null"`
	Reward       *Reward                 `gorm:"foreignKey:RewardID"`
	TriggerType  enums.RewardTriggerType `gorm:"column:trigger_type;type:reward_trigger_type;not null"`
	TriggerValue int64                   `gorm:"column:trigger_value;not null"`
	IsActive     bool                    `gorm:"column:is_active;not null;default:true"`
	CreatedAt    time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
