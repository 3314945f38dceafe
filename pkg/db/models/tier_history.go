package models

import (
	"time"

	"github.com/google/uuid"
)

// TierHistory is an immutable audit record of one tier transition.
type TierHistory struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID  uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	FromTierID  *uuid.UUID `gorm:"column:from_tier_id;type:uuid"`
	ToTierID    uuid.UUID  `gorm:"column:to_tier_id;type:uuid;not null"`
	Reason      string     `gorm:"column:reason;not null"`
	TriggeredBy string     `gorm:"column:triggered_by;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
