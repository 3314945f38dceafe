package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/types"
)

// TransactionCampaign is the durable record of exactly how much one campaign
// affected one transaction. Cancellation reads these rows back to know what
// to undo instead of re-deriving from current campaign config.
type TransactionCampaign struct {
	ID            uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID uuid.UUID      `gorm:"column:transaction_id;type:uuid;not null;index"`
	CampaignID    uuid.UUID      `gorm:"column:campaign_id;type:uuid;not null"`
	DiscountCents int64          `gorm:"column:discount_cents;not null;default:0"`
	PointsEarned  int            `gorm:"column:points_earned;not null;default:0"`
	FreeItems     types.UUIDList `gorm:"column:free_items;type:jsonb;serializer:json"`
	CreatedAt     time.Time      `gorm:"column:created_at;autoCreateTime"`
}
