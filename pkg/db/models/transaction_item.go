package models

import (
	"time"

	"github.com/google/uuid"
)

// TransactionItem is one purchased line. Free lines (campaign grants, stamp
// redemptions) carry IsFree=true and do not qualify the visit on their own.
type TransactionItem struct {
	ID             uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TransactionID  uuid.UUID  `gorm:"column:transaction_id;type:uuid;not null;index"`
	ProductID      uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	Quantity       int        `gorm:"column:quantity;not null"`
	UnitPriceCents int64      `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64      `gorm:"column:total_cents;not null"`
	IsFree         bool       `gorm:"column:is_free;not null;default:false"`
	CampaignID     *uuid.UUID `gorm:"column:campaign_id;type:uuid"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
}
