package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Transaction is one purchase event. TierID/TierMultiplier snapshot the
// multiplier used at settlement time and are never recomputed afterwards.
type Transaction struct {
	ID             uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID   uuid.UUID               `gorm:"column:restaurant_id;type:uuid;not null;index"`
	CustomerID     uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index"`
	OrderNumber    string                  `gorm:"column:order_number;not null;uniqueIndex"`
	Status         enums.TransactionStatus `gorm:"column:status;type:transaction_status;not null;default:'completed'"`
	TotalCents     int64                   `gorm:"column:total_cents;not null"`
	DiscountCents  int64                   `gorm:"column:discount_cents;not null;default:0"`
	FinalCents     int64                   `gorm:"column:final_cents;not null"`
	PointsEarned   int                     `gorm:"column:points_earned;not null;default:0"`
	PointsUsed     int                     `gorm:"column:points_used;not null;default:0"`
	TierID         *uuid.UUID              `gorm:"column:tier_id;type:uuid"`
	TierMultiplier *decimal.Decimal        `gorm:"column:tier_multiplier;type:numeric(8,4)"`
	PaymentMethod  *string                 `gorm:"column:payment_method"`
	Notes          *string                 `gorm:"column:notes"`
	CancelledAt    *time.Time              `gorm:"column:cancelled_at"`
	Items          []TransactionItem       `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	Campaigns      []TransactionCampaign   `gorm:"foreignKey:TransactionID;constraint:OnDelete:CASCADE"`
	CreatedAt      time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
