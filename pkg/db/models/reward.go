package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Reward is a redeemable reward definition. PointsCost is what redemption
// spends; eligibility checks do not look at it.
type Reward struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID   uuid.UUID            `gorm:"column:restaurant_id;type:uuid;not null;index"`
	Name           string               `gorm:"column:name;not null"`
	Description    *string              `gorm:"column:description"`
	PointsCost     int                  `gorm:"column:points_cost;not null;default:0"`
	MinTier        *enums.CustomerLevel `gorm:"column:min_tier;type:customer_level"`
	MaxPerCustomer *int                 `gorm:"column:max_per_customer"`
	MaxRedemptions *int                 `gorm:"column:max_redemptions"`
	StockCount     *int                 `gorm:"column:stock_count"`
	ValidityDays   *int                 `gorm:"column:validity_days"`
	IsActive       bool                 `gorm:"column:is_active;not null;default:true"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
