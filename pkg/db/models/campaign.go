package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
	"github.com/forkpoint/loyalty-backend/pkg/types"
)

// Campaign is a promotional rule definition, read-only from the settlement
// engine's perspective. DiscountValue is a percentage for PERCENTAGE
// discounts and a cent amount for FIXED_AMOUNT ones. Schedule and product
// targeting are typed structs validated at write time, not opaque blobs.
type Campaign struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID       uuid.UUID            `gorm:"column:restaurant_id;type:uuid;not null;index"`
	Name               string               `gorm:"column:name;not null"`
	Description        *string              `gorm:"column:description"`
	Type               enums.CampaignType   `gorm:"column:type;type:campaign_type;not null"`
	DiscountType       *enums.DiscountType  `gorm:"column:discount_type;type:discount_type"`
	DiscountValue      *decimal.Decimal     `gorm:"column:discount_value;type:numeric(12,4)"`
	PointsMultiplier   *decimal.Decimal     `gorm:"column:points_multiplier;type:numeric(8,4)"`
	MinPurchaseCents   *int64               `gorm:"column:min_purchase_cents"`
	MaxUsage           *int                 `gorm:"column:max_usage"`
	MaxUsagePerCustomer *int                `gorm:"column:max_usage_per_customer"`
	StartsAt           time.Time            `gorm:"column:starts_at;not null"`
	EndsAt             time.Time            `gorm:"column:ends_at;not null"`
	ValidHours         *types.HourWindow    `gorm:"column:valid_hours;type:jsonb;serializer:json"`
	ValidDays          types.Weekdays       `gorm:"column:valid_days;type:jsonb;serializer:json"`
	TargetSegmentID    *uuid.UUID           `gorm:"column:target_segment_id;type:uuid"`
	TargetProducts     types.UUIDList       `gorm:"column:target_products;type:jsonb;serializer:json"`
	FreeProducts       types.UUIDList       `gorm:"column:free_products;type:jsonb;serializer:json"`
	BuyQuantity        *int                 `gorm:"column:buy_quantity"`
	GetQuantity        *int                 `gorm:"column:get_quantity"`
	BirthdayWindowDays *int                 `gorm:"column:birthday_window_days"`
	IsActive           bool                 `gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
