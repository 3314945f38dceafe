package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Restaurant is the tenant root. BasePointRate is points per currency unit
// (0.1 means 1 point per 10 units spent).
type Restaurant struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name             string          `gorm:"column:name;not null"`
	BasePointRate    decimal.Decimal `gorm:"column:base_point_rate;type:numeric(8,4);not null;default:0.1"`
	PointsExpiryDays *int            `gorm:"column:points_expiry_days"`
	Timezone         string          `gorm:"column:timezone;not null;default:'UTC'"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
