package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Tier is an ordered membership level for one restaurant. Absent thresholds
// are trivially satisfied.
type Tier struct {
	ID                 uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID       uuid.UUID       `gorm:"column:restaurant_id;type:uuid;not null;index"`
	Name               string          `gorm:"column:name;not null"`
	Level              int             `gorm:"column:level;not null"`
	MinTotalSpentCents *int64          `gorm:"column:min_total_spent_cents"`
	MinVisitCount      *int            `gorm:"column:min_visit_count"`
	MinPoints          *int            `gorm:"column:min_points"`
	PointMultiplier    decimal.Decimal `gorm:"column:point_multiplier;type:numeric(8,4);not null;default:1.0"`
	IsActive           bool            `gorm:"column:is_active;not null;default:true"`
	CreatedAt          time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
