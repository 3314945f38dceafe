package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Customer carries the mutable loyalty aggregates. Points must always equal
// the sum of the customer's ledger deltas; settlement, cancellation and
// redemption all mutate this row under a row lock.
type Customer struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID    uuid.UUID           `gorm:"column:restaurant_id;type:uuid;not null;index"`
	Name            string              `gorm:"column:name;not null"`
	Email           *string             `gorm:"column:email"`
	Phone           *string             `gorm:"column:phone"`
	BirthDate       *time.Time          `gorm:"column:birth_date"`
	Points          int                 `gorm:"column:points;not null;default:0"`
	TotalSpentCents int64               `gorm:"column:total_spent_cents;not null;default:0"`
	VisitCount      int                 `gorm:"column:visit_count;not null;default:0"`
	Level           enums.CustomerLevel `gorm:"column:level;type:customer_level;not null;default:'regular'"`
	TierID          *uuid.UUID          `gorm:"column:tier_id;type:uuid"`
	Tier            *Tier               `gorm:"foreignKey:TierID"`
	LastVisitAt     *time.Time          `gorm:"column:last_visit_at"`
	CreatedAt       time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
