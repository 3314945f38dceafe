package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/types"
)

// Segment is a behavioral grouping. Automatic segments carry typed criteria
// and their membership is a derived view, safe to delete and recreate.
type Segment struct {
	ID           uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID uuid.UUID              `gorm:"column:restaurant_id;type:uuid;not null;index"`
	Name         string                 `gorm:"column:name;not null"`
	Description  *string                `gorm:"column:description"`
	IsAutomatic  bool                   `gorm:"column:is_automatic;not null;default:false"`
	Criteria     *types.SegmentCriteria `gorm:"column:criteria;type:jsonb;serializer:json"`
	CreatedAt    time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
