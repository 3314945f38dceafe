package models

import (
	"time"

	"github.com/google/uuid"
)

// CustomerSegment is the derived membership join.
type CustomerSegment struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SegmentID  uuid.UUID `gorm:"column:segment_id;type:uuid;not null;uniqueIndex:idx_segment_customer"`
	CustomerID uuid.UUID `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:idx_segment_customer"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}
