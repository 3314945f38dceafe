package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// PointHistory is an append-only ledger row. Amount is a signed delta and
// Balance snapshots the running total after this entry; rows are never
// updated except for the ExpiredAt mark the expiry sweep sets on earned
// entries it has offset.
type PointHistory struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CustomerID  uuid.UUID            `gorm:"column:customer_id;type:uuid;not null;index"`
	Amount      int                  `gorm:"column:amount;not null"`
	Type        enums.PointEntryType `gorm:"column:type;type:point_entry_type;not null"`
	Source      enums.PointSource    `gorm:"column:source;type:point_source;not null"`
	SourceID    *uuid.UUID           `gorm:"column:source_id;type:uuid"`
	Balance     int                  `gorm:"column:balance;not null"`
	Description *string              `gorm:"column:description"`
	ExpiresAt   *time.Time           `gorm:"column:expires_at"`
	ExpiredAt   *time.Time           `gorm:"column:expired_at"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
}
