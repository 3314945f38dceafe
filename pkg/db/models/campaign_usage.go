package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// CampaignUsage is a usage-counter row enforcing per-customer and global
// caps. TransactionID links it to the settlement that produced it so
// cancellation deletes exactly the rows this transaction caused. Rows of
// kind stamp_revocation are audit-only and never count toward caps.
type CampaignUsage struct {
	ID            uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	CampaignID    uuid.UUID               `gorm:"column:campaign_id;type:uuid;not null;index"`
	CustomerID    uuid.UUID               `gorm:"column:customer_id;type:uuid;not null;index"`
	TransactionID *uuid.UUID              `gorm:"column:transaction_id;type:uuid;index"`
	Kind          enums.CampaignUsageKind `gorm:"column:kind;type:campaign_usage_kind;not null;default:'usage'"`
	StampCount    int                     `gorm:"column:stamp_count;not null;default:0"`
	CreatedAt     time.Time               `gorm:"column:created_at;autoCreateTime"`
}
