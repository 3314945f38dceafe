package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/forkpoint/loyalty-backend/pkg/enums"
)

// Notification is the materialized event row the worker writes from consumed
// outbox events. Delivery channels are out of scope; this is the sink.
type Notification struct {
	ID           uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RestaurantID uuid.UUID             `gorm:"column:restaurant_id;type:uuid;not null;index"`
	CustomerID   *uuid.UUID            `gorm:"column:customer_id;type:uuid;index"`
	Kind         enums.OutboxEventType `gorm:"column:kind;type:text;not null"`
	Title        string                `gorm:"column:title;not null"`
	Body         string                `gorm:"column:body;not null"`
	Payload      json.RawMessage       `gorm:"column:payload;type:jsonb"`
	ReadAt       *time.Time            `gorm:"column:read_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
}
