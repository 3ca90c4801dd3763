package models

import (
	"time"

	"github.com/google/uuid"
)

// LicenseKey is a pre-loaded key, unassigned until an order claims it.
type LicenseKey struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	Key         string     `gorm:"column:key_value;not null;uniqueIndex"`
	OrderID     *uuid.UUID `gorm:"column:order_id;type:uuid"`
	OrderItemID *uuid.UUID `gorm:"column:order_item_id;type:uuid"`
	UserID      *uuid.UUID `gorm:"column:user_id;type:uuid"`
	AssignedAt  *time.Time `gorm:"column:assigned_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
