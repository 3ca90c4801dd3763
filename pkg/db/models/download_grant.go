package models

import (
	"time"

	"github.com/google/uuid"
)

// DownloadGrant entitles the buyer of a virtual item to download it.
type DownloadGrant struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID uuid.UUID  `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex"`
	ProductID   uuid.UUID  `gorm:"column:product_id;type:uuid;not null"`
	UserID      *uuid.UUID `gorm:"column:user_id;type:uuid"`
	Token       string     `gorm:"column:token;not null;uniqueIndex"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
