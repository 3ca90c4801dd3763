package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Notification stores in-app notifications. A nil UserID targets the admin pool.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID                 `gorm:"column:user_id;type:uuid" json:"user_id,omitempty"`
	Audience  enums.NotificationAudience `gorm:"column:audience;not null" json:"audience"`
	Type      enums.NotificationType     `gorm:"column:type;not null" json:"type"`
	Title     string                     `gorm:"column:title;not null" json:"title"`
	Message   string                     `gorm:"column:message;not null" json:"message"`
	Link      *string                    `gorm:"column:link" json:"link,omitempty"`
	ReadAt    *time.Time                 `gorm:"column:read_at" json:"read_at,omitempty"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
