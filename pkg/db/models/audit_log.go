package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// AuditLog is an append-only record of a state change.
type AuditLog struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EntityType enums.AuditEntityType `gorm:"column:entity_type;not null" json:"entity_type"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null" json:"entity_id"`
	ActorID    string                `gorm:"column:actor_id;not null" json:"actor_id"`
	Action     enums.AuditAction     `gorm:"column:action;not null" json:"action"`
	OldValue   *string               `gorm:"column:old_value" json:"old_value,omitempty"`
	NewValue   *string               `gorm:"column:new_value" json:"new_value,omitempty"`
	CreatedAt  time.Time             `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}
