package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the read-only catalog projection consulted at checkout and fulfillment.
type Product struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	SKU       *string         `gorm:"column:sku"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	IsVirtual bool            `gorm:"column:is_virtual;not null"`
	CourseID  *uuid.UUID      `gorm:"column:course_id;type:uuid"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
