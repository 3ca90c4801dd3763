package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderItem snapshots a purchased product at order time.
type OrderItem struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index" json:"order_id"`
	ProductID  uuid.UUID       `gorm:"column:product_id;type:uuid;not null" json:"product_id"`
	Name       string          `gorm:"column:name;not null" json:"name"`
	SKU        *string         `gorm:"column:sku" json:"sku,omitempty"`
	Price      decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	PriceCents int64           `gorm:"column:price_cents;not null" json:"price_cents"`
	Quantity   int             `gorm:"column:quantity;not null" json:"quantity"`
	IsVirtual  bool            `gorm:"column:is_virtual;not null" json:"is_virtual"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
