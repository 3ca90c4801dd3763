package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// Order is the customer order and the source of truth for its carrier parcel.
type Order struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	OrderNumber       string     `gorm:"column:order_number;not null;uniqueIndex" json:"order_number"`
	UserID            *uuid.UUID `gorm:"column:user_id;type:uuid" json:"user_id,omitempty"`
	CustomerFirstName string     `gorm:"column:customer_first_name;not null" json:"customer_first_name"`
	CustomerLastName  string     `gorm:"column:customer_last_name;not null" json:"customer_last_name"`
	CustomerPhone     string     `gorm:"column:customer_phone;not null" json:"customer_phone"`
	CustomerEmail     *string    `gorm:"column:customer_email" json:"customer_email,omitempty"`
	ShippingAddress   string     `gorm:"column:shipping_address;not null" json:"shipping_address"`

	Subtotal      decimal.Decimal `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	Shipping      decimal.Decimal `gorm:"column:shipping;type:numeric(12,2);not null" json:"shipping"`
	Tax           decimal.Decimal `gorm:"column:tax;type:numeric(12,2);not null" json:"tax"`
	Discount      decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null" json:"discount"`
	Total         decimal.Decimal `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	SubtotalCents int64           `gorm:"column:subtotal_cents;not null" json:"subtotal_cents"`
	TotalCents    int64           `gorm:"column:total_cents;not null" json:"total_cents"`

	PaymentMethod enums.PaymentMethod `gorm:"column:payment_method;not null" json:"payment_method"`
	PaymentRef    *string             `gorm:"column:payment_ref" json:"payment_ref,omitempty"`
	Status        enums.OrderStatus   `gorm:"column:status;not null" json:"status"`
	CODStatus     *enums.CODStatus    `gorm:"column:cod_status" json:"cod_status,omitempty"`

	ParcelSyncStatus enums.ParcelSyncStatus `gorm:"column:parcel_sync_status;not null" json:"parcel_sync_status"`
	ParcelSyncError  *string                `gorm:"column:parcel_sync_error" json:"parcel_sync_error,omitempty"`

	PaidAt                 *time.Time `gorm:"column:paid_at" json:"paid_at,omitempty"`
	FulfillmentCompletedAt *time.Time `gorm:"column:fulfillment_completed_at" json:"fulfillment_completed_at,omitempty"`
	// FulfillmentClaimedUntil is the lease held by a running completion.
	FulfillmentClaimedUntil *time.Time `gorm:"column:fulfillment_claimed_until" json:"-"`
	DeliveredAt             *time.Time `gorm:"column:delivered_at" json:"delivered_at,omitempty"`
	CancelledAt             *time.Time `gorm:"column:cancelled_at" json:"cancelled_at,omitempty"`
	CreatedAt               time.Time  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// IsCOD reports whether the order is fulfilled through the carrier parcel flow.
func (o Order) IsCOD() bool {
	return o.PaymentMethod == enums.PaymentMethodCOD
}

// EffectiveStatus is the user-facing status: the carrier status wins for COD orders.
func (o Order) EffectiveStatus() string {
	if o.CODStatus != nil && *o.CODStatus != "" {
		return string(*o.CODStatus)
	}
	return string(o.Status)
}

// IsTerminal reports whether the order no longer accepts edits.
func (o Order) IsTerminal() bool {
	if o.Status.IsTerminal() {
		return true
	}
	return o.CODStatus != nil && o.CODStatus.IsTerminal()
}
