package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/fulfillment-backend/internal/fulfillment"
	"github.com/angelmondragon/fulfillment-backend/internal/parcels"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
	"github.com/angelmondragon/fulfillment-backend/pkg/enums"
)

// CustomerInput carries customer field edits. Nil fields are left untouched.
type CustomerInput struct {
	FirstName       *string `json:"first_name,omitempty"`
	LastName        *string `json:"last_name,omitempty"`
	Phone           *string `json:"phone,omitempty"`
	Email           *string `json:"email,omitempty" validate:"omitempty,email"`
	ShippingAddress *string `json:"shipping_address,omitempty"`
}

// AmountsInput overrides the order-level money inputs. Subtotal and total are
// always derived and cannot be submitted.
type AmountsInput struct {
	Shipping *decimal.Decimal `json:"shipping,omitempty"`
	Tax      *decimal.Decimal `json:"tax,omitempty"`
	Discount *decimal.Decimal `json:"discount,omitempty"`
}

// UpdateOrderInput is an admin edit. A nil Items slice keeps the current items;
// a non-nil slice is the full desired item list.
type UpdateOrderInput struct {
	OrderID  uuid.UUID
	ActorID  string
	Customer *CustomerInput
	Items    []SubmittedItem
	Amounts  AmountsInput
	Shipping *parcels.ShippingOptions
}

// UpdateOrderResult reports the committed state of an edit.
type UpdateOrderResult struct {
	Order        *models.Order
	Items        []models.OrderItem
	Totals       Totals
	ParcelSync   *parcels.SyncResult
	CustomerSync *parcels.SyncResult
}

// CreateItemInput is one checkout line. Name and price are snapshotted from the catalog.
type CreateItemInput struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"min=1"`
}

// CreateOrderInput is the checkout request.
type CreateOrderInput struct {
	UserID          *uuid.UUID
	FirstName       string              `json:"first_name" validate:"required"`
	LastName        string              `json:"last_name" validate:"required"`
	Phone           string              `json:"phone" validate:"required"`
	Email           *string             `json:"email,omitempty" validate:"omitempty,email"`
	ShippingAddress string              `json:"shipping_address"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method" validate:"required"`
	Items           []CreateItemInput   `json:"items" validate:"required,min=1,dive"`
	Shipping        decimal.Decimal     `json:"shipping"`
	Tax             decimal.Decimal     `json:"tax"`
	Discount        decimal.Decimal     `json:"discount"`

	ShippingOptions *parcels.ShippingOptions `json:"-"`
}

// CreateOrderResult is the persisted order plus the completion report when the
// order was free and completed immediately.
type CreateOrderResult struct {
	Order      *models.Order
	Items      []models.OrderItem
	ParcelSync *parcels.SyncResult
	Completion *fulfillment.CompletionReport
}

// ConfirmPaymentResult reports a payment confirmation.
type ConfirmPaymentResult struct {
	Order            *models.Order
	AlreadyConfirmed bool
	Completion       *fulfillment.CompletionReport
}
