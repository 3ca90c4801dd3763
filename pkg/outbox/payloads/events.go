package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderCreatedEvent is emitted once an order has been persisted at checkout.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID  `json:"order_id"`
	OrderNumber   string     `json:"order_number"`
	UserID        *uuid.UUID `json:"user_id,omitempty"`
	PaymentMethod string     `json:"payment_method"`
	TotalCents    int64      `json:"total_cents"`
	ItemCount     int        `json:"item_count"`
}

// OrderUpdatedEvent reports an admin edit of items, customer info or shipping.
type OrderUpdatedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	SubtotalCents    int64     `json:"subtotal_cents"`
	TotalCents       int64     `json:"total_cents"`
	ItemCount        int       `json:"item_count"`
	ParcelSyncStatus string    `json:"parcel_sync_status"`
}

// StatusChangedEvent is shared by order, COD and file status transitions.
type StatusChangedEvent struct {
	EntityID  uuid.UUID  `json:"entity_id"`
	UserID    *uuid.UUID `json:"user_id,omitempty"`
	OldStatus string     `json:"old_status"`
	NewStatus string     `json:"new_status"`
	ActorID   string     `json:"actor_id"`
	ChangedAt time.Time  `json:"changed_at"`
}

// OrderCompletedEvent summarizes the fulfillment pipeline run.
type OrderCompletedEvent struct {
	OrderID          uuid.UUID `json:"order_id"`
	DownloadGrants   int       `json:"download_grants"`
	LicenseKeys      int       `json:"license_keys"`
	CourseEnrollment int       `json:"course_enrollments"`
	AutoDelivered    bool      `json:"auto_delivered"`
}

// OrderAutoDeliveredEvent marks an all-virtual order delivered without shipment.
type OrderAutoDeliveredEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	DeliveredAt time.Time `json:"delivered_at"`
}
