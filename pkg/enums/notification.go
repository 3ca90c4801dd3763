package enums

import "slices"

// NotificationType classifies in-app notifications.
type NotificationType string

const (
	NotificationTypeNewOrder         NotificationType = "new_order"
	NotificationTypeOrderUpdated     NotificationType = "order_updated"
	NotificationTypeOrderStatus      NotificationType = "order_status"
	NotificationTypeFileStatus       NotificationType = "file_status"
	NotificationTypeDigitalDelivered NotificationType = "digital_delivered"
	NotificationTypeSystem           NotificationType = "system"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeNewOrder,
	NotificationTypeOrderUpdated,
	NotificationTypeOrderStatus,
	NotificationTypeFileStatus,
	NotificationTypeDigitalDelivered,
	NotificationTypeSystem,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return slices.Contains(validNotificationTypes, n)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse(value, validNotificationTypes, "notification type")
}

// NotificationAudience separates customer inboxes from the shared admin pool.
type NotificationAudience string

const (
	AudienceCustomer NotificationAudience = "customer"
	AudienceAdmin    NotificationAudience = "admin"
)
