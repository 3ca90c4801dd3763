package enums

// ParcelSyncStatus records the outcome of the last carrier mirror write for an order.
type ParcelSyncStatus string

const (
	ParcelSyncSynced        ParcelSyncStatus = "synced"
	ParcelSyncFailed        ParcelSyncStatus = "failed"
	ParcelSyncNotApplicable ParcelSyncStatus = "not_applicable"
)

// IsValid reports whether the value is a known ParcelSyncStatus.
func (s ParcelSyncStatus) IsValid() bool {
	switch s {
	case ParcelSyncSynced, ParcelSyncFailed, ParcelSyncNotApplicable:
		return true
	}
	return false
}

// DeliveryType selects between carrier pickup point and home delivery.
type DeliveryType string

const (
	DeliveryTypeStopdesk DeliveryType = "stopdesk"
	DeliveryTypeHome     DeliveryType = "home"
)

// ParseDeliveryType converts raw input into a DeliveryType.
func ParseDeliveryType(value string) (DeliveryType, error) {
	return parse(value, []DeliveryType{DeliveryTypeStopdesk, DeliveryTypeHome}, "delivery type")
}
