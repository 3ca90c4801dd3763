package enums

import "slices"

// CODStatus is the carrier-side delivery status of a cash-on-delivery parcel.
type CODStatus string

const (
	CODStatusPending    CODStatus = "PENDING"
	CODStatusSubmitted  CODStatus = "SUBMITTED"
	CODStatusDispatched CODStatus = "DISPATCHED"
	CODStatusDelivered  CODStatus = "DELIVERED"
	CODStatusFailed     CODStatus = "FAILED"
	CODStatusCancelled  CODStatus = "CANCELLED"
)

var validCODStatuses = []CODStatus{
	CODStatusPending,
	CODStatusSubmitted,
	CODStatusDispatched,
	CODStatusDelivered,
	CODStatusFailed,
	CODStatusCancelled,
}

// String implements fmt.Stringer.
func (s CODStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known CODStatus.
func (s CODStatus) IsValid() bool {
	return slices.Contains(validCODStatuses, s)
}

// IsTerminal reports whether the parcel has left the carrier workflow.
func (s CODStatus) IsTerminal() bool {
	switch s {
	case CODStatusDelivered, CODStatusFailed, CODStatusCancelled:
		return true
	}
	return false
}

// ParseCODStatus converts raw input into a CODStatus.
func ParseCODStatus(value string) (CODStatus, error) {
	return parse(value, validCODStatuses, "cod status")
}
