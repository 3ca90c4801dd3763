package enums

import "slices"

// AuditAction names what an audit row records. Estimate changes are status
// changes to PENDING and use the same action.
type AuditAction string

const AuditActionStatusChange AuditAction = "STATUS_CHANGE"

// AuditEntityType scopes an audit row to the table it describes.
type AuditEntityType string

const (
	AuditEntityTuningFile AuditEntityType = "tuning_file"
	AuditEntityOrder      AuditEntityType = "order"
	AuditEntityParcel     AuditEntityType = "parcel"
)

var validAuditEntityTypes = []AuditEntityType{
	AuditEntityTuningFile,
	AuditEntityOrder,
	AuditEntityParcel,
}

// IsValid reports whether the value is a known AuditEntityType.
func (e AuditEntityType) IsValid() bool {
	return slices.Contains(validAuditEntityTypes, e)
}

// ParseAuditEntityType converts raw input into an AuditEntityType.
func ParseAuditEntityType(value string) (AuditEntityType, error) {
	return parse(value, validAuditEntityTypes, "audit entity type")
}
