package enums

import "slices"

// FileStatus is the processing state of an uploaded tuning file.
type FileStatus string

const (
	FileStatusReceived FileStatus = "RECEIVED"
	FileStatusPending  FileStatus = "PENDING"
	FileStatusReady    FileStatus = "READY"
)

var validFileStatuses = []FileStatus{
	FileStatusReceived,
	FileStatusPending,
	FileStatusReady,
}

func (s FileStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known FileStatus.
func (s FileStatus) IsValid() bool {
	return slices.Contains(validFileStatuses, s)
}

// ParseFileStatus converts raw input into a FileStatus.
func ParseFileStatus(value string) (FileStatus, error) {
	return parse(value, validFileStatuses, "file status")
}
