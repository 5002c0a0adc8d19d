package deduplication

import "github.com/google/uuid"

// NewReportID returns a fresh report identifier.
func NewReportID() string {
	return "rcr-" + uuid.NewString()
}
